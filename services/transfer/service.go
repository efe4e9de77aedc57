package transfer

import (
	"context"

	"connector-accounting/pkg/ledger"
	"connector-accounting/services/account"
	"connector-accounting/services/asset"
	"connector-accounting/services/balance"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	account *account.Service
	asset   *asset.Service
	balance *balance.Service
}

type ServiceParams struct {
	fx.In
	Account *account.Service
	Asset   *asset.Service
	Balance *balance.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		account: p.Account,
		asset:   p.Asset,
		balance: p.Balance,
	}
}

// TransferOptions describes a payment between two accounts. A nil
// DestinationAmount means deliver exactly SourceAmount, which requires both
// accounts to hold the same asset.
type TransferOptions struct {
	SourceAccountID      string
	DestinationAccountID string
	SourceAmount         uint64
	DestinationAmount    *uint64
}

// Transaction is a reserved payment. Exactly one of Commit or Rollback
// finalizes it; the other, or a repeat, reports the prior outcome.
type Transaction struct {
	balance     *balance.Service
	transferIDs []uuid.UUID
}

// Create reserves a payment as one linked batch of two-phase transfers.
//
// Same asset: a single source→destination leg for the lower of the two
// amounts, plus — when the amounts differ — a leg absorbing the difference
// into the source asset's liquidity balance (source shortfall) or out of the
// destination asset's liquidity balance (destination surplus).
//
// Different asset: both amounts are required and the payment is bridged
// through the two liquidity balances, source account → source liquidity and
// destination liquidity → destination account.
func (s *Service) Create(ctx context.Context, opt TransferOptions) (*Transaction, error) {
	span := trace.SpanFromContext(ctx)

	if opt.SourceAccountID == opt.DestinationAccountID {
		return nil, ErrSameAccounts
	}
	if opt.SourceAmount == 0 {
		return nil, ErrInvalidSourceAmount
	}
	if opt.DestinationAmount != nil && *opt.DestinationAmount == 0 {
		return nil, ErrInvalidDestinationAmount
	}

	sourceAccount, err := s.account.Get(ctx, opt.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if sourceAccount == nil {
		return nil, ErrUnknownSourceAccount
	}
	destinationAccount, err := s.account.Get(ctx, opt.DestinationAccountID)
	if err != nil {
		return nil, err
	}
	if destinationAccount == nil {
		return nil, ErrUnknownDestinationAccount
	}
	sourceAsset, err := s.asset.GetByID(ctx, sourceAccount.AssetID)
	if err != nil {
		return nil, err
	}
	if sourceAsset == nil {
		return nil, &account.UnknownAssetError{AccountID: sourceAccount.ID}
	}
	destinationAsset, err := s.asset.GetByID(ctx, destinationAccount.AssetID)
	if err != nil {
		return nil, err
	}
	if destinationAsset == nil {
		return nil, &account.UnknownAssetError{AccountID: destinationAccount.ID}
	}

	var transfers []balance.Transfer
	if sourceAsset.Code == destinationAsset.Code && sourceAsset.Scale == destinationAsset.Scale {
		amount := opt.SourceAmount
		if opt.DestinationAmount != nil && *opt.DestinationAmount < amount {
			amount = *opt.DestinationAmount
		}
		transfers = append(transfers, balance.Transfer{
			ID:                   uuid.New(),
			SourceBalanceID:      sourceAccount.BalanceID,
			DestinationBalanceID: destinationAccount.BalanceID,
			Amount:               amount,
			TwoPhaseCommit:       true,
		})
		if opt.DestinationAmount != nil && *opt.DestinationAmount != opt.SourceAmount {
			if *opt.DestinationAmount < opt.SourceAmount {
				// Source pays more than is delivered; its asset's
				// liquidity absorbs the difference.
				transfers = append(transfers, balance.Transfer{
					ID:                   uuid.New(),
					SourceBalanceID:      sourceAccount.BalanceID,
					DestinationBalanceID: sourceAsset.LiquidityBalanceID,
					Amount:               opt.SourceAmount - *opt.DestinationAmount,
					TwoPhaseCommit:       true,
				})
			} else {
				// Destination receives more than was paid; its asset's
				// liquidity funds the difference.
				transfers = append(transfers, balance.Transfer{
					ID:                   uuid.New(),
					SourceBalanceID:      destinationAsset.LiquidityBalanceID,
					DestinationBalanceID: destinationAccount.BalanceID,
					Amount:               *opt.DestinationAmount - opt.SourceAmount,
					TwoPhaseCommit:       true,
				})
			}
		}
	} else {
		if opt.DestinationAmount == nil {
			return nil, ErrInvalidDestinationAmount
		}
		transfers = append(transfers,
			balance.Transfer{
				ID:                   uuid.New(),
				SourceBalanceID:      sourceAccount.BalanceID,
				DestinationBalanceID: sourceAsset.LiquidityBalanceID,
				Amount:               opt.SourceAmount,
				TwoPhaseCommit:       true,
			},
			balance.Transfer{
				ID:                   uuid.New(),
				SourceBalanceID:      destinationAsset.LiquidityBalanceID,
				DestinationBalanceID: destinationAccount.BalanceID,
				Amount:               *opt.DestinationAmount,
				TwoPhaseCommit:       true,
			},
		)
	}

	transferErr, err := s.balance.CreateTransfers(ctx, transfers)
	if err != nil {
		return nil, err
	}
	if transferErr != nil {
		switch transferErr.Code {
		case ledger.TransferDebitBalanceNotFound:
			if transferErr.Index == 1 {
				return nil, &asset.UnknownLiquidityBalanceError{Code: destinationAsset.Code, Scale: destinationAsset.Scale}
			}
			return nil, &balance.UnknownBalanceError{AccountID: sourceAccount.ID}
		case ledger.TransferCreditBalanceNotFound:
			if transferErr.Index == 1 {
				return nil, &balance.UnknownBalanceError{AccountID: destinationAccount.ID}
			}
			return nil, &asset.UnknownLiquidityBalanceError{Code: sourceAsset.Code, Scale: sourceAsset.Scale}
		case ledger.TransferExceedsCredits:
			if transferErr.Index == 1 {
				// In the same-currency shortfall case leg 1 debits the source
				// account again, not liquidity, yet it still reports as a
				// liquidity error. Callers depend on this labeling.
				return nil, ErrInsufficientLiquidity
			}
			return nil, ErrInsufficientBalance
		default:
			zap.L().With(
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("span_id", span.SpanContext().SpanID().String()),
			).Error("unexpected payment transfer outcome",
				zap.String("source_account_id", opt.SourceAccountID),
				zap.String("destination_account_id", opt.DestinationAccountID),
				zap.String("code", transferErr.Code.String()),
			)
			return nil, transferErr
		}
	}

	transferIDs := make([]uuid.UUID, 0, len(transfers))
	for _, t := range transfers {
		transferIDs = append(transferIDs, t.ID)
	}
	return &Transaction{balance: s.balance, transferIDs: transferIDs}, nil
}

// Commit accepts every reserved leg as one linked batch.
func (t *Transaction) Commit(ctx context.Context) error {
	res, err := t.balance.CommitTransfers(ctx, t.transferIDs)
	if err != nil {
		return err
	}
	for _, r := range res {
		switch r.Code {
		case ledger.CommitLinkedEventFailed:
		case ledger.CommitTransferExpired:
			return ErrTransferExpired
		case ledger.CommitAlreadyCommitted:
			return ErrTransferAlreadyCommitted
		case ledger.CommitAlreadyCommittedButRejected:
			return ErrTransferAlreadyRejected
		default:
			return &CommitError{Code: r.Code}
		}
	}
	return nil
}

// Rollback rejects every reserved leg as one linked batch. The code mapping
// is inverted relative to Commit: already-committed-but-accepted means an
// earlier Commit won, and plain already-committed means the rollback was
// already applied.
func (t *Transaction) Rollback(ctx context.Context) error {
	res, err := t.balance.RollbackTransfers(ctx, t.transferIDs)
	if err != nil {
		return err
	}
	for _, r := range res {
		switch r.Code {
		case ledger.CommitLinkedEventFailed:
		case ledger.CommitTransferExpired:
			return ErrTransferExpired
		case ledger.CommitAlreadyCommittedButAccepted:
			return ErrTransferAlreadyCommitted
		case ledger.CommitAlreadyCommitted:
			return ErrTransferAlreadyRejected
		default:
			return &CommitError{Code: r.Code}
		}
	}
	return nil
}
