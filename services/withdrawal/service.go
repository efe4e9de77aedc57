package withdrawal

import (
	"context"

	"connector-accounting/pkg/ledger"
	"connector-accounting/pkg/util"
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

// AccountWithdrawal moves funds from an account to its asset's settlement
// balance. ID, when supplied, doubles as the engine transfer id and
// therefore as the idempotency key.
type AccountWithdrawal struct {
	ID        string
	AccountID string
	Amount    uint64
}

// LiquidityWithdrawal drains an asset's liquidity balance back to its
// settlement balance.
type LiquidityWithdrawal struct {
	ID     string
	Asset  asset.AssetOptions
	Amount uint64
}

// Withdrawal is the reserved record. The funds stay reserved until Finalize
// or Rollback settles them, or until the engine-side timeout expires.
type Withdrawal struct {
	ID        string
	AccountID string
	Amount    uint64
}

// Create reserves an account withdrawal with a two-phase transfer.
func (s *Service) Create(ctx context.Context, w AccountWithdrawal) (*Withdrawal, error) {
	span := trace.SpanFromContext(ctx)

	if w.ID != "" && !util.ValidateID(w.ID) {
		return nil, ErrInvalidID
	}
	acct, err := s.account.Get(ctx, w.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrUnknownAccount
	}
	a, err := s.asset.GetByID(ctx, acct.AssetID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &account.UnknownAssetError{AccountID: acct.ID}
	}

	withdrawalID := w.ID
	if withdrawalID == "" {
		withdrawalID = uuid.NewString()
	}
	transferID, err := uuid.Parse(withdrawalID)
	if err != nil {
		return nil, ErrInvalidID
	}

	transferErr, err := s.balance.CreateTransfers(ctx, []balance.Transfer{{
		ID:                   transferID,
		SourceBalanceID:      acct.BalanceID,
		DestinationBalanceID: a.SettlementBalanceID,
		Amount:               w.Amount,
		TwoPhaseCommit:       true,
	}})
	if err != nil {
		return nil, err
	}
	if transferErr != nil {
		switch transferErr.Code {
		case ledger.TransferExists:
			return nil, ErrWithdrawalExists
		case ledger.TransferDebitBalanceNotFound:
			return nil, &balance.UnknownBalanceError{AccountID: acct.ID}
		case ledger.TransferCreditBalanceNotFound:
			return nil, &asset.UnknownSettlementBalanceError{Code: a.Code, Scale: a.Scale}
		case ledger.TransferExceedsCredits:
			return nil, ErrInsufficientBalance
		case ledger.TransferExceedsDebits:
			return nil, ErrInsufficientSettlementBalance
		default:
			zap.L().With(
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("span_id", span.SpanContext().SpanID().String()),
			).Error("unexpected withdrawal transfer outcome",
				zap.String("account_id", w.AccountID),
				zap.String("code", transferErr.Code.String()),
			)
			return nil, transferErr
		}
	}

	return &Withdrawal{
		ID:        withdrawalID,
		AccountID: w.AccountID,
		Amount:    w.Amount,
	}, nil
}

// CreateLiquidity applies a liquidity withdrawal. Unlike account
// withdrawals it settles in a single phase.
func (s *Service) CreateLiquidity(ctx context.Context, w LiquidityWithdrawal) error {
	if w.ID != "" && !util.ValidateID(w.ID) {
		return ErrInvalidID
	}
	a, err := s.asset.Get(ctx, w.Asset)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrUnknownAsset
	}

	transfer := balance.Transfer{
		SourceBalanceID:      a.LiquidityBalanceID,
		DestinationBalanceID: a.SettlementBalanceID,
		Amount:               w.Amount,
	}
	if w.ID != "" {
		transferID, err := uuid.Parse(w.ID)
		if err != nil {
			return ErrInvalidID
		}
		transfer.ID = transferID
	}

	transferErr, err := s.balance.CreateTransfers(ctx, []balance.Transfer{transfer})
	if err != nil {
		return err
	}
	if transferErr != nil {
		switch transferErr.Code {
		case ledger.TransferExists:
			return ErrWithdrawalExists
		case ledger.TransferDebitBalanceNotFound:
			return &asset.UnknownLiquidityBalanceError{Code: a.Code, Scale: a.Scale}
		case ledger.TransferCreditBalanceNotFound:
			return &asset.UnknownSettlementBalanceError{Code: a.Code, Scale: a.Scale}
		case ledger.TransferExceedsCredits:
			return ErrInsufficientLiquidity
		case ledger.TransferExceedsDebits:
			return ErrInsufficientSettlementBalance
		default:
			return transferErr
		}
	}
	return nil
}

// Finalize accepts a reserved withdrawal.
func (s *Service) Finalize(ctx context.Context, id string) error {
	if !util.ValidateID(id) {
		return ErrInvalidID
	}
	transferID, err := uuid.Parse(id)
	if err != nil {
		return ErrInvalidID
	}
	res, err := s.balance.CommitTransfers(ctx, []uuid.UUID{transferID})
	if err != nil {
		return err
	}
	for _, r := range res {
		switch r.Code {
		case ledger.CommitLinkedEventFailed:
		case ledger.CommitTransferNotFound:
			return ErrUnknownWithdrawal
		case ledger.CommitAlreadyCommitted:
			return ErrAlreadyFinalized
		case ledger.CommitAlreadyCommittedButRejected:
			return ErrAlreadyRolledBack
		default:
			return &CommitError{Code: r.Code}
		}
	}
	return nil
}

// Rollback voids a reserved withdrawal, releasing the funds. Note the code
// mapping is inverted relative to Finalize: a rolled-back withdrawal reports
// plain already-committed here, and already-committed-but-accepted means an
// earlier Finalize won.
func (s *Service) Rollback(ctx context.Context, id string) error {
	if !util.ValidateID(id) {
		return ErrInvalidID
	}
	transferID, err := uuid.Parse(id)
	if err != nil {
		return ErrInvalidID
	}
	res, err := s.balance.RollbackTransfers(ctx, []uuid.UUID{transferID})
	if err != nil {
		return err
	}
	for _, r := range res {
		switch r.Code {
		case ledger.CommitLinkedEventFailed:
		case ledger.CommitTransferNotFound:
			return ErrUnknownWithdrawal
		case ledger.CommitAlreadyCommittedButAccepted:
			return ErrAlreadyFinalized
		case ledger.CommitAlreadyCommitted:
			return ErrAlreadyRolledBack
		default:
			return &CommitError{Code: r.Code}
		}
	}
	return nil
}
