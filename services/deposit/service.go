package deposit

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

// AccountDeposit funds an account from its asset's settlement balance. ID,
// when supplied, doubles as the engine transfer id and therefore as the
// idempotency key.
type AccountDeposit struct {
	ID        string
	AccountID string
	Amount    uint64
}

// LiquidityDeposit funds an asset's liquidity balance from its settlement
// balance.
type LiquidityDeposit struct {
	ID     string
	Asset  asset.AssetOptions
	Amount uint64
}

// Deposit is the applied record.
type Deposit struct {
	ID        string
	AccountID string
	Amount    uint64
}

// Create applies an account deposit. Resubmitting the same id reports
// ErrDepositExists without re-applying.
func (s *Service) Create(ctx context.Context, d AccountDeposit) (*Deposit, error) {
	span := trace.SpanFromContext(ctx)

	if d.ID != "" && !util.ValidateID(d.ID) {
		return nil, ErrInvalidID
	}
	acct, err := s.account.Get(ctx, d.AccountID)
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

	depositID := d.ID
	if depositID == "" {
		depositID = uuid.NewString()
	}
	transferID, err := uuid.Parse(depositID)
	if err != nil {
		return nil, ErrInvalidID
	}

	transferErr, err := s.balance.CreateTransfers(ctx, []balance.Transfer{{
		ID:                   transferID,
		SourceBalanceID:      a.SettlementBalanceID,
		DestinationBalanceID: acct.BalanceID,
		Amount:               d.Amount,
	}})
	if err != nil {
		return nil, err
	}
	if transferErr != nil {
		switch transferErr.Code {
		case ledger.TransferExists:
			return nil, ErrDepositExists
		case ledger.TransferDebitBalanceNotFound:
			return nil, &asset.UnknownSettlementBalanceError{Code: a.Code, Scale: a.Scale}
		case ledger.TransferCreditBalanceNotFound:
			return nil, &balance.UnknownBalanceError{AccountID: acct.ID}
		default:
			zap.L().With(
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("span_id", span.SpanContext().SpanID().String()),
			).Error("unexpected deposit transfer outcome",
				zap.String("account_id", d.AccountID),
				zap.String("code", transferErr.Code.String()),
			)
			return nil, transferErr
		}
	}

	return &Deposit{
		ID:        depositID,
		AccountID: d.AccountID,
		Amount:    d.Amount,
	}, nil
}

// CreateLiquidity applies a liquidity deposit, registering the asset first
// if this is the first time its (code, scale) is seen.
func (s *Service) CreateLiquidity(ctx context.Context, d LiquidityDeposit) error {
	if d.ID != "" && !util.ValidateID(d.ID) {
		return ErrInvalidID
	}
	a, err := s.asset.GetOrCreate(ctx, d.Asset)
	if err != nil {
		return err
	}

	transfer := balance.Transfer{
		SourceBalanceID:      a.SettlementBalanceID,
		DestinationBalanceID: a.LiquidityBalanceID,
		Amount:               d.Amount,
	}
	if d.ID != "" {
		transferID, err := uuid.Parse(d.ID)
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
			return ErrDepositExists
		case ledger.TransferDebitBalanceNotFound:
			return &asset.UnknownSettlementBalanceError{Code: a.Code, Scale: a.Scale}
		case ledger.TransferCreditBalanceNotFound:
			return &asset.UnknownLiquidityBalanceError{Code: a.Code, Scale: a.Scale}
		default:
			return transferErr
		}
	}
	return nil
}
