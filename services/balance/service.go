package balance

import (
	"context"

	"connector-accounting/pkg/config"
	"connector-accounting/pkg/ledger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Service wraps the ledger engine client with the transfer batching
// conventions shared by every higher-level service: batches are linked so
// they apply all-or-nothing, and two-phase transfers carry the configured
// reservation timeout.
type Service struct {
	client  ledger.Client
	timeout uint64 // two-phase reservation timeout, nanoseconds
}

type ServiceParams struct {
	fx.In
	Client ledger.Client
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		client:  p.Client,
		timeout: uint64(p.Config.Ledger.TransferTimeout.Nanoseconds()),
	}
}

// BalanceOptions describes a balance to create. A debit balance accumulates
// value on the debit side and may not be credited past its debits; the
// default credit balance is the mirror of that.
type BalanceOptions struct {
	ID           uuid.UUID
	DebitBalance bool
	Unit         int32
}

// Transfer moves amount from the source balance to the destination balance.
// A zero ID gets a random one. Two-phase transfers only reserve the amount;
// the caller must commit or roll back by id.
type Transfer struct {
	ID                   uuid.UUID
	SourceBalanceID      uuid.UUID
	DestinationBalanceID uuid.UUID
	Amount               uint64
	TwoPhaseCommit       bool
}

// CreateBalances creates the given balances as a single linked batch. Any
// engine rejection is fatal and reported as *CreateBalanceError for the
// first entry that failed.
func (s *Service) CreateBalances(ctx context.Context, balances []BalanceOptions) error {
	span := trace.SpanFromContext(ctx)

	batch := make([]ledger.Balance, 0, len(balances))
	for i, b := range balances {
		var flags ledger.BalanceFlags
		if b.DebitBalance {
			flags |= ledger.BalanceCreditsMustNotExceedDebits
		} else {
			flags |= ledger.BalanceDebitsMustNotExceedCredits
		}
		if i < len(balances)-1 {
			flags |= ledger.BalanceLinked
		}
		batch = append(batch, ledger.Balance{
			ID:    b.ID,
			Unit:  b.Unit,
			Flags: flags,
		})
	}

	res, err := s.client.CreateAccounts(ctx, batch)
	if err != nil {
		return err
	}
	for _, r := range res {
		if r.Code == ledger.BalanceLinkedEventFailed {
			continue
		}
		zap.L().With(
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		).Error("failed to create balances",
			zap.Int("index", r.Index),
			zap.String("code", r.Code.String()),
		)
		return &CreateBalanceError{Code: r.Code}
	}
	return nil
}

// GetBalances looks up balances by id. Unknown ids are absent from the
// result rather than an error.
func (s *Service) GetBalances(ctx context.Context, ids []uuid.UUID) ([]ledger.Balance, error) {
	return s.client.LookupAccounts(ctx, ids)
}

// CreateTransfers posts the given transfers as a single linked batch.
// It returns a *TransferError identifying the first transfer the engine
// rejected, with the exists family of codes collapsed to TransferExists.
func (s *Service) CreateTransfers(ctx context.Context, transfers []Transfer) (*TransferError, error) {
	batch := make([]ledger.Transfer, 0, len(transfers))
	for i, t := range transfers {
		var flags ledger.TransferFlags
		var timeout uint64
		if t.TwoPhaseCommit {
			flags |= ledger.TransferTwoPhaseCommit
			timeout = s.timeout
		}
		if i < len(transfers)-1 {
			flags |= ledger.TransferLinked
		}
		id := t.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch = append(batch, ledger.Transfer{
			ID:              id,
			DebitBalanceID:  t.SourceBalanceID,
			CreditBalanceID: t.DestinationBalanceID,
			Amount:          t.Amount,
			Flags:           flags,
			Timeout:         timeout,
		})
	}

	res, err := s.client.CreateTransfers(ctx, batch)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		switch r.Code {
		case ledger.TransferOK, ledger.TransferLinkedEventFailed:
		case ledger.TransferExists,
			ledger.TransferExistsWithDifferentDebitBalance,
			ledger.TransferExistsWithDifferentCreditBalance,
			ledger.TransferExistsWithDifferentAmount,
			ledger.TransferExistsWithDifferentTimeout,
			ledger.TransferExistsWithDifferentFlags,
			ledger.TransferExistsAndAlreadyCommitted,
			ledger.TransferExistsAndAlreadyRejected:
			return &TransferError{Index: r.Index, Code: ledger.TransferExists}, nil
		default:
			return &TransferError{Index: r.Index, Code: r.Code}, nil
		}
	}
	return nil, nil
}

// CommitTransfers accepts the reserved two-phase transfers as a single
// linked batch.
func (s *Service) CommitTransfers(ctx context.Context, transferIDs []uuid.UUID) ([]ledger.CommitResult, error) {
	return s.client.CommitTransfers(ctx, s.commits(transferIDs, 0))
}

// RollbackTransfers voids the reserved two-phase transfers as a single
// linked batch.
func (s *Service) RollbackTransfers(ctx context.Context, transferIDs []uuid.UUID) ([]ledger.CommitResult, error) {
	return s.client.CommitTransfers(ctx, s.commits(transferIDs, ledger.CommitReject))
}

func (s *Service) commits(transferIDs []uuid.UUID, flags ledger.CommitFlags) []ledger.Commit {
	batch := make([]ledger.Commit, 0, len(transferIDs))
	for i, id := range transferIDs {
		f := flags
		if i < len(transferIDs)-1 {
			f |= ledger.CommitLinked
		}
		batch = append(batch, ledger.Commit{ID: id, Flags: f})
	}
	return batch
}
