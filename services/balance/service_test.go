package balance

import (
	"context"
	"testing"
	"time"

	"connector-accounting/pkg/config"
	"connector-accounting/pkg/ledger"
	"connector-accounting/pkg/ledger/inmem"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService() (*Service, *inmem.Engine) {
	engine := inmem.New()
	cfg := &config.Config{}
	cfg.Ledger.TransferTimeout = time.Second
	return NewService(ServiceParams{Client: engine, Config: cfg}), engine
}

func TestCreateBalances(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	creditID, debitID := uuid.New(), uuid.New()
	err := svc.CreateBalances(ctx, []BalanceOptions{
		{ID: creditID, Unit: 840},
		{ID: debitID, Unit: 840, DebitBalance: true},
	})
	require.NoError(t, err)

	balances, err := svc.GetBalances(ctx, []uuid.UUID{creditID, debitID})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	require.Equal(t, ledger.BalanceDebitsMustNotExceedCredits, balances[0].Flags)
	require.Equal(t, ledger.BalanceCreditsMustNotExceedDebits, balances[1].Flags)
	require.EqualValues(t, 840, balances[0].Unit)
}

func TestCreateBalancesExists(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	id := uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{{ID: id, Unit: 840}}))

	err := svc.CreateBalances(ctx, []BalanceOptions{{ID: id, Unit: 840}})
	var createErr *CreateBalanceError
	require.ErrorAs(t, err, &createErr)
	require.Equal(t, ledger.BalanceExists, createErr.Code)
}

func TestCreateBalancesLinked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	existing := uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{{ID: existing, Unit: 840}}))

	fresh := uuid.New()
	err := svc.CreateBalances(ctx, []BalanceOptions{
		{ID: fresh, Unit: 840},
		{ID: existing, Unit: 840},
	})
	var createErr *CreateBalanceError
	require.ErrorAs(t, err, &createErr)
	require.Equal(t, ledger.BalanceExists, createErr.Code)

	// The batch is linked, so the fresh balance must not have been created.
	balances, err := svc.GetBalances(ctx, []uuid.UUID{fresh})
	require.NoError(t, err)
	require.Empty(t, balances)
}

func TestCreateTransfers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	source, destination := uuid.New(), uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{
		{ID: source, Unit: 840, DebitBalance: true},
		{ID: destination, Unit: 840},
	}))

	transferErr, err := svc.CreateTransfers(ctx, []Transfer{{
		SourceBalanceID:      source,
		DestinationBalanceID: destination,
		Amount:               100,
	}})
	require.NoError(t, err)
	require.Nil(t, transferErr)

	balances, err := svc.GetBalances(ctx, []uuid.UUID{source, destination})
	require.NoError(t, err)
	require.EqualValues(t, 100, balances[0].DebitsAccepted)
	require.EqualValues(t, 100, balances[1].CreditsAccepted)
}

func TestCreateTransfersExceedsCredits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	source, destination := uuid.New(), uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{
		{ID: source, Unit: 840},
		{ID: destination, Unit: 840},
	}))

	transferErr, err := svc.CreateTransfers(ctx, []Transfer{{
		SourceBalanceID:      source,
		DestinationBalanceID: destination,
		Amount:               10,
	}})
	require.NoError(t, err)
	require.NotNil(t, transferErr)
	require.Equal(t, 0, transferErr.Index)
	require.Equal(t, ledger.TransferExceedsCredits, transferErr.Code)
}

func TestCreateTransfersExists(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	source, destination := uuid.New(), uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{
		{ID: source, Unit: 840, DebitBalance: true},
		{ID: destination, Unit: 840},
	}))

	transfer := Transfer{
		ID:                   uuid.New(),
		SourceBalanceID:      source,
		DestinationBalanceID: destination,
		Amount:               42,
	}
	transferErr, err := svc.CreateTransfers(ctx, []Transfer{transfer})
	require.NoError(t, err)
	require.Nil(t, transferErr)

	// Retrying the same id collapses the exists family to a single code,
	// even when the retry differs in amount.
	transfer.Amount = 43
	transferErr, err = svc.CreateTransfers(ctx, []Transfer{transfer})
	require.NoError(t, err)
	require.NotNil(t, transferErr)
	require.Equal(t, ledger.TransferExists, transferErr.Code)
}

func TestCreateTransfersLinked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	source, destination := uuid.New(), uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{
		{ID: source, Unit: 840, DebitBalance: true},
		{ID: destination, Unit: 840},
	}))

	// Second leg pulls from the empty credit balance, so the whole linked
	// batch must be voided.
	transferErr, err := svc.CreateTransfers(ctx, []Transfer{
		{SourceBalanceID: source, DestinationBalanceID: destination, Amount: 100},
		{SourceBalanceID: destination, DestinationBalanceID: source, Amount: 200},
	})
	require.NoError(t, err)
	require.NotNil(t, transferErr)
	require.Equal(t, 1, transferErr.Index)
	require.Equal(t, ledger.TransferExceedsCredits, transferErr.Code)

	balances, err := svc.GetBalances(ctx, []uuid.UUID{source, destination})
	require.NoError(t, err)
	require.EqualValues(t, 0, balances[0].DebitsAccepted)
	require.EqualValues(t, 0, balances[1].CreditsAccepted)
}

func TestTwoPhaseTransfers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	source, destination := uuid.New(), uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{
		{ID: source, Unit: 840, DebitBalance: true},
		{ID: destination, Unit: 840},
	}))

	transferID := uuid.New()
	transferErr, err := svc.CreateTransfers(ctx, []Transfer{{
		ID:                   transferID,
		SourceBalanceID:      source,
		DestinationBalanceID: destination,
		Amount:               100,
		TwoPhaseCommit:       true,
	}})
	require.NoError(t, err)
	require.Nil(t, transferErr)

	balances, err := svc.GetBalances(ctx, []uuid.UUID{source, destination})
	require.NoError(t, err)
	require.EqualValues(t, 100, balances[0].DebitsReserved)
	require.EqualValues(t, 0, balances[0].DebitsAccepted)
	require.EqualValues(t, 100, balances[1].CreditsReserved)

	res, err := svc.CommitTransfers(ctx, []uuid.UUID{transferID})
	require.NoError(t, err)
	require.Empty(t, res)

	balances, err = svc.GetBalances(ctx, []uuid.UUID{source, destination})
	require.NoError(t, err)
	require.EqualValues(t, 0, balances[0].DebitsReserved)
	require.EqualValues(t, 100, balances[0].DebitsAccepted)
	require.EqualValues(t, 100, balances[1].CreditsAccepted)

	// A second commit reports the transfer as already accepted.
	res, err = svc.CommitTransfers(ctx, []uuid.UUID{transferID})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, ledger.CommitAlreadyCommitted, res[0].Code)
}

func TestRollbackTransfers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	source, destination := uuid.New(), uuid.New()
	require.NoError(t, svc.CreateBalances(ctx, []BalanceOptions{
		{ID: source, Unit: 840, DebitBalance: true},
		{ID: destination, Unit: 840},
	}))

	transferID := uuid.New()
	transferErr, err := svc.CreateTransfers(ctx, []Transfer{{
		ID:                   transferID,
		SourceBalanceID:      source,
		DestinationBalanceID: destination,
		Amount:               100,
		TwoPhaseCommit:       true,
	}})
	require.NoError(t, err)
	require.Nil(t, transferErr)

	res, err := svc.RollbackTransfers(ctx, []uuid.UUID{transferID})
	require.NoError(t, err)
	require.Empty(t, res)

	balances, err := svc.GetBalances(ctx, []uuid.UUID{source, destination})
	require.NoError(t, err)
	require.EqualValues(t, 0, balances[0].DebitsReserved)
	require.EqualValues(t, 0, balances[0].DebitsAccepted)
	require.EqualValues(t, 0, balances[1].CreditsReserved)

	// Committing after a rollback reports the opposite finalization.
	res, err = svc.CommitTransfers(ctx, []uuid.UUID{transferID})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, ledger.CommitAlreadyCommittedButRejected, res[0].Code)
}
