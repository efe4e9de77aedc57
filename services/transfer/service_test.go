package transfer

import (
	"context"
	"testing"
	"time"

	"connector-accounting/pkg/config"
	"connector-accounting/pkg/ledger/inmem"
	"connector-accounting/services/account"
	"connector-accounting/services/asset"
	"connector-accounting/services/balance"
	"connector-accounting/services/deposit"
	"connector-accounting/services/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type testServices struct {
	transfer *Service
	deposit  *deposit.Service
	account  *account.Service
	asset    *asset.Service
	engine   *inmem.Engine
}

func newTestServices(t *testing.T) testServices {
	db := testutil.NewTestDB(t, &asset.Asset{}, &account.Account{})
	cfg := &config.Config{}
	cfg.Ledger.TransferTimeout = time.Second
	engine := inmem.New()
	balanceService := balance.NewService(balance.ServiceParams{Client: engine, Config: cfg})
	assetService := asset.NewService(asset.ServiceParams{DB: db, Balance: balanceService})
	accountService := account.NewService(account.ServiceParams{DB: db, Asset: assetService, Balance: balanceService})
	depositService := deposit.NewService(deposit.ServiceParams{Account: accountService, Asset: assetService, Balance: balanceService})
	transferService := NewService(ServiceParams{Account: accountService, Asset: assetService, Balance: balanceService})
	return testServices{
		transfer: transferService,
		deposit:  depositService,
		account:  accountService,
		asset:    assetService,
		engine:   engine,
	}
}

func (s testServices) fundedAccount(t *testing.T, a asset.AssetOptions, amount uint64) *account.Account {
	t.Helper()
	ctx := context.Background()
	acct, err := s.account.CreateAccount(ctx, account.AccountOptions{Asset: a})
	require.NoError(t, err)
	if amount > 0 {
		_, err = s.deposit.Create(ctx, deposit.AccountDeposit{AccountID: acct.ID, Amount: amount})
		require.NoError(t, err)
	}
	return acct
}

func (s testServices) accountBalance(t *testing.T, id string) uint64 {
	t.Helper()
	b, err := s.account.GetBalance(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.Balance
}

func amount(v uint64) *uint64 {
	return &v
}

func TestCreateSameCurrency(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, usd, 0)

	trx, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         5,
	})
	require.NoError(t, err)

	// Reserved but not applied until commit.
	require.EqualValues(t, 10, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 0, svc.accountBalance(t, dst.ID))

	require.NoError(t, trx.Commit(ctx))
	require.EqualValues(t, 5, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 5, svc.accountBalance(t, dst.ID))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, usd, 0)

	_, err := svc.transfer.Create(ctx, TransferOptions{SourceAccountID: src.ID, DestinationAccountID: src.ID, SourceAmount: 5})
	require.ErrorIs(t, err, ErrSameAccounts)

	_, err = svc.transfer.Create(ctx, TransferOptions{SourceAccountID: src.ID, DestinationAccountID: dst.ID})
	require.ErrorIs(t, err, ErrInvalidSourceAmount)

	_, err = svc.transfer.Create(ctx, TransferOptions{SourceAccountID: src.ID, DestinationAccountID: dst.ID, SourceAmount: 5, DestinationAmount: amount(0)})
	require.ErrorIs(t, err, ErrInvalidDestinationAmount)

	_, err = svc.transfer.Create(ctx, TransferOptions{SourceAccountID: uuid.NewString(), DestinationAccountID: dst.ID, SourceAmount: 5})
	require.ErrorIs(t, err, ErrUnknownSourceAccount)

	_, err = svc.transfer.Create(ctx, TransferOptions{SourceAccountID: src.ID, DestinationAccountID: uuid.NewString(), SourceAmount: 5})
	require.ErrorIs(t, err, ErrUnknownDestinationAccount)

	_, err = svc.transfer.Create(ctx, TransferOptions{SourceAccountID: src.ID, DestinationAccountID: dst.ID, SourceAmount: 20})
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreateSameCurrencyShortfall(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, usd, 0)

	// Source pays 10, destination receives 8; source liquidity absorbs 2.
	trx, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         10,
		DestinationAmount:    amount(8),
	})
	require.NoError(t, err)
	require.NoError(t, trx.Commit(ctx))

	require.EqualValues(t, 0, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 8, svc.accountBalance(t, dst.ID))
	liquidity, err := svc.asset.GetLiquidityBalance(ctx, usd)
	require.NoError(t, err)
	require.EqualValues(t, 2, *liquidity)
}

func TestCreateSameCurrencySurplus(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, usd, 0)

	// Destination receives 12 against 10 paid; that needs liquidity.
	_, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         10,
		DestinationAmount:    amount(12),
	})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	require.NoError(t, svc.deposit.CreateLiquidity(ctx, deposit.LiquidityDeposit{Asset: usd, Amount: 100}))

	trx, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         10,
		DestinationAmount:    amount(12),
	})
	require.NoError(t, err)
	require.NoError(t, trx.Commit(ctx))

	require.EqualValues(t, 0, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 12, svc.accountBalance(t, dst.ID))
	liquidity, err := svc.asset.GetLiquidityBalance(ctx, usd)
	require.NoError(t, err)
	require.EqualValues(t, 98, *liquidity)
}

func TestCreateCrossCurrency(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	eur := asset.AssetOptions{Code: "EUR", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, eur, 0)

	// Cross-currency payments require an explicit destination amount.
	_, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         1,
	})
	require.ErrorIs(t, err, ErrInvalidDestinationAmount)

	require.NoError(t, svc.deposit.CreateLiquidity(ctx, deposit.LiquidityDeposit{Asset: eur, Amount: 100}))

	trx, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         1,
		DestinationAmount:    amount(2),
	})
	require.NoError(t, err)
	require.NoError(t, trx.Commit(ctx))

	require.EqualValues(t, 9, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 2, svc.accountBalance(t, dst.ID))

	usdLiquidity, err := svc.asset.GetLiquidityBalance(ctx, usd)
	require.NoError(t, err)
	require.EqualValues(t, 1, *usdLiquidity)
	eurLiquidity, err := svc.asset.GetLiquidityBalance(ctx, eur)
	require.NoError(t, err)
	require.EqualValues(t, 98, *eurLiquidity)
}

func TestCreateCrossCurrencyAtomicity(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	eur := asset.AssetOptions{Code: "EUR", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, eur, 0)

	// EUR liquidity is empty, so the second leg fails; the first leg's
	// reservation must not stick.
	_, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         10,
		DestinationAmount:    amount(20),
	})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	// The full source balance is still spendable.
	usdDst := svc.fundedAccount(t, usd, 0)
	trx, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: usdDst.ID,
		SourceAmount:         10,
	})
	require.NoError(t, err)
	require.NoError(t, trx.Commit(ctx))
	require.EqualValues(t, 10, svc.accountBalance(t, usdDst.ID))
}

func TestFinalizeOnce(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, usd, 0)

	trx, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         5,
	})
	require.NoError(t, err)
	require.NoError(t, trx.Commit(ctx))

	require.ErrorIs(t, trx.Commit(ctx), ErrTransferAlreadyCommitted)
	require.ErrorIs(t, trx.Rollback(ctx), ErrTransferAlreadyCommitted)
	require.EqualValues(t, 5, svc.accountBalance(t, dst.ID))

	trx, err = svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         5,
	})
	require.NoError(t, err)
	require.NoError(t, trx.Rollback(ctx))

	require.ErrorIs(t, trx.Rollback(ctx), ErrTransferAlreadyRejected)
	require.ErrorIs(t, trx.Commit(ctx), ErrTransferAlreadyRejected)
	require.EqualValues(t, 5, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 5, svc.accountBalance(t, dst.ID))
}

func TestTransferExpired(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t)
	usd := asset.AssetOptions{Code: "USD", Scale: 2}
	src := svc.fundedAccount(t, usd, 10)
	dst := svc.fundedAccount(t, usd, 0)

	trx, err := svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         5,
	})
	require.NoError(t, err)

	svc.engine.SetNow(func() time.Time {
		return time.Now().Add(time.Minute)
	})
	require.ErrorIs(t, trx.Commit(ctx), ErrTransferExpired)
	require.ErrorIs(t, trx.Rollback(ctx), ErrTransferExpired)

	// The expired reservation is voided, so the full amount is spendable again.
	require.EqualValues(t, 10, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 0, svc.accountBalance(t, dst.ID))

	trx, err = svc.transfer.Create(ctx, TransferOptions{
		SourceAccountID:      src.ID,
		DestinationAccountID: dst.ID,
		SourceAmount:         10,
	})
	require.NoError(t, err)
	require.NoError(t, trx.Commit(ctx))
	require.EqualValues(t, 0, svc.accountBalance(t, src.ID))
	require.EqualValues(t, 10, svc.accountBalance(t, dst.ID))
}
