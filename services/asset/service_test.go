package asset

import (
	"context"
	"testing"
	"time"

	"connector-accounting/pkg/config"
	"connector-accounting/pkg/ledger/inmem"
	"connector-accounting/services/balance"
	"connector-accounting/services/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *balance.Service, *gorm.DB) {
	db := testutil.NewTestDB(t, &Asset{})
	cfg := &config.Config{}
	cfg.Ledger.TransferTimeout = time.Second
	balanceService := balance.NewService(balance.ServiceParams{Client: inmem.New(), Config: cfg})
	return NewService(ServiceParams{DB: db, Balance: balanceService}), balanceService, db
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	svc, balanceService, _ := newTestService(t)

	a, err := svc.GetOrCreate(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, "USD", a.Code)
	require.NotZero(t, a.Unit)

	balances, err := balanceService.GetBalances(ctx, []uuid.UUID{a.LiquidityBalanceID, a.SettlementBalanceID})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	require.Equal(t, a.Unit, balances[0].Unit)

	// Idempotent: the same (code, scale) maps to the same row.
	again, err := svc.GetOrCreate(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)
	require.Equal(t, a.ID, again.ID)
	require.Equal(t, a.Unit, again.Unit)

	// A different scale is a different asset.
	other, err := svc.GetOrCreate(ctx, AssetOptions{Code: "USD", Scale: 9})
	require.NoError(t, err)
	require.NotEqual(t, a.ID, other.ID)
	require.NotEqual(t, a.Unit, other.Unit)
}

func TestGetOrCreateRecoversPartialCreation(t *testing.T) {
	ctx := context.Background()
	svc, balanceService, db := newTestService(t)

	// An asset row without engine balances, as left behind when balance
	// creation failed after the row became visible.
	orphan := &Asset{
		ID:                  uuid.New(),
		Code:                "EUR",
		Scale:               2,
		LiquidityBalanceID:  uuid.New(),
		SettlementBalanceID: uuid.New(),
	}
	require.NoError(t, db.Create(orphan).Error)

	a, err := svc.GetOrCreate(ctx, AssetOptions{Code: "EUR", Scale: 2})
	require.NoError(t, err)
	require.Equal(t, orphan.ID, a.ID)

	balances, err := balanceService.GetBalances(ctx, []uuid.UUID{orphan.LiquidityBalanceID, orphan.SettlementBalanceID})
	require.NoError(t, err)
	require.Len(t, balances, 2)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	a, err := svc.Get(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)
	require.Nil(t, a)

	created, err := svc.GetOrCreate(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)

	a, err = svc.Get(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, created.ID, a.ID)

	byID, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.Equal(t, created.Unit, byID.Unit)
}

func TestGetLiquidityBalance(t *testing.T) {
	ctx := context.Background()
	svc, balanceService, _ := newTestService(t)

	value, err := svc.GetLiquidityBalance(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)
	require.Nil(t, value)

	a, err := svc.GetOrCreate(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)

	transferErr, err := balanceService.CreateTransfers(ctx, []balance.Transfer{{
		SourceBalanceID:      a.SettlementBalanceID,
		DestinationBalanceID: a.LiquidityBalanceID,
		Amount:               100,
	}})
	require.NoError(t, err)
	require.Nil(t, transferErr)

	value, err = svc.GetLiquidityBalance(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)
	require.NotNil(t, value)
	require.EqualValues(t, 100, *value)

	settled, err := svc.GetSettlementBalance(ctx, AssetOptions{Code: "USD", Scale: 2})
	require.NoError(t, err)
	require.NotNil(t, settled)
	require.EqualValues(t, 100, *settled)
}
