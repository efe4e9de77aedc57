package asset

import (
	"context"
	"errors"

	"connector-accounting/pkg/ledger"
	"connector-accounting/pkg/repository"
	"connector-accounting/services/balance"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	balance *balance.Service

	assets repository.Repository[Asset]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Balance *balance.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		balance: p.Balance,

		assets: repository.ProvideStore[Asset](p.DB),
	}
}

// AssetOptions identifies an asset by currency code and scale.
type AssetOptions struct {
	Code  string
	Scale int32
}

// Get returns the asset registered for (code, scale), or nil if none is.
func (s *Service) Get(ctx context.Context, opt AssetOptions) (*Asset, error) {
	return s.assets.FindOne(ctx, &Asset{Code: opt.Code, Scale: opt.Scale})
}

// GetByID returns the asset with the given id, or nil if none is.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Asset, error) {
	return s.assets.FindOne(ctx, &Asset{ID: id})
}

// GetOrCreate registers (code, scale) if it is new, allocating its unit tag
// and creating the liquidity and settlement balances in the ledger engine.
//
// The asset row is not rolled back when engine balance creation fails: the
// unit column is a serial whose allocation cannot be retried safely inside
// a rolled-back transaction. A partially created asset is recovered by
// calling GetOrCreate again, which completes balance creation without
// duplicating the row.
func (s *Service) GetOrCreate(ctx context.Context, opt AssetOptions) (*Asset, error) {
	a, err := s.Get(ctx, opt)
	if err != nil {
		return nil, err
	}
	if a == nil {
		a = &Asset{
			ID:                  uuid.New(),
			Code:                opt.Code,
			Scale:               opt.Scale,
			LiquidityBalanceID:  uuid.New(),
			SettlementBalanceID: uuid.New(),
		}
		if err := s.assets.Create(ctx, a); err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, err
			}
			// Lost a concurrent registration race; adopt the winner's row.
			a, err = s.Get(ctx, opt)
			if err != nil {
				return nil, err
			}
			if a == nil {
				return nil, gorm.ErrDuplicatedKey
			}
		}
	}

	if err := s.ensureBalances(ctx, a); err != nil {
		zap.L().Error("failed to create asset balances",
			zap.String("asset_code", a.Code),
			zap.Int32("asset_scale", a.Scale),
			zap.Error(err),
		)
		return nil, err
	}

	return a, nil
}

// ensureBalances creates the asset's engine balance pair. The pair is a
// linked batch, so either both balances exist or neither does; a duplicate
// means an earlier call already created them and is not an error.
func (s *Service) ensureBalances(ctx context.Context, a *Asset) error {
	err := s.balance.CreateBalances(ctx, []balance.BalanceOptions{
		{ID: a.LiquidityBalanceID, Unit: a.Unit},
		{ID: a.SettlementBalanceID, Unit: a.Unit, DebitBalance: true},
	})
	var createErr *balance.CreateBalanceError
	if errors.As(err, &createErr) && createErr.Code == ledger.BalanceExists {
		return nil
	}
	return err
}

// GetLiquidityBalance returns the asset's available liquidity, or nil if
// the asset or its liquidity balance does not exist.
func (s *Service) GetLiquidityBalance(ctx context.Context, opt AssetOptions) (*uint64, error) {
	a, err := s.Get(ctx, opt)
	if err != nil || a == nil {
		return nil, err
	}
	balances, err := s.balance.GetBalances(ctx, []uuid.UUID{a.LiquidityBalanceID})
	if err != nil {
		return nil, err
	}
	if len(balances) != 1 {
		return nil, nil
	}
	value := ledger.CreditBalance(balances[0])
	return &value, nil
}

// GetSettlementBalance returns the net amount funded from outside the
// system, or nil if the asset or its settlement balance does not exist.
func (s *Service) GetSettlementBalance(ctx context.Context, opt AssetOptions) (*uint64, error) {
	a, err := s.Get(ctx, opt)
	if err != nil || a == nil {
		return nil, err
	}
	balances, err := s.balance.GetBalances(ctx, []uuid.UUID{a.SettlementBalanceID})
	if err != nil {
		return nil, err
	}
	if len(balances) != 1 {
		return nil, nil
	}
	value := ledger.DebitBalance(balances[0])
	return &value, nil
}
