package account

import (
	"context"
	"errors"

	"connector-accounting/pkg/db/option"
	"connector-accounting/pkg/db/pagination"
	"connector-accounting/pkg/ledger"
	"connector-accounting/pkg/repository"
	"connector-accounting/services/asset"
	"connector-accounting/services/balance"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxChainDepth bounds ancestor traversal. A chain this deep means the
// hierarchy data is corrupt (or someone built a pathological tree).
const MaxChainDepth = 64

type Service struct {
	db      *gorm.DB
	asset   *asset.Service
	balance *balance.Service

	accounts repository.Repository[Account]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Asset   *asset.Service
	Balance *balance.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		asset:   p.Asset,
		balance: p.Balance,

		accounts: repository.ProvideStore[Account](p.DB),
	}
}

// AccountOptions creates a root account holding the given asset.
type AccountOptions struct {
	ID       string
	Disabled bool
	Asset    asset.AssetOptions
}

// SubAccountOptions creates an account under an existing one. The asset is
// inherited from the super-account.
type SubAccountOptions struct {
	ID             string
	Disabled       bool
	SuperAccountID string
}

// CreateAccount registers a root account, resolving or creating its asset
// and allocating its primary engine balance.
func (s *Service) CreateAccount(ctx context.Context, opt AccountOptions) (*Account, error) {
	// Asset creation is deliberately outside the account transaction; see
	// asset.Service.GetOrCreate.
	a, err := s.asset.GetOrCreate(ctx, opt.Asset)
	if err != nil {
		return nil, err
	}

	newAccount := &Account{
		ID:        opt.ID,
		AssetID:   a.ID,
		Disabled:  opt.Disabled,
		BalanceID: uuid.New(),
	}
	if newAccount.ID == "" {
		newAccount.ID = uuid.NewString()
	}

	if err := s.balance.CreateBalances(ctx, []balance.BalanceOptions{
		{ID: newAccount.BalanceID, Unit: a.Unit},
	}); err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, newAccount); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateAccountID
		}
		return nil, err
	}
	return newAccount, nil
}

// CreateSubAccount registers an account under opt.SuperAccountID, wiring the
// child's credit-line and debt balances together with the parent's
// credit-extended and lent mirrors. All new balances go to the engine as one
// linked batch before the metadata rows are committed.
func (s *Service) CreateSubAccount(ctx context.Context, opt SubAccountOptions) (*Account, error) {
	span := trace.SpanFromContext(ctx)

	superAccount, err := s.accounts.FindOne(ctx, &Account{ID: opt.SuperAccountID})
	if err != nil {
		return nil, err
	}
	if superAccount == nil {
		return nil, ErrUnknownSuperAccount
	}
	a, err := s.asset.GetByID(ctx, superAccount.AssetID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &UnknownAssetError{AccountID: superAccount.ID}
	}

	newAccount := &Account{
		ID:              opt.ID,
		AssetID:         a.ID,
		Disabled:        opt.Disabled,
		SuperAccountID:  &superAccount.ID,
		BalanceID:       uuid.New(),
		CreditBalanceID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		DebtBalanceID:   uuid.NullUUID{UUID: uuid.New(), Valid: true},
	}
	if newAccount.ID == "" {
		newAccount.ID = uuid.NewString()
	}

	newBalances := []balance.BalanceOptions{
		{ID: newAccount.CreditBalanceID.UUID, Unit: a.Unit},
		{ID: newAccount.DebtBalanceID.UUID, Unit: a.Unit},
	}
	if superAccount.CreditExtendedBalanceID.Valid != superAccount.LentBalanceID.Valid {
		zap.L().With(
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		).Warn("super-account is missing one of its mirror balances",
			zap.String("account_id", superAccount.ID),
		)
	}
	superAccountPatch := map[string]any{}
	if !superAccount.CreditExtendedBalanceID.Valid {
		id := uuid.New()
		superAccountPatch["credit_extended_balance_id"] = id
		newBalances = append(newBalances, balance.BalanceOptions{ID: id, Unit: a.Unit, DebitBalance: true})
	}
	if !superAccount.LentBalanceID.Valid {
		id := uuid.New()
		superAccountPatch["lent_balance_id"] = id
		newBalances = append(newBalances, balance.BalanceOptions{ID: id, Unit: a.Unit, DebitBalance: true})
	}
	newBalances = append(newBalances, balance.BalanceOptions{ID: newAccount.BalanceID, Unit: a.Unit})

	if err := s.balance.CreateBalances(ctx, newBalances); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(superAccountPatch) > 0 {
			if err := s.accounts.WithTrx(tx).Update(ctx, superAccount.ID, superAccountPatch); err != nil {
				return err
			}
		}
		return s.accounts.WithTrx(tx).Create(ctx, newAccount)
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateAccountID
		}
		return nil, err
	}
	return newAccount, nil
}

// Update patches the account's disabled flag.
func (s *Service) Update(ctx context.Context, id string, disabled bool) (*Account, error) {
	a, err := s.accounts.FindOne(ctx, &Account{ID: id})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrUnknownAccount
	}
	if err := s.accounts.Update(ctx, id, map[string]any{"disabled": disabled}); err != nil {
		return nil, err
	}
	a.Disabled = disabled
	return a, nil
}

// Get returns the account with the given id, or nil if none exists.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.accounts.FindOne(ctx, &Account{ID: id})
}

// GetWithAncestors returns the account followed by its ancestors in
// child-to-root order, resolved in a single recursive query. It returns nil
// when the account does not exist.
func (s *Service) GetWithAncestors(ctx context.Context, id string) ([]*Account, error) {
	var chain []*Account
	err := s.db.WithContext(ctx).Raw(`
		WITH RECURSIVE chain AS (
			SELECT accounts.*, 0 AS depth FROM accounts WHERE id = ?
			UNION ALL
			SELECT accounts.*, chain.depth + 1 FROM accounts
			JOIN chain ON accounts.id = chain.super_account_id
			WHERE chain.depth < ?
		)
		SELECT * FROM chain ORDER BY depth`, id, MaxChainDepth).Scan(&chain).Error
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// GetSubAccounts returns one page of the direct sub-accounts of the given
// account, ordered by id, with an opaque cursor for the next page.
func (s *Service) GetSubAccounts(ctx context.Context, id string, page pagination.Pagination) ([]*Account, *pagination.PageInfo, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "id", Allow: map[string]bool{"id": true}}),
		option.WithLimit(limit + 1),
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.GT, Value: cursor.ID}))
	}

	subAccounts, err := s.accounts.Find(ctx, &Account{SuperAccountID: &id}, opts...)
	if err != nil {
		return nil, nil, err
	}
	pageInfo := pagination.BuildCursorPageInfo(subAccounts, limit, func(a *Account) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{ID: a.ID})
		return cursor
	})
	if len(subAccounts) > limit {
		subAccounts = subAccounts[:limit]
	}
	return subAccounts, pageInfo, nil
}

// GetBalance aggregates the account's engine balances, or returns nil if
// the account does not exist. A metadata row whose balances are absent from
// the engine is a consistency fault, not a business outcome.
func (s *Service) GetBalance(ctx context.Context, id string) (*AccountBalance, error) {
	a, err := s.accounts.FindOne(ctx, &Account{ID: id})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}

	ids := []uuid.UUID{a.BalanceID}
	for _, aux := range []uuid.NullUUID{
		a.CreditBalanceID,
		a.CreditExtendedBalanceID,
		a.DebtBalanceID,
		a.LentBalanceID,
	} {
		if aux.Valid {
			ids = append(ids, aux.UUID)
		}
	}
	balances, err := s.balance.GetBalances(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, &balance.UnknownBalanceError{AccountID: a.ID}
	}

	var accountBalance AccountBalance
	for _, b := range balances {
		switch {
		case b.ID == a.BalanceID:
			accountBalance.Balance = ledger.CreditBalance(b)
		case a.CreditBalanceID.Valid && b.ID == a.CreditBalanceID.UUID:
			accountBalance.AvailableCredit = ledger.CreditBalance(b)
		case a.CreditExtendedBalanceID.Valid && b.ID == a.CreditExtendedBalanceID.UUID:
			accountBalance.CreditExtended = ledger.DebitBalance(b)
		case a.DebtBalanceID.Valid && b.ID == a.DebtBalanceID.UUID:
			accountBalance.TotalBorrowed = ledger.CreditBalance(b)
		case a.LentBalanceID.Valid && b.ID == a.LentBalanceID.UUID:
			accountBalance.TotalLent = ledger.DebitBalance(b)
		}
	}
	return &accountBalance, nil
}
