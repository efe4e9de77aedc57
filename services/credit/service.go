package credit

import (
	"context"

	"connector-accounting/pkg/ledger"
	"connector-accounting/pkg/repository"
	"connector-accounting/services/account"
	"connector-accounting/services/asset"
	"connector-accounting/services/balance"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages lines of credit between accounts and their sub-accounts.
// Each operation applies along every edge of the ancestor chain between the
// two accounts, so intermediate accounts see their extended and borrowed
// totals move in step.
type Service struct {
	db      *gorm.DB
	account *account.Service
	asset   *asset.Service
	balance *balance.Service

	accounts repository.Repository[account.Account]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Account *account.Service
	Asset   *asset.Service
	Balance *balance.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		account: p.Account,
		asset:   p.Asset,
		balance: p.Balance,

		accounts: repository.ProvideStore[account.Account](p.DB),
	}
}

// CreditOptions names a line of credit between an account and one of its
// sub-accounts. Amount applies along each edge of the chain between them.
type CreditOptions struct {
	AccountID    string
	SubAccountID string
	Amount       uint64
}

// ExtendOptions extends credit; with AutoApply the credit is drawn
// immediately and applied to the sub-account's balance.
type ExtendOptions struct {
	CreditOptions
	AutoApply bool
}

// SettleDebtOptions collects debt; a nil Revolve replenishes the settled
// credit (the default), Revolve=false retires it.
type SettleDebtOptions struct {
	CreditOptions
	Revolve *bool
}

// Extend grants Amount of additional credit to the sub-account from each
// account along the chain up to AccountID. With AutoApply the credit is
// drawn at once: debt is recorded along the chain and the funds move from
// the account's balance to the sub-account's.
func (s *Service) Extend(ctx context.Context, opt ExtendOptions) error {
	chain, err := s.resolveChain(ctx, opt.AccountID, opt.SubAccountID)
	if err != nil {
		return err
	}
	if err := s.ensureAuxBalances(ctx, chain); err != nil {
		return err
	}

	var transfers []balance.Transfer
	for i := 0; i < len(chain)-1; i++ {
		var t balance.Transfer
		var err error
		if opt.AutoApply {
			t, err = increaseDebt(chain[i], chain[i+1], opt.Amount)
		} else {
			t, err = increaseCredit(chain[i], chain[i+1], opt.Amount)
		}
		if err != nil {
			return err
		}
		transfers = append(transfers, t)
	}
	if opt.AutoApply {
		transfers = append(transfers, balance.Transfer{
			SourceBalanceID:      chain[len(chain)-1].BalanceID,
			DestinationBalanceID: chain[0].BalanceID,
			Amount:               opt.Amount,
		})
	}

	transferErr, err := s.balance.CreateTransfers(ctx, transfers)
	if err != nil {
		return err
	}
	if transferErr != nil {
		if opt.AutoApply &&
			transferErr.Index == len(transfers)-1 &&
			transferErr.Code == ledger.TransferExceedsCredits {
			return ErrInsufficientBalance
		}
		return s.fatal(ctx, "extend", opt.CreditOptions, transferErr)
	}
	return nil
}

// Utilize draws Amount of previously extended credit: each edge converts
// credit into debt, and the funds move from the account's balance to the
// sub-account's.
func (s *Service) Utilize(ctx context.Context, opt CreditOptions) error {
	chain, err := s.resolveChain(ctx, opt.AccountID, opt.SubAccountID)
	if err != nil {
		return err
	}
	if err := s.ensureAuxBalances(ctx, chain); err != nil {
		return err
	}

	var transfers []balance.Transfer
	for i := 0; i < len(chain)-1; i++ {
		drawn, err := decreaseCredit(chain[i], chain[i+1], opt.Amount)
		if err != nil {
			return err
		}
		borrowed, err := increaseDebt(chain[i], chain[i+1], opt.Amount)
		if err != nil {
			return err
		}
		transfers = append(transfers, drawn, borrowed)
	}
	transfers = append(transfers, balance.Transfer{
		SourceBalanceID:      chain[len(chain)-1].BalanceID,
		DestinationBalanceID: chain[0].BalanceID,
		Amount:               opt.Amount,
	})

	transferErr, err := s.balance.CreateTransfers(ctx, transfers)
	if err != nil {
		return err
	}
	if transferErr != nil {
		if transferErr.Code == ledger.TransferExceedsCredits {
			if transferErr.Index == len(transfers)-1 {
				return ErrInsufficientBalance
			}
			return ErrInsufficientCredit
		}
		return s.fatal(ctx, "utilize", opt, transferErr)
	}
	return nil
}

// Revoke withdraws Amount of unused credit along each edge of the chain.
func (s *Service) Revoke(ctx context.Context, opt CreditOptions) error {
	chain, err := s.resolveChain(ctx, opt.AccountID, opt.SubAccountID)
	if err != nil {
		return err
	}

	var transfers []balance.Transfer
	for i := 0; i < len(chain)-1; i++ {
		t, err := decreaseCredit(chain[i], chain[i+1], opt.Amount)
		if err != nil {
			return err
		}
		transfers = append(transfers, t)
	}

	transferErr, err := s.balance.CreateTransfers(ctx, transfers)
	if err != nil {
		return err
	}
	if transferErr != nil {
		if transferErr.Code == ledger.TransferExceedsCredits {
			return ErrInsufficientCredit
		}
		return s.fatal(ctx, "revoke", opt, transferErr)
	}
	return nil
}

// SettleDebt collects Amount of outstanding debt from the sub-account. The
// funds move from the sub-account's balance to the account's; unless
// Revolve is false the settled amount replenishes the credit lines along
// the chain.
func (s *Service) SettleDebt(ctx context.Context, opt SettleDebtOptions) error {
	chain, err := s.resolveChain(ctx, opt.AccountID, opt.SubAccountID)
	if err != nil {
		return err
	}

	var transfers []balance.Transfer
	for i := 0; i < len(chain)-1; i++ {
		settled, err := decreaseDebt(chain[i], chain[i+1], opt.Amount)
		if err != nil {
			return err
		}
		transfers = append(transfers, settled)
		if opt.Revolve == nil || *opt.Revolve {
			revolved, err := increaseCredit(chain[i], chain[i+1], opt.Amount)
			if err != nil {
				return err
			}
			transfers = append(transfers, revolved)
		}
	}
	transfers = append(transfers, balance.Transfer{
		SourceBalanceID:      chain[0].BalanceID,
		DestinationBalanceID: chain[len(chain)-1].BalanceID,
		Amount:               opt.Amount,
	})

	transferErr, err := s.balance.CreateTransfers(ctx, transfers)
	if err != nil {
		return err
	}
	if transferErr != nil {
		if transferErr.Code == ledger.TransferExceedsCredits {
			if transferErr.Index == len(transfers)-1 {
				return ErrInsufficientBalance
			}
			return ErrInsufficientDebt
		}
		return s.fatal(ctx, "settle debt", opt.CreditOptions, transferErr)
	}
	return nil
}

// resolveChain returns the accounts from the sub-account up to and including
// the account named by accountID, in child-to-ancestor order.
func (s *Service) resolveChain(ctx context.Context, accountID, subAccountID string) ([]*account.Account, error) {
	chain, err := s.account.GetWithAncestors(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrUnknownSubAccount
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].ID == accountID {
			return chain[:i+1], nil
		}
	}
	if accountID == subAccountID {
		return nil, ErrSameAccounts
	}
	a, err := s.account.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return nil, ErrUnrelatedSubAccount
	}
	return nil, ErrUnknownAccount
}

// ensureAuxBalances provisions the auxiliary balances the chain's edges
// need and are still missing: the credit-line/debt pair on each child and
// the credit-extended/lent mirror pair on each parent. Pairs are created
// whole as one linked engine batch and patched into the metadata rows in
// one transaction; a half-present pair is left for the edge builders to
// surface as a consistency fault.
func (s *Service) ensureAuxBalances(ctx context.Context, chain []*account.Account) error {
	a, err := s.asset.GetByID(ctx, chain[0].AssetID)
	if err != nil {
		return err
	}
	if a == nil {
		return &account.UnknownAssetError{AccountID: chain[0].ID}
	}

	var newBalances []balance.BalanceOptions
	patches := map[string]map[string]any{}
	for i, acct := range chain {
		patch := map[string]any{}
		if i < len(chain)-1 && !acct.CreditBalanceID.Valid && !acct.DebtBalanceID.Valid {
			acct.CreditBalanceID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
			acct.DebtBalanceID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
			patch["credit_balance_id"] = acct.CreditBalanceID.UUID
			patch["debt_balance_id"] = acct.DebtBalanceID.UUID
			newBalances = append(newBalances,
				balance.BalanceOptions{ID: acct.CreditBalanceID.UUID, Unit: a.Unit},
				balance.BalanceOptions{ID: acct.DebtBalanceID.UUID, Unit: a.Unit},
			)
		}
		if i > 0 && !acct.CreditExtendedBalanceID.Valid && !acct.LentBalanceID.Valid {
			acct.CreditExtendedBalanceID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
			acct.LentBalanceID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
			patch["credit_extended_balance_id"] = acct.CreditExtendedBalanceID.UUID
			patch["lent_balance_id"] = acct.LentBalanceID.UUID
			newBalances = append(newBalances,
				balance.BalanceOptions{ID: acct.CreditExtendedBalanceID.UUID, Unit: a.Unit, DebitBalance: true},
				balance.BalanceOptions{ID: acct.LentBalanceID.UUID, Unit: a.Unit, DebitBalance: true},
			)
		}
		if len(patch) > 0 {
			patches[acct.ID] = patch
		}
	}
	if len(newBalances) == 0 {
		return nil
	}

	if err := s.balance.CreateBalances(ctx, newBalances); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, patch := range patches {
			if err := s.accounts.WithTrx(tx).Update(ctx, id, patch); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) fatal(ctx context.Context, op string, opt CreditOptions, transferErr *balance.TransferError) error {
	span := trace.SpanFromContext(ctx)
	zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	).Error("unexpected credit transfer outcome",
		zap.String("operation", op),
		zap.String("account_id", opt.AccountID),
		zap.String("sub_account_id", opt.SubAccountID),
		zap.Int("index", transferErr.Index),
		zap.String("code", transferErr.Code.String()),
	)
	return transferErr
}

// increaseCredit extends credit along one edge: the parent's credit-extended
// mirror funds the child's credit-line balance.
func increaseCredit(child, parent *account.Account, amount uint64) (balance.Transfer, error) {
	if !child.CreditBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: child.ID}
	}
	if !parent.CreditExtendedBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: parent.ID}
	}
	return balance.Transfer{
		SourceBalanceID:      parent.CreditExtendedBalanceID.UUID,
		DestinationBalanceID: child.CreditBalanceID.UUID,
		Amount:               amount,
	}, nil
}

func decreaseCredit(child, parent *account.Account, amount uint64) (balance.Transfer, error) {
	if !child.CreditBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: child.ID}
	}
	if !parent.CreditExtendedBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: parent.ID}
	}
	return balance.Transfer{
		SourceBalanceID:      child.CreditBalanceID.UUID,
		DestinationBalanceID: parent.CreditExtendedBalanceID.UUID,
		Amount:               amount,
	}, nil
}

// increaseDebt records borrowing along one edge: the parent's lent mirror
// funds the child's debt balance.
func increaseDebt(child, parent *account.Account, amount uint64) (balance.Transfer, error) {
	if !child.DebtBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: child.ID}
	}
	if !parent.LentBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: parent.ID}
	}
	return balance.Transfer{
		SourceBalanceID:      parent.LentBalanceID.UUID,
		DestinationBalanceID: child.DebtBalanceID.UUID,
		Amount:               amount,
	}, nil
}

func decreaseDebt(child, parent *account.Account, amount uint64) (balance.Transfer, error) {
	if !child.DebtBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: child.ID}
	}
	if !parent.LentBalanceID.Valid {
		return balance.Transfer{}, &balance.UnknownBalanceError{AccountID: parent.ID}
	}
	return balance.Transfer{
		SourceBalanceID:      child.DebtBalanceID.UUID,
		DestinationBalanceID: parent.LentBalanceID.UUID,
		Amount:               amount,
	}, nil
}
