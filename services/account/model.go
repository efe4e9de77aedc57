package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is a node in the account tree. The primary balance always exists;
// the four auxiliary balance ids are set only once the account participates
// in a credit relationship. An auxiliary balance at the child must have its
// mirror at the parent: credit-line pairs with credit-extended, debt pairs
// with lent.
type Account struct {
	ID             string    `gorm:"column:id;primaryKey"`
	AssetID        uuid.UUID `gorm:"column:asset_id"`
	Disabled       bool      `gorm:"column:disabled"`
	SuperAccountID *string   `gorm:"column:super_account_id;index"`

	// Engine balance tracking this account's funds.
	BalanceID uuid.UUID `gorm:"column:balance_id"`
	// Engine balance tracking credit extended by the super-account.
	CreditBalanceID uuid.NullUUID `gorm:"column:credit_balance_id"`
	// Engine balance tracking credit extended to sub-accounts.
	CreditExtendedBalanceID uuid.NullUUID `gorm:"column:credit_extended_balance_id"`
	// Engine balance tracking the amount borrowed from the super-account.
	DebtBalanceID uuid.NullUUID `gorm:"column:debt_balance_id"`
	// Engine balance tracking amounts lent to sub-accounts.
	LentBalanceID uuid.NullUUID `gorm:"column:lent_balance_id"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) IsSubAccount() bool {
	return a.SuperAccountID != nil
}

// AccountBalance aggregates an account's engine balances, each read with
// the accessor matching its balance kind.
type AccountBalance struct {
	Balance uint64
	// Remaining credit line available from the super-account.
	AvailableCredit uint64
	// Total un-utilized credit lines extended to all sub-accounts.
	CreditExtended uint64
	// Outstanding amount borrowed from the super-account.
	TotalBorrowed uint64
	// Total amount owed to this account across all its sub-accounts.
	TotalLent uint64
}
