package account

import "fmt"

// Error is the closed set of business outcomes for account operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrDuplicateAccountID  Error = "duplicate account id"
	ErrUnknownAccount      Error = "unknown account"
	ErrUnknownSuperAccount Error = "unknown super-account"
)

// UnknownAssetError is fatal: the account row references an asset that is
// not registered.
type UnknownAssetError struct {
	AccountID string
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("asset not found for account: %s", e.AccountID)
}
