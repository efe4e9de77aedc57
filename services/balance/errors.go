package balance

import (
	"fmt"

	"connector-accounting/pkg/ledger"
)

// CreateBalanceError is fatal: balance creation batches are expected to
// succeed apart from idempotent retries, which callers detect by code.
type CreateBalanceError struct {
	Code ledger.CreateBalanceCode
}

func (e *CreateBalanceError) Error() string {
	return fmt.Sprintf("unable to create balance: %s", e.Code)
}

// TransferError reports the first transfer in a linked batch that the
// engine rejected.
type TransferError struct {
	Index int
	Code  ledger.CreateTransferCode
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %d rejected: %s", e.Index, e.Code)
}

// UnknownBalanceError is fatal: it means a balance recorded for the account
// in metadata does not exist in the engine.
type UnknownBalanceError struct {
	AccountID string
}

func (e *UnknownBalanceError) Error() string {
	return fmt.Sprintf("balance not found for account: %s", e.AccountID)
}
