package transfer

import (
	"fmt"

	"connector-accounting/pkg/ledger"
)

// Error is the closed set of business outcomes for payments.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInsufficientBalance       Error = "insufficient balance"
	ErrInsufficientLiquidity     Error = "insufficient liquidity"
	ErrInvalidSourceAmount       Error = "invalid source amount"
	ErrInvalidDestinationAmount  Error = "invalid destination amount"
	ErrSameAccounts              Error = "same accounts"
	ErrTransferAlreadyCommitted  Error = "transfer already committed"
	ErrTransferAlreadyRejected   Error = "transfer already rejected"
	ErrTransferExpired           Error = "transfer expired"
	ErrUnknownSourceAccount      Error = "unknown source account"
	ErrUnknownDestinationAccount Error = "unknown destination account"
)

// CommitError is fatal: the engine reported a finalization outcome outside
// the expected taxonomy.
type CommitError struct {
	Code ledger.CommitTransferCode
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("unable to finalize transfer: %s", e.Code)
}
