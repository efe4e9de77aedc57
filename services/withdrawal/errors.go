package withdrawal

import (
	"fmt"

	"connector-accounting/pkg/ledger"
)

// Error is the closed set of business outcomes for withdrawals.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrAlreadyFinalized              Error = "withdrawal already finalized"
	ErrAlreadyRolledBack             Error = "withdrawal already rolled back"
	ErrInsufficientBalance           Error = "insufficient balance"
	ErrInsufficientLiquidity         Error = "insufficient liquidity"
	ErrInsufficientSettlementBalance Error = "insufficient settlement balance"
	ErrInvalidID                     Error = "invalid withdrawal id"
	ErrUnknownAccount                Error = "unknown account"
	ErrUnknownAsset                  Error = "unknown asset"
	ErrUnknownWithdrawal             Error = "unknown withdrawal"
	ErrWithdrawalExists              Error = "withdrawal exists"
)

// CommitError is fatal: the engine reported a finalization outcome outside
// the expected taxonomy.
type CommitError struct {
	Code ledger.CommitTransferCode
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("unable to finalize withdrawal: %s", e.Code)
}
