package deposit

// Error is the closed set of business outcomes for deposits.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInvalidID      Error = "invalid deposit id"
	ErrUnknownAccount Error = "unknown account"
	// ErrDepositExists reports an idempotent duplicate: the deposit was
	// already applied and has not been applied again.
	ErrDepositExists Error = "deposit exists"
)
