package credit

// Error is the closed set of business outcomes for credit operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInsufficientBalance Error = "insufficient balance"
	ErrInsufficientCredit  Error = "insufficient credit"
	ErrInsufficientDebt    Error = "insufficient debt"
	ErrSameAccounts        Error = "same accounts"
	ErrUnknownAccount      Error = "unknown account"
	ErrUnknownSubAccount   Error = "unknown sub-account"
	ErrUnrelatedSubAccount Error = "unrelated sub-account"
)
