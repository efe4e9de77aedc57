package ledger

func (c CreateBalanceCode) String() string {
	switch c {
	case BalanceOK:
		return "ok"
	case BalanceLinkedEventFailed:
		return "linked_event_failed"
	case BalanceExists:
		return "exists"
	case BalanceExistsWithDifferentUnit:
		return "exists_with_different_unit"
	case BalanceExistsWithDifferentFlags:
		return "exists_with_different_flags"
	}
	return "unknown"
}

func (c CreateTransferCode) String() string {
	switch c {
	case TransferOK:
		return "ok"
	case TransferLinkedEventFailed:
		return "linked_event_failed"
	case TransferExists:
		return "exists"
	case TransferExistsWithDifferentDebitBalance:
		return "exists_with_different_debit_balance"
	case TransferExistsWithDifferentCreditBalance:
		return "exists_with_different_credit_balance"
	case TransferExistsWithDifferentAmount:
		return "exists_with_different_amount"
	case TransferExistsWithDifferentFlags:
		return "exists_with_different_flags"
	case TransferExistsWithDifferentTimeout:
		return "exists_with_different_timeout"
	case TransferExistsAndAlreadyCommitted:
		return "exists_and_already_committed"
	case TransferExistsAndAlreadyRejected:
		return "exists_and_already_rejected"
	case TransferDebitBalanceNotFound:
		return "debit_balance_not_found"
	case TransferCreditBalanceNotFound:
		return "credit_balance_not_found"
	case TransferExceedsCredits:
		return "exceeds_credits"
	case TransferExceedsDebits:
		return "exceeds_debits"
	}
	return "unknown"
}

func (c CommitTransferCode) String() string {
	switch c {
	case CommitOK:
		return "ok"
	case CommitLinkedEventFailed:
		return "linked_event_failed"
	case CommitTransferNotFound:
		return "transfer_not_found"
	case CommitTransferNotPending:
		return "transfer_not_pending"
	case CommitTransferExpired:
		return "transfer_expired"
	case CommitAlreadyCommitted:
		return "already_committed"
	case CommitAlreadyCommittedButAccepted:
		return "already_committed_but_accepted"
	case CommitAlreadyCommittedButRejected:
		return "already_committed_but_rejected"
	}
	return "unknown"
}
