// Package ledger defines the contract the accounting core requires from the
// external double-entry ledger engine: batch balance creation, batch transfer
// creation with optional two-phase commit, and batch commit/reject of pending
// transfers. All batch operations honor "linked" all-or-nothing semantics and
// report per-entry result codes.
package ledger

import (
	"context"

	"github.com/google/uuid"
)

// BalanceFlags constrain a ledger balance to one side of the sheet.
type BalanceFlags uint16

const (
	// BalanceLinked chains this entry to the next one in the batch.
	BalanceLinked BalanceFlags = 1 << iota
	// BalanceDebitsMustNotExceedCredits marks an asset/liability balance whose
	// usable value is credits_accepted - debits_accepted.
	BalanceDebitsMustNotExceedCredits
	// BalanceCreditsMustNotExceedDebits marks a contra/debt balance whose
	// usable value is debits_accepted - credits_accepted.
	BalanceCreditsMustNotExceedDebits
)

// Balance is an engine-resident numeric account. Totals are owned and mutated
// exclusively by the engine; the core only reads them.
type Balance struct {
	ID              uuid.UUID
	Unit            int32
	Flags           BalanceFlags
	DebitsReserved  uint64
	DebitsAccepted  uint64
	CreditsReserved uint64
	CreditsAccepted uint64
}

// TransferFlags modify how the engine applies a transfer.
type TransferFlags uint16

const (
	// TransferLinked chains this entry to the next one in the batch.
	TransferLinked TransferFlags = 1 << iota
	// TransferTwoPhaseCommit reserves funds at creation; a separate commit or
	// reject entry finalizes the transfer.
	TransferTwoPhaseCommit
)

// Transfer moves Amount from the debit balance to the credit balance.
type Transfer struct {
	ID              uuid.UUID
	DebitBalanceID  uuid.UUID
	CreditBalanceID uuid.UUID
	Amount          uint64
	Flags           TransferFlags
	// Timeout is the engine-side reservation window, in nanoseconds, for
	// two-phase transfers. Zero for single-phase transfers.
	Timeout uint64
}

// CommitFlags modify a commit entry.
type CommitFlags uint16

const (
	// CommitLinked chains this entry to the next one in the batch.
	CommitLinked CommitFlags = 1 << iota
	// CommitReject voids the pending transfer instead of accepting it.
	CommitReject
)

// Commit finalizes a pending two-phase transfer.
type Commit struct {
	ID    uuid.UUID
	Flags CommitFlags
}

// CreateBalanceCode is the per-entry result of CreateAccounts.
type CreateBalanceCode uint32

const (
	BalanceOK CreateBalanceCode = iota
	BalanceLinkedEventFailed
	BalanceExists
	BalanceExistsWithDifferentUnit
	BalanceExistsWithDifferentFlags
)

// CreateTransferCode is the per-entry result of CreateTransfers.
type CreateTransferCode uint32

const (
	TransferOK CreateTransferCode = iota
	TransferLinkedEventFailed
	TransferExists
	TransferExistsWithDifferentDebitBalance
	TransferExistsWithDifferentCreditBalance
	TransferExistsWithDifferentAmount
	TransferExistsWithDifferentFlags
	TransferExistsWithDifferentTimeout
	TransferExistsAndAlreadyCommitted
	TransferExistsAndAlreadyRejected
	TransferDebitBalanceNotFound
	TransferCreditBalanceNotFound
	TransferExceedsCredits
	TransferExceedsDebits
)

// CommitTransferCode is the per-entry result of CommitTransfers.
type CommitTransferCode uint32

const (
	CommitOK CommitTransferCode = iota
	CommitLinkedEventFailed
	CommitTransferNotFound
	CommitTransferNotPending
	CommitTransferExpired
	CommitAlreadyCommitted
	CommitAlreadyCommittedButAccepted
	CommitAlreadyCommittedButRejected
)

// BalanceResult reports a failed CreateAccounts entry.
type BalanceResult struct {
	Index int
	Code  CreateBalanceCode
}

// TransferResult reports a failed CreateTransfers entry.
type TransferResult struct {
	Index int
	Code  CreateTransferCode
}

// CommitResult reports a failed CommitTransfers entry.
type CommitResult struct {
	Index int
	Code  CommitTransferCode
}

// Client is the engine connection. Batches are atomic when entries are
// linked: either every linked entry applies or none do. Result slices contain
// only failed entries, ordered by index.
type Client interface {
	CreateAccounts(ctx context.Context, balances []Balance) ([]BalanceResult, error)
	LookupAccounts(ctx context.Context, ids []uuid.UUID) ([]Balance, error)
	CreateTransfers(ctx context.Context, transfers []Transfer) ([]TransferResult, error)
	CommitTransfers(ctx context.Context, commits []Commit) ([]CommitResult, error)
}

// CreditBalance reports the usable value of a balance flagged
// debits-must-not-exceed-credits.
func CreditBalance(b Balance) uint64 {
	return b.CreditsAccepted - b.DebitsAccepted
}

// DebitBalance reports the usable value of a balance flagged
// credits-must-not-exceed-debits.
func DebitBalance(b Balance) uint64 {
	return b.DebitsAccepted - b.CreditsAccepted
}
