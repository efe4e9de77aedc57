// Package inmem is a single-process implementation of the ledger engine
// contract. It enforces one-sided balance limits, linked all-or-nothing
// batches, duplicate-id detection and two-phase reservation with expiry,
// which makes it suitable both for local development and as the engine
// backing the test suite.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"connector-accounting/pkg/ledger"
)

type transferState uint8

const (
	statePending transferState = iota
	stateCommitted
	stateRejected
	stateExpired
)

type transfer struct {
	ledger.Transfer
	state     transferState
	expiresAt time.Time
}

// Engine is an in-memory ledger engine. The zero value is not usable; create
// one with New.
type Engine struct {
	mu        sync.Mutex
	balances  map[uuid.UUID]*ledger.Balance
	transfers map[uuid.UUID]*transfer
	now       func() time.Time
}

func New() *Engine {
	return &Engine{
		balances:  make(map[uuid.UUID]*ledger.Balance),
		transfers: make(map[uuid.UUID]*transfer),
		now:       time.Now,
	}
}

// SetNow overrides the engine clock. Tests use it to trigger reservation
// expiry without waiting.
func (e *Engine) SetNow(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *Engine) CreateAccounts(ctx context.Context, balances []ledger.Balance) ([]ledger.BalanceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var results []ledger.BalanceResult
	for start := 0; start < len(balances); {
		end := chainEnd(start, len(balances), func(i int) bool {
			return balances[i].Flags&ledger.BalanceLinked != 0
		})
		failed, code := -1, ledger.BalanceOK
		for i := start; i < end; i++ {
			if c := e.checkBalance(balances[i]); c != ledger.BalanceOK {
				failed, code = i, c
				break
			}
		}
		if failed >= 0 {
			for i := start; i < end; i++ {
				if i == failed {
					results = append(results, ledger.BalanceResult{Index: i, Code: code})
				} else {
					results = append(results, ledger.BalanceResult{Index: i, Code: ledger.BalanceLinkedEventFailed})
				}
			}
		} else {
			for i := start; i < end; i++ {
				b := balances[i]
				b.Flags &^= ledger.BalanceLinked
				e.balances[b.ID] = &b
			}
		}
		start = end
	}
	return results, nil
}

func (e *Engine) checkBalance(b ledger.Balance) ledger.CreateBalanceCode {
	existing, ok := e.balances[b.ID]
	if !ok {
		return ledger.BalanceOK
	}
	if existing.Unit != b.Unit {
		return ledger.BalanceExistsWithDifferentUnit
	}
	if existing.Flags != b.Flags&^ledger.BalanceLinked {
		return ledger.BalanceExistsWithDifferentFlags
	}
	return ledger.BalanceExists
}

func (e *Engine) LookupAccounts(ctx context.Context, ids []uuid.UUID) ([]ledger.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireDue()

	found := make([]ledger.Balance, 0, len(ids))
	for _, id := range ids {
		if b, ok := e.balances[id]; ok {
			found = append(found, *b)
		}
	}
	return found, nil
}

func (e *Engine) CreateTransfers(ctx context.Context, transfers []ledger.Transfer) ([]ledger.TransferResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireDue()

	var results []ledger.TransferResult
	for start := 0; start < len(transfers); {
		end := chainEnd(start, len(transfers), func(i int) bool {
			return transfers[i].Flags&ledger.TransferLinked != 0
		})
		failed, code := -1, ledger.TransferOK
		applied := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			if c := e.applyTransfer(transfers[i]); c != ledger.TransferOK {
				failed, code = i, c
				break
			}
			applied = append(applied, i)
		}
		if failed >= 0 {
			for _, i := range applied {
				e.revertTransfer(transfers[i])
			}
			for i := start; i < end; i++ {
				if i == failed {
					results = append(results, ledger.TransferResult{Index: i, Code: code})
				} else {
					results = append(results, ledger.TransferResult{Index: i, Code: ledger.TransferLinkedEventFailed})
				}
			}
		}
		start = end
	}
	return results, nil
}

func (e *Engine) applyTransfer(t ledger.Transfer) ledger.CreateTransferCode {
	if existing, ok := e.transfers[t.ID]; ok {
		return existsCode(existing, t)
	}
	debit, ok := e.balances[t.DebitBalanceID]
	if !ok {
		return ledger.TransferDebitBalanceNotFound
	}
	credit, ok := e.balances[t.CreditBalanceID]
	if !ok {
		return ledger.TransferCreditBalanceNotFound
	}
	if debit.Flags&ledger.BalanceDebitsMustNotExceedCredits != 0 &&
		debit.DebitsAccepted+debit.DebitsReserved+t.Amount > debit.CreditsAccepted {
		return ledger.TransferExceedsCredits
	}
	if credit.Flags&ledger.BalanceCreditsMustNotExceedDebits != 0 &&
		credit.CreditsAccepted+credit.CreditsReserved+t.Amount > credit.DebitsAccepted {
		return ledger.TransferExceedsDebits
	}

	stored := &transfer{Transfer: t}
	stored.Flags &^= ledger.TransferLinked
	if t.Flags&ledger.TransferTwoPhaseCommit != 0 {
		debit.DebitsReserved += t.Amount
		credit.CreditsReserved += t.Amount
		if t.Timeout > 0 {
			stored.expiresAt = e.now().Add(time.Duration(t.Timeout))
		}
	} else {
		debit.DebitsAccepted += t.Amount
		credit.CreditsAccepted += t.Amount
		stored.state = stateCommitted
	}
	e.transfers[t.ID] = stored
	return ledger.TransferOK
}

func (e *Engine) revertTransfer(t ledger.Transfer) {
	debit := e.balances[t.DebitBalanceID]
	credit := e.balances[t.CreditBalanceID]
	if t.Flags&ledger.TransferTwoPhaseCommit != 0 {
		debit.DebitsReserved -= t.Amount
		credit.CreditsReserved -= t.Amount
	} else {
		debit.DebitsAccepted -= t.Amount
		credit.CreditsAccepted -= t.Amount
	}
	delete(e.transfers, t.ID)
}

// expireDue voids every pending reservation whose deadline has passed,
// releasing the reserved amounts on both balances. Expiry is detected
// lazily, under the engine lock, before each operation observes or
// mutates state. An expired transfer stays recorded so later commit or
// reject attempts report transfer_expired rather than not_found.
func (e *Engine) expireDue() {
	now := e.now()
	for _, t := range e.transfers {
		if t.state != statePending || t.expiresAt.IsZero() || !now.After(t.expiresAt) {
			continue
		}
		debit := e.balances[t.DebitBalanceID]
		credit := e.balances[t.CreditBalanceID]
		debit.DebitsReserved -= t.Amount
		credit.CreditsReserved -= t.Amount
		t.state = stateExpired
	}
}

func existsCode(existing *transfer, t ledger.Transfer) ledger.CreateTransferCode {
	switch {
	case existing.DebitBalanceID != t.DebitBalanceID:
		return ledger.TransferExistsWithDifferentDebitBalance
	case existing.CreditBalanceID != t.CreditBalanceID:
		return ledger.TransferExistsWithDifferentCreditBalance
	case existing.Amount != t.Amount:
		return ledger.TransferExistsWithDifferentAmount
	case existing.Flags != t.Flags&^ledger.TransferLinked:
		return ledger.TransferExistsWithDifferentFlags
	case existing.Timeout != t.Timeout:
		return ledger.TransferExistsWithDifferentTimeout
	}
	if existing.Flags&ledger.TransferTwoPhaseCommit != 0 {
		switch existing.state {
		case stateCommitted:
			return ledger.TransferExistsAndAlreadyCommitted
		case stateRejected:
			return ledger.TransferExistsAndAlreadyRejected
		}
	}
	return ledger.TransferExists
}

func (e *Engine) CommitTransfers(ctx context.Context, commits []ledger.Commit) ([]ledger.CommitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireDue()

	var results []ledger.CommitResult
	for start := 0; start < len(commits); {
		end := chainEnd(start, len(commits), func(i int) bool {
			return commits[i].Flags&ledger.CommitLinked != 0
		})
		failed, code := -1, ledger.CommitOK
		seen := make(map[uuid.UUID]bool, end-start)
		for i := start; i < end; i++ {
			// The checks run before any entry of the chain is applied, so a
			// repeated id must be caught here or it would commit twice.
			if firstReject, dup := seen[commits[i].ID]; dup {
				failed, code = i, duplicateCommitCode(firstReject, commits[i].Flags&ledger.CommitReject != 0)
				break
			}
			if c := e.checkCommit(commits[i]); c != ledger.CommitOK {
				failed, code = i, c
				break
			}
			seen[commits[i].ID] = commits[i].Flags&ledger.CommitReject != 0
		}
		if failed >= 0 {
			for i := start; i < end; i++ {
				if i == failed {
					results = append(results, ledger.CommitResult{Index: i, Code: code})
				} else {
					results = append(results, ledger.CommitResult{Index: i, Code: ledger.CommitLinkedEventFailed})
				}
			}
		} else {
			for i := start; i < end; i++ {
				e.applyCommit(commits[i])
			}
		}
		start = end
	}
	return results, nil
}

func (e *Engine) checkCommit(c ledger.Commit) ledger.CommitTransferCode {
	t, ok := e.transfers[c.ID]
	if !ok {
		return ledger.CommitTransferNotFound
	}
	if t.Flags&ledger.TransferTwoPhaseCommit == 0 {
		return ledger.CommitTransferNotPending
	}
	reject := c.Flags&ledger.CommitReject != 0
	switch t.state {
	case stateCommitted:
		if reject {
			return ledger.CommitAlreadyCommittedButAccepted
		}
		return ledger.CommitAlreadyCommitted
	case stateRejected:
		if reject {
			return ledger.CommitAlreadyCommitted
		}
		return ledger.CommitAlreadyCommittedButRejected
	case stateExpired:
		return ledger.CommitTransferExpired
	}
	return ledger.CommitOK
}

// duplicateCommitCode reports a repeated transfer id within one linked chain
// the same way checkCommit would had the first entry already been applied.
func duplicateCommitCode(firstReject, reject bool) ledger.CommitTransferCode {
	switch {
	case firstReject && reject, !firstReject && !reject:
		return ledger.CommitAlreadyCommitted
	case firstReject:
		return ledger.CommitAlreadyCommittedButRejected
	default:
		return ledger.CommitAlreadyCommittedButAccepted
	}
}

func (e *Engine) applyCommit(c ledger.Commit) {
	t := e.transfers[c.ID]
	debit := e.balances[t.DebitBalanceID]
	credit := e.balances[t.CreditBalanceID]
	debit.DebitsReserved -= t.Amount
	credit.CreditsReserved -= t.Amount
	if c.Flags&ledger.CommitReject != 0 {
		t.state = stateRejected
		return
	}
	debit.DebitsAccepted += t.Amount
	credit.CreditsAccepted += t.Amount
	t.state = stateCommitted
}

// chainEnd returns the index one past the linked chain starting at i. An
// entry without the linked flag terminates its chain.
func chainEnd(i, n int, linked func(int) bool) int {
	for ; i < n-1; i++ {
		if !linked(i) {
			break
		}
	}
	return i + 1
}
