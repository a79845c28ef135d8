package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Leg names the balance pocket a journal delta applies to.
type Leg string

const (
	LegAvailable Leg = "available"
	LegLocked    Leg = "locked"
)

// Balance is the per (account, currency) position. Version is bumped on
// every mutation and guards optimistic concurrency in the store.
type Balance struct {
	AccountID string          `json:"account_id"`
	Currency  Currency        `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Version   int64           `json:"version"`
}

// JournalEntry is an immutable, append-only record of one balance delta.
// For any (account, currency), available equals the running sum of all
// deltas on the available leg; likewise for locked.
type JournalEntry struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Currency      Currency        `json:"currency"`
	Delta         decimal.Decimal `json:"delta"`
	Leg           Leg             `json:"leg"`
	Kind          TransactionKind `json:"kind"`
	TransactionID string          `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BalanceUpdate pairs a balance's new state (with the version the writer
// read) with the journal entries that produced it.
type BalanceUpdate struct {
	Balance *Balance
	Entries []*JournalEntry
}

type LedgerStore interface {
	// GetBalance returns a zero balance, not an error, for a currency the
	// account never touched.
	GetBalance(ctx context.Context, accountID string, currency Currency) (*Balance, error)
	ListBalances(ctx context.Context, accountID string) ([]*Balance, error)
	// Apply commits every update and its journal entries atomically,
	// compare-and-swapping each balance on its version. A stale version
	// fails the whole batch with ErrConcurrentModification and nothing
	// is written.
	Apply(ctx context.Context, updates []*BalanceUpdate) error
	ListJournal(ctx context.Context, accountID string, currency Currency, limit int) ([]*JournalEntry, error)
	// ListTransactionJournal returns every entry a transaction produced,
	// oldest first.
	ListTransactionJournal(ctx context.Context, transactionID string) ([]*JournalEntry, error)
}
