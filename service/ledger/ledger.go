// Package ledger serializes balance mutations per account and keeps the
// journal invariant: every balance equals the running sum of its journal
// deltas, with no partial writes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bituncoin/btnledger/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxRetries bounds optimistic-concurrency retries against the store
// before the operation fails with ErrConcurrentModification.
const maxRetries = 5

// Delta describes one balance movement on a single leg.
type Delta struct {
	AccountID string
	Currency  core.Currency
	Amount    decimal.Decimal
	Leg       core.Leg
	Kind      core.TransactionKind
}

func New(store core.LedgerStore, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With("service", "ledger"),
		locks:  map[string]*sync.Mutex{},
	}
}

type Engine struct {
	store  core.LedgerStore
	logger *slog.Logger

	mux   sync.Mutex
	locks map[string]*sync.Mutex
}

func (e *Engine) GetBalance(ctx context.Context, accountID string, currency core.Currency) (*core.Balance, error) {
	return e.store.GetBalance(ctx, accountID, currency)
}

func (e *Engine) ListBalances(ctx context.Context, accountID string) ([]*core.Balance, error) {
	return e.store.ListBalances(ctx, accountID)
}

func (e *Engine) ListJournal(ctx context.Context, accountID string, currency core.Currency, limit int) ([]*core.JournalEntry, error) {
	return e.store.ListJournal(ctx, accountID, currency, limit)
}

// ListTransactionJournal returns the entries one transaction produced,
// oldest first.
func (e *Engine) ListTransactionJournal(ctx context.Context, transactionID string) ([]*core.JournalEntry, error) {
	return e.store.ListTransactionJournal(ctx, transactionID)
}

// ApplyDelta applies a single movement. See ApplyAll.
func (e *Engine) ApplyDelta(ctx context.Context, transactionID string, delta Delta) (*core.JournalEntry, error) {
	entries, err := e.ApplyAll(ctx, transactionID, delta)
	if err != nil {
		return nil, err
	}

	return entries[0], nil
}

// ApplyAll applies every delta atomically: all journal entries are written
// or none. The involved accounts' locks are taken in lexicographic order,
// so concurrent multi-account operations cannot deadlock. A delta that
// would drive available or locked negative fails the whole batch with
// ErrInsufficientFunds.
func (e *Engine) ApplyAll(ctx context.Context, transactionID string, deltas ...Delta) ([]*core.JournalEntry, error) {
	if len(deltas) == 0 {
		return nil, nil
	}

	unlock := e.LockAccounts(accountIDs(deltas)...)
	defer unlock()

	return e.ApplyAllLocked(ctx, transactionID, deltas...)
}

// ApplyAllLocked is ApplyAll for callers already inside a LockAccounts
// critical section, so position or intent bookkeeping can stay consistent
// with the balances it describes.
func (e *Engine) ApplyAllLocked(ctx context.Context, transactionID string, deltas ...Delta) ([]*core.JournalEntry, error) {
	if len(deltas) == 0 {
		return nil, nil
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		entries, err := e.apply(ctx, transactionID, deltas)
		if err == core.ErrConcurrentModification {
			e.logger.Debug("apply conflict, retrying", "transaction", transactionID, "attempt", attempt+1)
			continue
		}

		return entries, err
	}

	return nil, core.ErrConcurrentModification
}

func (e *Engine) apply(ctx context.Context, transactionID string, deltas []Delta) ([]*core.JournalEntry, error) {
	var (
		updates []*core.BalanceUpdate
		entries []*core.JournalEntry
		seen    = map[balanceKey]*core.BalanceUpdate{}
		now     = time.Now()
	)

	for _, delta := range deltas {
		key := balanceKey{delta.AccountID, delta.Currency}
		update, ok := seen[key]
		if !ok {
			balance, err := e.store.GetBalance(ctx, delta.AccountID, delta.Currency)
			if err != nil {
				return nil, err
			}

			balance.Version++
			update = &core.BalanceUpdate{Balance: balance}
			seen[key] = update
			updates = append(updates, update)
		}

		balance := update.Balance
		switch delta.Leg {
		case core.LegAvailable:
			balance.Available = balance.Available.Add(delta.Amount)
		case core.LegLocked:
			balance.Locked = balance.Locked.Add(delta.Amount)
		default:
			return nil, fmt.Errorf("unknown balance leg %q", delta.Leg)
		}

		if balance.Available.IsNegative() || balance.Locked.IsNegative() {
			return nil, core.ErrInsufficientFunds
		}

		entry := &core.JournalEntry{
			ID:            uuid.NewString(),
			AccountID:     delta.AccountID,
			Currency:      delta.Currency,
			Delta:         delta.Amount,
			Leg:           delta.Leg,
			Kind:          delta.Kind,
			TransactionID: transactionID,
			CreatedAt:     now,
		}

		update.Entries = append(update.Entries, entry)
		entries = append(entries, entry)
	}

	if err := e.store.Apply(ctx, updates); err != nil {
		return nil, err
	}

	return entries, nil
}

type balanceKey struct {
	accountID string
	currency  core.Currency
}

func accountIDs(deltas []Delta) []string {
	set := map[string]struct{}{}
	for _, delta := range deltas {
		set[delta.AccountID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

// LockAccounts takes the per-account mutexes in lexicographic order, the
// fixed global order that keeps cross-account operations deadlock free,
// and returns the matching unlock.
func (e *Engine) LockAccounts(ids ...string) func() {
	ids = append([]string(nil), ids...)
	sort.Strings(ids)
	ids = slices.Compact(ids)

	locks := make([]*sync.Mutex, 0, len(ids))
	e.mux.Lock()
	for _, id := range ids {
		lock, ok := e.locks[id]
		if !ok {
			lock = &sync.Mutex{}
			e.locks[id] = lock
		}

		locks = append(locks, lock)
	}
	e.mux.Unlock()

	for _, lock := range locks {
		lock.Lock()
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}
