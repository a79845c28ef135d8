package memstore

import (
	"context"
	"sync"

	"github.com/bituncoin/btnledger/core"
)

func NewLedgerStore() core.LedgerStore {
	return &ledgerStore{
		balances: map[balanceKey]*core.Balance{},
	}
}

type balanceKey struct {
	accountID string
	currency  core.Currency
}

type ledgerStore struct {
	mux      sync.RWMutex
	balances map[balanceKey]*core.Balance
	journal  []*core.JournalEntry
}

func (s *ledgerStore) GetBalance(_ context.Context, accountID string, currency core.Currency) (*core.Balance, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	if balance, ok := s.balances[balanceKey{accountID, currency}]; ok {
		cp := *balance
		return &cp, nil
	}

	return &core.Balance{AccountID: accountID, Currency: currency}, nil
}

func (s *ledgerStore) ListBalances(_ context.Context, accountID string) ([]*core.Balance, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var balances []*core.Balance
	for key, balance := range s.balances {
		if key.accountID == accountID {
			cp := *balance
			balances = append(balances, &cp)
		}
	}

	return balances, nil
}

func (s *ledgerStore) Apply(_ context.Context, updates []*core.BalanceUpdate) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	// validate every version guard before touching anything
	for _, update := range updates {
		key := balanceKey{update.Balance.AccountID, update.Balance.Currency}
		var current int64
		if stored, ok := s.balances[key]; ok {
			current = stored.Version
		}

		if update.Balance.Version != current+1 {
			return core.ErrConcurrentModification
		}
	}

	for _, update := range updates {
		cp := *update.Balance
		s.balances[balanceKey{cp.AccountID, cp.Currency}] = &cp

		for _, entry := range update.Entries {
			cp := *entry
			s.journal = append(s.journal, &cp)
		}
	}

	return nil
}

func (s *ledgerStore) ListJournal(_ context.Context, accountID string, currency core.Currency, limit int) ([]*core.JournalEntry, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var entries []*core.JournalEntry
	for i := len(s.journal) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := s.journal[i]
		if entry.AccountID == accountID && entry.Currency == currency {
			cp := *entry
			entries = append(entries, &cp)
		}
	}

	return entries, nil
}

func (s *ledgerStore) ListTransactionJournal(_ context.Context, transactionID string) ([]*core.JournalEntry, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var entries []*core.JournalEntry
	for _, entry := range s.journal {
		if entry.TransactionID == transactionID {
			cp := *entry
			entries = append(entries, &cp)
		}
	}

	return entries, nil
}
