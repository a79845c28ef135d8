package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/bituncoin/btnledger/core"
)

func NewTransactionStore() core.TransactionStore {
	return &txStore{
		byID:    map[string]*core.Transaction{},
		byTrace: map[string]string{},
	}
}

type txStore struct {
	mux     sync.RWMutex
	byID    map[string]*core.Transaction
	byTrace map[string]string
	order   []string
}

func (s *txStore) Create(_ context.Context, tx *core.Transaction) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	cp := *tx
	s.byID[tx.ID] = &cp
	s.order = append(s.order, tx.ID)
	if tx.TraceID != "" {
		s.byTrace[tx.TraceID] = tx.ID
	}

	return nil
}

func (s *txStore) Find(_ context.Context, id string) (*core.Transaction, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}

	cp := *tx
	return &cp, nil
}

func (s *txStore) FindTrace(ctx context.Context, traceID string) (*core.Transaction, error) {
	s.mux.RLock()
	id, ok := s.byTrace[traceID]
	s.mux.RUnlock()

	if !ok {
		return nil, core.ErrNotFound
	}

	return s.Find(ctx, id)
}

func (s *txStore) UpdateStatus(_ context.Context, tx *core.Transaction, to core.TransactionStatus, reason string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	stored, ok := s.byID[tx.ID]
	if !ok {
		return core.ErrNotFound
	}

	if stored.Status != tx.Status {
		return core.ErrConcurrentModification
	}

	stored.Status = to
	stored.Reason = reason
	stored.Amount = tx.Amount
	stored.AppliedAt = tx.AppliedAt
	tx.Status = to
	tx.Reason = reason
	return nil
}

func (s *txStore) ListAddress(_ context.Context, address string, limit int) ([]*core.Transaction, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var txs []*core.Transaction
	for i := len(s.order) - 1; i >= 0 && len(txs) < limit; i-- {
		tx := s.byID[s.order[i]]
		if tx.From == address || tx.To == address {
			cp := *tx
			txs = append(txs, &cp)
		}
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})

	return txs, nil
}

func (s *txStore) ListStatus(_ context.Context, status core.TransactionStatus, limit int) ([]*core.Transaction, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var txs []*core.Transaction
	for _, id := range s.order {
		if len(txs) >= limit {
			break
		}

		tx := s.byID[id]
		if tx.Status == status {
			cp := *tx
			txs = append(txs, &cp)
		}
	}

	return txs, nil
}
