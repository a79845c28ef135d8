package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/bituncoin/btnledger/core"
)

func NewBridgeIntentStore() core.BridgeIntentStore {
	return &intentStore{intents: map[string]*core.BridgeIntent{}}
}

type intentStore struct {
	mux     sync.RWMutex
	intents map[string]*core.BridgeIntent
	order   []string
}

func (s *intentStore) Create(_ context.Context, intent *core.BridgeIntent) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	cp := *intent
	s.intents[intent.TransactionID] = &cp
	s.order = append(s.order, intent.TransactionID)
	return nil
}

func (s *intentStore) Find(_ context.Context, transactionID string) (*core.BridgeIntent, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	intent, ok := s.intents[transactionID]
	if !ok {
		return nil, core.ErrNotFound
	}

	cp := *intent
	return &cp, nil
}

func (s *intentStore) FindLock(_ context.Context, lockID string) (*core.BridgeIntent, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	for _, intent := range s.intents {
		if intent.LockID == lockID {
			cp := *intent
			return &cp, nil
		}
	}

	return nil, core.ErrNotFound
}

func (s *intentStore) UpdatePhase(_ context.Context, intent *core.BridgeIntent, to core.BridgePhase) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	stored, ok := s.intents[intent.TransactionID]
	if !ok {
		return core.ErrNotFound
	}

	if stored.Phase != intent.Phase {
		return core.ErrConcurrentModification
	}

	stored.Phase = to
	stored.LockID = intent.LockID
	stored.Attempts = intent.Attempts
	stored.UpdatedAt = time.Now()
	intent.Phase = to
	intent.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *intentStore) ListPhase(_ context.Context, phase core.BridgePhase, limit int) ([]*core.BridgeIntent, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var intents []*core.BridgeIntent
	for _, id := range s.order {
		if len(intents) >= limit {
			break
		}

		intent := s.intents[id]
		if intent.Phase == phase {
			cp := *intent
			intents = append(intents, &cp)
		}
	}

	return intents, nil
}
