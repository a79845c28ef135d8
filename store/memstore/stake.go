package memstore

import (
	"context"
	"sync"

	"github.com/bituncoin/btnledger/core"
)

func NewStakeStore() core.StakeStore {
	return &stakeStore{positions: map[balanceKey]*core.StakePosition{}}
}

type stakeStore struct {
	mux       sync.RWMutex
	positions map[balanceKey]*core.StakePosition
}

func (s *stakeStore) Create(_ context.Context, position *core.StakePosition) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	key := balanceKey{position.AccountID, position.Currency}
	if _, ok := s.positions[key]; ok {
		return core.ErrConcurrentModification
	}

	cp := *position
	s.positions[key] = &cp
	return nil
}

func (s *stakeStore) Find(_ context.Context, accountID string, currency core.Currency) (*core.StakePosition, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	position, ok := s.positions[balanceKey{accountID, currency}]
	if !ok {
		return nil, core.ErrNotFound
	}

	cp := *position
	return &cp, nil
}

func (s *stakeStore) List(_ context.Context, accountID string) ([]*core.StakePosition, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var positions []*core.StakePosition
	for key, position := range s.positions {
		if key.accountID == accountID {
			cp := *position
			positions = append(positions, &cp)
		}
	}

	return positions, nil
}

func (s *stakeStore) Update(_ context.Context, position *core.StakePosition) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	stored, ok := s.positions[balanceKey{position.AccountID, position.Currency}]
	if !ok {
		return core.ErrNotFound
	}

	if stored.Version != position.Version {
		return core.ErrConcurrentModification
	}

	stored.Principal = position.Principal
	stored.LastAccrualAt = position.LastAccrualAt
	stored.Version++
	position.Version++
	return nil
}

func (s *stakeStore) Delete(_ context.Context, position *core.StakePosition) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	key := balanceKey{position.AccountID, position.Currency}
	stored, ok := s.positions[key]
	if !ok {
		return core.ErrNotFound
	}

	if stored.Version != position.Version {
		return core.ErrConcurrentModification
	}

	delete(s.positions, key)
	return nil
}
