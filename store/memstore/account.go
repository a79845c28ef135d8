// Package memstore provides in-memory store implementations backing tests
// and local development. They honor the same version guards as the SQL
// stores so engine behavior is identical against either.
package memstore

import (
	"context"
	"sync"

	"github.com/bituncoin/btnledger/core"
)

func NewAccountStore() core.AccountStore {
	return &accountStore{
		accounts:  map[string]*core.Account{},
		addresses: map[string]string{},
	}
}

type accountStore struct {
	mux       sync.RWMutex
	accounts  map[string]*core.Account
	addresses map[string]string // address -> account id
}

func (s *accountStore) Create(_ context.Context, account *core.Account) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	cp := copyAccount(account)
	s.accounts[account.ID] = cp
	for _, address := range account.Addresses {
		s.addresses[address] = account.ID
	}

	return nil
}

func (s *accountStore) Find(_ context.Context, id string) (*core.Account, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}

	return copyAccount(account), nil
}

func (s *accountStore) FindAddress(_ context.Context, address string) (*core.Account, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	id, ok := s.addresses[address]
	if !ok {
		return nil, core.ErrNotFound
	}

	return copyAccount(s.accounts[id]), nil
}

func (s *accountStore) UpdateFactors(_ context.Context, account *core.Account) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	stored, ok := s.accounts[account.ID]
	if !ok {
		return core.ErrNotFound
	}

	stored.Factors = map[core.FactorKind]core.AuthFactor{}
	for kind, factor := range account.Factors {
		stored.Factors[kind] = factor
	}

	return nil
}

func copyAccount(account *core.Account) *core.Account {
	cp := *account
	cp.Addresses = map[core.Currency]string{}
	for currency, address := range account.Addresses {
		cp.Addresses[currency] = address
	}

	cp.Factors = map[core.FactorKind]core.AuthFactor{}
	for kind, factor := range account.Factors {
		cp.Factors[kind] = factor
	}

	return &cp
}
