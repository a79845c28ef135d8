package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindSend        TransactionKind = "send"
	KindReceive     TransactionKind = "receive"
	KindStake       TransactionKind = "stake"
	KindUnstake     TransactionKind = "unstake"
	KindClaimReward TransactionKind = "claim_reward"
	KindExchange    TransactionKind = "exchange"
	KindCrossChain  TransactionKind = "cross_chain"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	// StatusProcessing marks a transaction whose dispatch has begun; once
	// set, Cancel and janitor expiry can no longer win the status CAS.
	StatusProcessing     TransactionStatus = "processing"
	StatusApplied        TransactionStatus = "applied"
	StatusFailed         TransactionStatus = "failed"
	StatusAwaitingBridge TransactionStatus = "awaiting_bridge"
	StatusReverted       TransactionStatus = "reverted"
)

// Terminal reports whether no further status transition is allowed.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusApplied, StatusFailed, StatusReverted:
		return true
	}
	return false
}

type Transaction struct {
	ID          string            `json:"id"`
	TraceID     string            `json:"trace_id,omitempty"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    Currency          `json:"currency"`
	Kind        TransactionKind   `json:"kind"`
	Status      TransactionStatus `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	CrossChain  bool              `json:"cross_chain,omitempty"`
	TargetChain string            `json:"target_chain,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	AppliedAt   time.Time         `json:"applied_at,omitempty"`
}

type TransactionStore interface {
	Create(ctx context.Context, tx *Transaction) error
	Find(ctx context.Context, id string) (*Transaction, error)
	FindTrace(ctx context.Context, traceID string) (*Transaction, error)
	// UpdateStatus transitions tx from its current status to the given one,
	// guarded so a terminal state is recorded exactly once.
	UpdateStatus(ctx context.Context, tx *Transaction, to TransactionStatus, reason string) error
	// ListAddress returns transactions whose from or to matches the address,
	// newest first.
	ListAddress(ctx context.Context, address string, limit int) ([]*Transaction, error)
	ListStatus(ctx context.Context, status TransactionStatus, limit int) ([]*Transaction, error)
}
