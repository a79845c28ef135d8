package core

import (
	"context"
	"time"
)

type BridgePhase string

const (
	PhaseInitiated BridgePhase = "initiated"
	PhaseLocked    BridgePhase = "locked"
	PhaseCommitted BridgePhase = "committed"
	PhaseAborted   BridgePhase = "aborted"
)

// BridgeIntent tracks one cross-chain transfer through the two-phase
// lock/commit protocol, 1:1 with its transaction.
type BridgeIntent struct {
	TransactionID string      `json:"transaction_id"`
	SourceChain   string      `json:"source_chain"`
	TargetChain   string      `json:"target_chain"`
	LockID        string      `json:"lock_id,omitempty"`
	Phase         BridgePhase `json:"phase"`
	Attempts      int         `json:"attempts"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type BridgeIntentStore interface {
	Create(ctx context.Context, intent *BridgeIntent) error
	Find(ctx context.Context, transactionID string) (*BridgeIntent, error)
	FindLock(ctx context.Context, lockID string) (*BridgeIntent, error)
	// UpdatePhase transitions the intent from its current phase, guarded so
	// each transition is recorded exactly once.
	UpdatePhase(ctx context.Context, intent *BridgeIntent, to BridgePhase) error
	ListPhase(ctx context.Context, phase BridgePhase, limit int) ([]*BridgeIntent, error)
}

// ChainAdapter is the per-chain collaborator the coordinator drives. The
// engine never talks to a chain directly.
type ChainAdapter interface {
	// Lock registers the escrow lock on the source chain and returns the
	// external lock reference.
	Lock(ctx context.Context, intent *BridgeIntent, tx *Transaction) (lockID string, err error)
	// Confirmed polls whether the target chain finished the mint/transfer.
	Confirmed(ctx context.Context, lockID string) (bool, error)
	// Release abandons an external lock after a local abort.
	Release(ctx context.Context, lockID string) error
}

// Signer is the external custody service producing signatures for
// outgoing transfers.
type Signer interface {
	Sign(ctx context.Context, tx *Transaction) (signature string, err error)
}
