package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StakePosition is the single staking position an account holds per
// currency. Principal lives on the balance's locked leg; rewards accrue
// lazily from LastAccrualAt and are realized only by a claim.
type StakePosition struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	Currency       Currency        `json:"currency"`
	Principal      decimal.Decimal `json:"principal"`
	APYBasisPoints int64           `json:"apy_basis_points"`
	StartedAt      time.Time       `json:"started_at"`
	LastAccrualAt  time.Time       `json:"last_accrual_at"`
	Version        int64           `json:"-"`
}

type StakeStore interface {
	Create(ctx context.Context, position *StakePosition) error
	Find(ctx context.Context, accountID string, currency Currency) (*StakePosition, error)
	List(ctx context.Context, accountID string) ([]*StakePosition, error)
	// Update compare-and-swaps on Version; a stale write fails with
	// ErrConcurrentModification.
	Update(ctx context.Context, position *StakePosition) error
	Delete(ctx context.Context, position *StakePosition) error
}
