package core

import (
	"context"

	"github.com/shopspring/decimal"
)

type Decision string

const (
	DecisionAllow            Decision = "allow"
	DecisionRequire2FA       Decision = "require_2fa"
	DecisionRequireBiometric Decision = "require_biometric"
	DecisionDeny             Decision = "deny"
)

// AuthContext carries the factors presented with a request and the amount
// under evaluation.
type AuthContext struct {
	Amount         decimal.Decimal `json:"amount"`
	TwoFactorCode  string          `json:"two_factor_code,omitempty"`
	BiometricProof string          `json:"biometric_proof,omitempty"`
}

// SecurityPolicy gates every mutating operation. Authorize is free of side
// effects beyond updating the per-account rolling statistics consulted by
// the next call.
type SecurityPolicy interface {
	Authorize(ctx context.Context, accountID string, kind TransactionKind, auth AuthContext) (Decision, error)
	// Observe feeds an applied transfer amount into the account's rolling
	// average.
	Observe(ctx context.Context, accountID string, kind TransactionKind, tx *Transaction)
	// Flag marks the account fraudulent; every later Authorize denies.
	Flag(ctx context.Context, accountID, reason string) error
	// AccountCreated seeds the risk baseline for a new account.
	AccountCreated(ctx context.Context, account *Account)
}
