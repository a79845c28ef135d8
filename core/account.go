package core

import (
	"context"
	"time"
)

type FactorKind string

const (
	FactorPassword  FactorKind = "password"
	FactorTwoFactor FactorKind = "2fa"
	FactorBiometric FactorKind = "biometric"
)

// AuthFactor is one enrolled (or enrolling) authentication factor.
// Secret holds a bcrypt hash of the shared secret or biometric template,
// never the raw material.
type AuthFactor struct {
	Kind       FactorKind `json:"kind"`
	Enabled    bool       `json:"enabled"`
	Pending    bool       `json:"pending"`
	Secret     string     `json:"-"`
	EnrolledAt time.Time  `json:"enrolled_at,omitempty"`
}

type Account struct {
	ID        string                    `json:"id"`
	Addresses map[Currency]string       `json:"addresses"`
	Factors   map[FactorKind]AuthFactor `json:"factors,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`

	// EnrollmentSecrets holds raw secrets minted during Create so the
	// holder can complete enrollment. Never persisted.
	EnrollmentSecrets map[FactorKind]string `json:"enrollment_secrets,omitempty"`
}

// FactorEnabled reports whether the factor finished enrollment.
func (a *Account) FactorEnabled(kind FactorKind) bool {
	f, ok := a.Factors[kind]
	return ok && f.Enabled && !f.Pending
}

// Address returns the account's address on the currency's chain.
func (a *Account) Address(currency Currency) string {
	return a.Addresses[currency]
}

type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	// FindAddress resolves any of the account's per-chain addresses.
	FindAddress(ctx context.Context, address string) (*Account, error)
	UpdateFactors(ctx context.Context, account *Account) error
}

// AccountRegistry owns account identity and auth factor enrollment.
type AccountRegistry interface {
	Create(ctx context.Context, enableTwoFactor, enableBiometric bool, biometricTemplate string) (*Account, error)
	Lookup(ctx context.Context, id string) (*Account, error)
	LookupAddress(ctx context.Context, address string) (*Account, error)
	// VerifyEnrollment flips a pending factor to enabled once the holder
	// proves possession of the enrolled secret.
	VerifyEnrollment(ctx context.Context, id string, kind FactorKind, proof string) error
}
