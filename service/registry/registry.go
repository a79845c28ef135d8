// Package registry owns account identity: address derivation per supported
// currency and auth factor enrollment.
package registry

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func New(accounts core.AccountStore, policy core.SecurityPolicy, logger *slog.Logger) core.AccountRegistry {
	return &registry{
		accounts: accounts,
		policy:   policy,
		logger:   logger.With("service", "registry"),
	}
}

type registry struct {
	accounts core.AccountStore
	policy   core.SecurityPolicy
	logger   *slog.Logger
}

func (r *registry) Create(ctx context.Context, enableTwoFactor, enableBiometric bool, biometricTemplate string) (*core.Account, error) {
	if enableBiometric && biometricTemplate == "" {
		return nil, core.ErrInvalidEnrollment
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	account := &core.Account{
		ID:                uuid.NewString(),
		Addresses:         map[core.Currency]string{},
		Factors:           map[core.FactorKind]core.AuthFactor{},
		CreatedAt:         time.Now(),
		EnrollmentSecrets: map[core.FactorKind]string{},
	}

	for _, currency := range core.Currencies() {
		account.Addresses[currency] = deriveAddress(seed, currency)
	}

	if enableTwoFactor {
		secret := hex.EncodeToString(seed[:16])
		factor, err := pendingFactor(core.FactorTwoFactor, secret)
		if err != nil {
			return nil, err
		}

		account.Factors[core.FactorTwoFactor] = factor
		account.EnrollmentSecrets[core.FactorTwoFactor] = secret
	}

	if enableBiometric {
		factor, err := pendingFactor(core.FactorBiometric, biometricTemplate)
		if err != nil {
			return nil, err
		}

		account.Factors[core.FactorBiometric] = factor
	}

	if err := r.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	r.logger.Info("account created", "account", account.ID, "2fa", enableTwoFactor, "biometric", enableBiometric)
	r.policy.AccountCreated(ctx, account)
	return account, nil
}

func (r *registry) Lookup(ctx context.Context, id string) (*core.Account, error) {
	account, err := r.accounts.Find(ctx, id)
	if store.IsErrNotFound(err) {
		return nil, core.ErrNotFound
	}

	return account, err
}

func (r *registry) LookupAddress(ctx context.Context, address string) (*core.Account, error) {
	account, err := r.accounts.FindAddress(ctx, address)
	if store.IsErrNotFound(err) {
		return nil, core.ErrNotFound
	}

	return account, err
}

func (r *registry) VerifyEnrollment(ctx context.Context, id string, kind core.FactorKind, proof string) error {
	account, err := r.Lookup(ctx, id)
	if err != nil {
		return err
	}

	factor, ok := account.Factors[kind]
	if !ok || !factor.Pending {
		return core.ErrInvalidEnrollment
	}

	if err := bcrypt.CompareHashAndPassword([]byte(factor.Secret), []byte(proof)); err != nil {
		return core.ErrInvalidEnrollment
	}

	factor.Pending = false
	factor.Enabled = true
	factor.EnrolledAt = time.Now()
	account.Factors[kind] = factor

	return r.accounts.UpdateFactors(ctx, account)
}

func pendingFactor(kind core.FactorKind, secret string) (core.AuthFactor, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return core.AuthFactor{}, err
	}

	return core.AuthFactor{
		Kind:    kind,
		Pending: true,
		Secret:  string(hash),
	}, nil
}

// deriveAddress derives the account's public identifier on a currency's
// chain from the account seed. Each chain family carries its customary
// prefix.
func deriveAddress(seed []byte, currency core.Currency) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%x:%s", seed, currency.Chain())))
	body := hex.EncodeToString(sum[:20])

	switch currency.Chain() {
	case "bituncoin":
		return "btn1" + body
	case "bitcoin":
		return "btu" + body
	case "ethereum":
		return "0x" + body
	case "binance":
		return "bnb1" + body
	case "goldcoin":
		return "GLD" + body
	default:
		return body
	}
}
