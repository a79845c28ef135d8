// Package security evaluates whether an action is permitted given the
// account's enrolled factors and live risk signals. Every mutating
// operation passes through Authorize before touching the ledger.
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/store"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	// FraudMultiplier flags amounts above this multiple of the trailing
	// average transfer size.
	FraudMultiplier int64 `valid:"required"`
	// Window bounds the trailing average.
	Window time.Duration `valid:"required"`
}

func New(accounts core.AccountStore, properties core.PropertyStore, logger *slog.Logger, cfg Config) core.SecurityPolicy {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	p := &policy{
		accounts:   accounts,
		properties: properties,
		logger:     logger.With("service", "security"),
		cfg:        cfg,
		stats:      map[string]*accountStats{},
	}

	// restore fraud flags across restarts; the rolling averages rebuild
	// from live traffic
	var flagged map[string]string
	if err := properties.Get(context.Background(), core.PropertySecurityBaseline, &flagged); err == nil {
		for id, reason := range flagged {
			p.statsFor(id).flag(reason)
		}
	}

	return p
}

type policy struct {
	accounts   core.AccountStore
	properties core.PropertyStore
	logger     *slog.Logger
	cfg        Config

	mux   sync.Mutex
	stats map[string]*accountStats
}

// accountStats is the single-writer rolling state for one account.
type accountStats struct {
	mux     sync.Mutex
	flagged bool
	reason  string
	samples []sample
}

type sample struct {
	amount decimal.Decimal
	at     time.Time
}

func (s *accountStats) flag(reason string) {
	s.mux.Lock()
	s.flagged = true
	s.reason = reason
	s.mux.Unlock()
}

// average returns the trailing mean transfer amount inside the window and
// whether any samples exist.
func (s *accountStats) average(window time.Duration) (decimal.Decimal, bool) {
	cutoff := time.Now().Add(-window)
	kept := s.samples[:0]
	sum := decimal.Zero
	for _, smp := range s.samples {
		if smp.at.After(cutoff) {
			kept = append(kept, smp)
			sum = sum.Add(smp.amount)
		}
	}

	s.samples = kept
	if len(kept) == 0 {
		return decimal.Zero, false
	}

	return sum.Div(decimal.NewFromInt(int64(len(kept)))), true
}

func (p *policy) statsFor(accountID string) *accountStats {
	p.mux.Lock()
	defer p.mux.Unlock()

	stats, ok := p.stats[accountID]
	if !ok {
		stats = &accountStats{}
		p.stats[accountID] = stats
	}

	return stats
}

func (p *policy) Authorize(ctx context.Context, accountID string, kind core.TransactionKind, auth core.AuthContext) (core.Decision, error) {
	account, err := p.accounts.Find(ctx, accountID)
	if err != nil {
		if store.IsErrNotFound(err) {
			return core.DecisionDeny, nil
		}

		return core.DecisionDeny, err
	}

	stats := p.statsFor(accountID)
	stats.mux.Lock()
	defer stats.mux.Unlock()

	if stats.flagged {
		p.logger.Info("denied flagged account", "account", accountID, "reason", stats.reason)
		return core.DecisionDeny, nil
	}

	risky := p.risky(stats, account, kind, auth.Amount)
	if risky && !anyFactorEnabled(account) {
		p.logger.Info("denied risky action without enrolled factor", "account", accountID, "kind", kind, "amount", auth.Amount)
		return core.DecisionDeny, nil
	}

	if account.FactorEnabled(core.FactorTwoFactor) {
		switch decision := presentFactor(account, core.FactorTwoFactor, auth.TwoFactorCode, core.DecisionRequire2FA); decision {
		case core.DecisionAllow:
		default:
			return decision, nil
		}
	}

	if account.FactorEnabled(core.FactorBiometric) {
		switch decision := presentFactor(account, core.FactorBiometric, auth.BiometricProof, core.DecisionRequireBiometric); decision {
		case core.DecisionAllow:
		default:
			return decision, nil
		}
	}

	return core.DecisionAllow, nil
}

// risky applies the fraud heuristics: amounts far above the trailing
// average, and cross-chain transfers from accounts with nothing enrolled.
func (p *policy) risky(stats *accountStats, account *core.Account, kind core.TransactionKind, amount decimal.Decimal) bool {
	if kind == core.KindCrossChain && !anyFactorEnabled(account) {
		return true
	}

	avg, ok := stats.average(p.cfg.Window)
	if !ok {
		return false
	}

	threshold := avg.Mul(decimal.NewFromInt(p.cfg.FraudMultiplier))
	return amount.GreaterThan(threshold)
}

func presentFactor(account *core.Account, kind core.FactorKind, presented string, required core.Decision) core.Decision {
	if presented == "" {
		return required
	}

	factor := account.Factors[kind]
	if bcrypt.CompareHashAndPassword([]byte(factor.Secret), []byte(presented)) != nil {
		return core.DecisionDeny
	}

	return core.DecisionAllow
}

func anyFactorEnabled(account *core.Account) bool {
	return account.FactorEnabled(core.FactorTwoFactor) || account.FactorEnabled(core.FactorBiometric)
}

func (p *policy) Observe(_ context.Context, accountID string, kind core.TransactionKind, tx *core.Transaction) {
	switch kind {
	case core.KindSend, core.KindReceive, core.KindCrossChain:
	default:
		return
	}

	stats := p.statsFor(accountID)
	stats.mux.Lock()
	stats.samples = append(stats.samples, sample{amount: tx.Amount, at: time.Now()})
	stats.mux.Unlock()
}

func (p *policy) Flag(ctx context.Context, accountID, reason string) error {
	p.statsFor(accountID).flag(reason)

	flagged := map[string]string{}
	if err := p.properties.Get(ctx, core.PropertySecurityBaseline, &flagged); err != nil {
		return err
	}

	flagged[accountID] = reason
	return p.properties.Set(ctx, core.PropertySecurityBaseline, flagged)
}

func (p *policy) AccountCreated(_ context.Context, account *core.Account) {
	p.statsFor(account.ID)
	p.logger.Debug("risk baseline seeded", "account", account.ID)
}
