// Package staking manages locked principal and lazy, time-based reward
// accrual. Principal lives on the balance's locked leg; nothing here runs
// on a background clock.
package staking

import (
	"context"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/bituncoin/btnledger/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Config struct {
	// MinStake is the smallest principal accepted, per currency.
	MinStake decimal.Decimal `valid:"required"`
	// LockPeriod is how long principal stays locked after the first stake.
	LockPeriod time.Duration `valid:"required"`
}

func New(ledgerz *ledger.Engine, stakes core.StakeStore, logger *slog.Logger, cfg Config) *Engine {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	return &Engine{
		ledgerz: ledgerz,
		stakes:  stakes,
		logger:  logger.With("service", "staking"),
		cfg:     cfg,
	}
}

type Engine struct {
	ledgerz *ledger.Engine
	stakes  core.StakeStore
	logger  *slog.Logger
	cfg     Config
}

// Stake moves tx.Amount from available to locked and opens (or grows) the
// account's position for the currency. Both journal legs land atomically;
// an insufficient available balance applies nothing.
func (e *Engine) Stake(ctx context.Context, tx *core.Transaction, accountID string, apyBasisPoints int64) (*core.StakePosition, error) {
	if tx.Amount.LessThan(e.cfg.MinStake) {
		return nil, core.ErrBelowMinimumStake
	}

	unlock := e.ledgerz.LockAccounts(accountID)
	defer unlock()

	if _, err := e.ledgerz.ApplyAllLocked(ctx, tx.ID,
		ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount.Neg(), Leg: core.LegAvailable, Kind: core.KindStake},
		ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount, Leg: core.LegLocked, Kind: core.KindStake},
	); err != nil {
		return nil, err
	}

	now := time.Now()
	position, err := e.stakes.Find(ctx, accountID, tx.Currency)
	switch {
	case err == nil:
		// growing an active position settles accrued rewards first so the
		// past period keeps its old principal
		if err := e.settleLocked(ctx, tx, position, now); err != nil {
			return nil, err
		}

		position.Principal = position.Principal.Add(tx.Amount)
		position.LastAccrualAt = now
		if err := e.stakes.Update(ctx, position); err != nil {
			return nil, err
		}

	case store.IsErrNotFound(err):
		position = &core.StakePosition{
			ID:             uuid.NewString(),
			AccountID:      accountID,
			Currency:       tx.Currency,
			Principal:      tx.Amount,
			APYBasisPoints: apyBasisPoints,
			StartedAt:      now,
			LastAccrualAt:  now,
		}
		if err := e.stakes.Create(ctx, position); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	e.logger.Info("stake", "account", accountID, "currency", tx.Currency, "amount", tx.Amount, "principal", position.Principal)
	return position, nil
}

// Accrue is pure: reward = principal × apy/10000 × elapsed/year.
func Accrue(position *core.StakePosition, now time.Time) decimal.Decimal {
	elapsed := now.Sub(position.LastAccrualAt)
	if elapsed <= 0 {
		return decimal.Zero
	}

	const year = 365 * 24 * time.Hour
	apy := decimal.NewFromInt(position.APYBasisPoints).Div(decimal.NewFromInt(10000))
	fraction := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(year)))
	return position.Principal.Mul(apy).Mul(fraction).Round(8)
}

// ClaimReward realizes accrued rewards into available balance and resets
// the accrual mark. Principal stays locked.
func (e *Engine) ClaimReward(ctx context.Context, tx *core.Transaction, position *core.StakePosition) (decimal.Decimal, error) {
	unlock := e.ledgerz.LockAccounts(position.AccountID)
	defer unlock()

	now := time.Now()
	reward := Accrue(position, now)
	if reward.IsPositive() {
		if _, err := e.ledgerz.ApplyAllLocked(ctx, tx.ID, ledger.Delta{
			AccountID: position.AccountID,
			Currency:  position.Currency,
			Amount:    reward,
			Leg:       core.LegAvailable,
			Kind:      core.KindClaimReward,
		}); err != nil {
			return decimal.Zero, err
		}
	}

	position.LastAccrualAt = now
	if err := e.stakes.Update(ctx, position); err != nil {
		return decimal.Zero, err
	}

	e.logger.Info("reward claimed", "account", position.AccountID, "currency", position.Currency, "reward", reward)
	return reward, nil
}

// Unstake returns amount from locked to available once the lock period
// has passed.
func (e *Engine) Unstake(ctx context.Context, tx *core.Transaction, position *core.StakePosition, amount decimal.Decimal) error {
	if time.Since(position.StartedAt) < e.cfg.LockPeriod {
		return core.ErrLockPeriodActive
	}

	if amount.GreaterThan(position.Principal) {
		return core.ErrInsufficientFunds
	}

	unlock := e.ledgerz.LockAccounts(position.AccountID)
	defer unlock()

	// settle rewards earned by the outgoing principal before shrinking it
	now := time.Now()
	if err := e.settleLocked(ctx, tx, position, now); err != nil {
		return err
	}

	if _, err := e.ledgerz.ApplyAllLocked(ctx, tx.ID,
		ledger.Delta{AccountID: position.AccountID, Currency: position.Currency, Amount: amount.Neg(), Leg: core.LegLocked, Kind: core.KindUnstake},
		ledger.Delta{AccountID: position.AccountID, Currency: position.Currency, Amount: amount, Leg: core.LegAvailable, Kind: core.KindUnstake},
	); err != nil {
		return err
	}

	position.Principal = position.Principal.Sub(amount)
	position.LastAccrualAt = now
	if position.Principal.IsZero() {
		return e.stakes.Delete(ctx, position)
	}

	return e.stakes.Update(ctx, position)
}

// Position returns the account's position in the given currency.
func (e *Engine) Position(ctx context.Context, accountID string, currency core.Currency) (*core.StakePosition, error) {
	return e.stakes.Find(ctx, accountID, currency)
}

// Positions lists the account's positions with rewards accrued to now.
func (e *Engine) Positions(ctx context.Context, accountID string) ([]*core.StakePosition, []decimal.Decimal, error) {
	positions, err := e.stakes.List(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	rewards := make([]decimal.Decimal, len(positions))
	for i, position := range positions {
		rewards[i] = Accrue(position, now)
	}

	return positions, rewards, nil
}

// settleLocked credits rewards accrued so far, leaving the position ready
// for a principal change. Caller holds the account lock and updates
// LastAccrualAt.
func (e *Engine) settleLocked(ctx context.Context, tx *core.Transaction, position *core.StakePosition, now time.Time) error {
	reward := Accrue(position, now)
	if !reward.IsPositive() {
		return nil
	}

	_, err := e.ledgerz.ApplyAllLocked(ctx, tx.ID, ledger.Delta{
		AccountID: position.AccountID,
		Currency:  position.Currency,
		Amount:    reward,
		Leg:       core.LegAvailable,
		Kind:      core.KindClaimReward,
	})
	return err
}
