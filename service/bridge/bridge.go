// Package bridge executes cross-chain transfers as a two-phase protocol:
// escrow the source funds locally, register the lock with the chain
// adapter, then commit once the target chain confirms or compensate. The
// ledger never shows funds in two places: every non-terminal phase has a
// defined compensating transition.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/ledger"
)

type Config struct {
	// ConfirmWindow caps how long a locked transfer may wait for target
	// chain confirmation before it aborts and compensates.
	ConfirmWindow time.Duration `valid:"required"`
	// PollBackoff is the base confirmation polling interval, doubled per
	// failed attempt.
	PollBackoff time.Duration `valid:"required"`
}

func New(
	ledgerz *ledger.Engine,
	intents core.BridgeIntentStore,
	transactions core.TransactionStore,
	accounts core.AccountStore,
	adapter core.ChainAdapter,
	logger *slog.Logger,
	cfg Config,
) *Coordinator {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	return &Coordinator{
		ledgerz:      ledgerz,
		intents:      intents,
		transactions: transactions,
		accounts:     accounts,
		adapter:      adapter,
		logger:       logger.With("service", "bridge"),
		cfg:          cfg,
	}
}

type Coordinator struct {
	ledgerz      *ledger.Engine
	intents      core.BridgeIntentStore
	transactions core.TransactionStore
	accounts     core.AccountStore
	adapter      core.ChainAdapter
	logger       *slog.Logger
	cfg          Config
}

// Initiate escrows the source amount and registers the lock with the
// adapter. The adapter call happens outside any ledger lock; on adapter
// failure the escrow is released and the transaction fails.
func (c *Coordinator) Initiate(ctx context.Context, tx *core.Transaction, accountID string) (*core.BridgeIntent, error) {
	if _, err := c.ledgerz.ApplyAll(ctx, tx.ID,
		ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount.Neg(), Leg: core.LegAvailable, Kind: core.KindCrossChain},
		ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount, Leg: core.LegLocked, Kind: core.KindCrossChain},
	); err != nil {
		return nil, err
	}

	intent := &core.BridgeIntent{
		TransactionID: tx.ID,
		SourceChain:   tx.Currency.Chain(),
		TargetChain:   tx.TargetChain,
		Phase:         core.PhaseInitiated,
		CreatedAt:     time.Now(),
	}
	if err := c.intents.Create(ctx, intent); err != nil {
		return nil, err
	}

	logger := c.logger.With("transaction", tx.ID, "target", tx.TargetChain)

	lockID, err := c.adapter.Lock(ctx, intent, tx)
	if err != nil {
		logger.Error("adapter.Lock", "err", err)
		if err := c.abort(ctx, intent, tx, accountID, "source chain lock failed"); err != nil {
			return nil, err
		}

		return intent, nil
	}

	intent.LockID = lockID
	if err := c.intents.UpdatePhase(ctx, intent, core.PhaseLocked); err != nil {
		return nil, err
	}

	logger.Info("bridge locked", "lock", lockID)
	return intent, nil
}

// Due reports whether a locked intent should be polled again, doubling
// the backoff per recorded attempt.
func (c *Coordinator) Due(intent *core.BridgeIntent, now time.Time) bool {
	wait := c.cfg.PollBackoff << min(intent.Attempts, 10)
	return now.Sub(intent.UpdatedAt) >= wait
}

// Poll drives one confirmation attempt for a locked intent. Exceeding the
// confirmation window aborts and compensates.
func (c *Coordinator) Poll(ctx context.Context, intent *core.BridgeIntent) error {
	if intent.Phase != core.PhaseLocked {
		return nil
	}

	tx, accountID, err := c.resolve(ctx, intent)
	if err != nil {
		return err
	}

	if time.Since(intent.CreatedAt) > c.cfg.ConfirmWindow {
		c.logger.Info("confirmation window exceeded", "transaction", intent.TransactionID)
		return c.abort(ctx, intent, tx, accountID, core.ErrBridgeTimeout.Error())
	}

	confirmed, err := c.adapter.Confirmed(ctx, intent.LockID)
	if err != nil {
		intent.Attempts++
		c.logger.Error("adapter.Confirmed", "err", err, "attempts", intent.Attempts)
		return c.intents.UpdatePhase(ctx, intent, intent.Phase)
	}

	if !confirmed {
		intent.Attempts++
		return c.intents.UpdatePhase(ctx, intent, intent.Phase)
	}

	return c.commit(ctx, intent, tx, accountID)
}

// OnConfirmed is the adapter callback for a finished target-chain mint.
func (c *Coordinator) OnConfirmed(ctx context.Context, lockID string) error {
	intent, err := c.intents.FindLock(ctx, lockID)
	if err != nil {
		return err
	}

	tx, accountID, err := c.resolve(ctx, intent)
	if err != nil {
		return err
	}

	return c.commit(ctx, intent, tx, accountID)
}

// OnFailed is the adapter callback for a failed lock or mint.
func (c *Coordinator) OnFailed(ctx context.Context, lockID, reason string) error {
	intent, err := c.intents.FindLock(ctx, lockID)
	if err != nil {
		return err
	}

	tx, accountID, err := c.resolve(ctx, intent)
	if err != nil {
		return err
	}

	return c.abort(ctx, intent, tx, accountID, reason)
}

// Abandon aborts an intent that never progressed past its current phase,
// compensating its escrow. Used by the janitor for intents orphaned by a
// crash.
func (c *Coordinator) Abandon(ctx context.Context, intent *core.BridgeIntent, reason string) error {
	tx, accountID, err := c.resolve(ctx, intent)
	if err != nil {
		return err
	}

	return c.abort(ctx, intent, tx, accountID, reason)
}

// commit permanently releases the escrow: the funds are represented on
// the target chain from here on. The phase transition's exactly-once
// guard makes the balance release idempotent.
func (c *Coordinator) commit(ctx context.Context, intent *core.BridgeIntent, tx *core.Transaction, accountID string) error {
	// only a locked intent can commit. A confirmation arriving after the
	// intent settled (late callback, raced abort) must not touch the
	// escrow again.
	if intent.Phase != core.PhaseLocked {
		c.logger.Info("confirmation for settled intent ignored", "transaction", intent.TransactionID, "phase", intent.Phase)
		return nil
	}

	if err := c.intents.UpdatePhase(ctx, intent, core.PhaseCommitted); err != nil {
		return err
	}

	if _, err := c.ledgerz.ApplyAll(ctx, tx.ID, ledger.Delta{
		AccountID: accountID,
		Currency:  tx.Currency,
		Amount:    tx.Amount.Neg(),
		Leg:       core.LegLocked,
		Kind:      core.KindCrossChain,
	}); err != nil {
		return err
	}

	tx.AppliedAt = time.Now()
	if err := c.transactions.UpdateStatus(ctx, tx, core.StatusApplied, ""); err != nil {
		return err
	}

	c.logger.Info("bridge committed", "transaction", tx.ID, "lock", intent.LockID)
	return nil
}

// abort compensates: escrow returns to available and the transaction
// fails. After an abort the account's available balance equals its
// pre-transfer value exactly.
func (c *Coordinator) abort(ctx context.Context, intent *core.BridgeIntent, tx *core.Transaction, accountID, reason string) error {
	switch intent.Phase {
	case core.PhaseInitiated, core.PhaseLocked:
	default:
		// settled intents never abort again; a second compensation would
		// mint funds
		c.logger.Info("failure for settled intent ignored", "transaction", intent.TransactionID, "phase", intent.Phase)
		return nil
	}

	if err := c.intents.UpdatePhase(ctx, intent, core.PhaseAborted); err != nil {
		return err
	}

	if intent.LockID != "" {
		if err := c.adapter.Release(ctx, intent.LockID); err != nil {
			// the external lock will lapse on its own; local compensation
			// still proceeds
			c.logger.Error("adapter.Release", "err", err, "lock", intent.LockID)
		}
	}

	if _, err := c.ledgerz.ApplyAll(ctx, tx.ID,
		ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount.Neg(), Leg: core.LegLocked, Kind: core.KindCrossChain},
		ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount, Leg: core.LegAvailable, Kind: core.KindCrossChain},
	); err != nil {
		return err
	}

	if err := c.transactions.UpdateStatus(ctx, tx, core.StatusFailed, reason); err != nil {
		return err
	}

	c.logger.Info("bridge aborted", "transaction", tx.ID, "reason", reason)
	return nil
}

// Recover finishes a settled intent whose transaction never reached its
// own terminal status: a crash between the phase write and the balance
// apply leaves exactly that shape behind. The journal decides whether the
// funds already moved, so re-running is safe.
func (c *Coordinator) Recover(ctx context.Context, intent *core.BridgeIntent) error {
	tx, accountID, err := c.resolve(ctx, intent)
	if err != nil {
		return err
	}

	if tx.Status.Terminal() {
		return nil
	}

	entries, err := c.ledgerz.ListTransactionJournal(ctx, tx.ID)
	if err != nil {
		return err
	}

	switch intent.Phase {
	case core.PhaseCommitted:
		if !escrowReleased(entries) {
			if _, err := c.ledgerz.ApplyAll(ctx, tx.ID, ledger.Delta{
				AccountID: accountID,
				Currency:  tx.Currency,
				Amount:    tx.Amount.Neg(),
				Leg:       core.LegLocked,
				Kind:      core.KindCrossChain,
			}); err != nil {
				return err
			}
		}

		tx.AppliedAt = time.Now()
		if err := c.transactions.UpdateStatus(ctx, tx, core.StatusApplied, ""); err != nil {
			return err
		}

		c.logger.Info("bridge commit recovered", "transaction", tx.ID)
		return nil

	case core.PhaseAborted:
		if !escrowCompensated(entries) {
			if _, err := c.ledgerz.ApplyAll(ctx, tx.ID,
				ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount.Neg(), Leg: core.LegLocked, Kind: core.KindCrossChain},
				ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount, Leg: core.LegAvailable, Kind: core.KindCrossChain},
			); err != nil {
				return err
			}
		}

		if err := c.transactions.UpdateStatus(ctx, tx, core.StatusFailed, "recovered after abort"); err != nil {
			return err
		}

		c.logger.Info("bridge abort recovered", "transaction", tx.ID)
		return nil
	}

	return nil
}

// escrowReleased reports whether the commit's locked-leg debit is already
// journaled. Initiate only ever credits the locked leg, so a negative
// locked delta under the transaction can only be the release (or the
// abort's debit, which the Aborted phase rules out here).
func escrowReleased(entries []*core.JournalEntry) bool {
	for _, entry := range entries {
		if entry.Leg == core.LegLocked && entry.Delta.IsNegative() {
			return true
		}
	}
	return false
}

// escrowCompensated reports whether the abort's available-leg credit is
// already journaled. Initiate only ever debits the available leg.
func escrowCompensated(entries []*core.JournalEntry) bool {
	for _, entry := range entries {
		if entry.Leg == core.LegAvailable && entry.Delta.IsPositive() {
			return true
		}
	}
	return false
}

func (c *Coordinator) resolve(ctx context.Context, intent *core.BridgeIntent) (*core.Transaction, string, error) {
	tx, err := c.transactions.Find(ctx, intent.TransactionID)
	if err != nil {
		return nil, "", err
	}

	account, err := c.accounts.FindAddress(ctx, tx.From)
	if err != nil {
		return nil, "", err
	}

	return tx, account.ID, nil
}
