// Package janitor expires transactions abandoned mid-flight: Pending
// records older than the TTL (a step-up challenge never answered, or a
// crash between create and dispatch) fail with an expiry reason, and
// Initiated bridge intents whose lock registration never completed are
// aborted so their escrow returns.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/bridge"
	"github.com/zyedidia/generic/mapset"
)

type Config struct {
	// PendingTTL is how long a Pending transaction may wait before it
	// expires.
	PendingTTL time.Duration `valid:"required"`
	// Interval between sweeps.
	Interval time.Duration `valid:"required"`
}

func New(
	transactions core.TransactionStore,
	intents core.BridgeIntentStore,
	bridgez *bridge.Coordinator,
	properties core.PropertyStore,
	logger *slog.Logger,
	cfg Config,
) *Janitor {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	return &Janitor{
		transactions: transactions,
		intents:      intents,
		bridgez:      bridgez,
		properties:   properties,
		logger:       logger.With("worker", "janitor"),
		cfg:          cfg,
		skipped:      mapset.New[string](),
	}
}

type Janitor struct {
	transactions core.TransactionStore
	intents      core.BridgeIntentStore
	bridgez      *bridge.Coordinator
	properties   core.PropertyStore
	logger       *slog.Logger
	cfg          Config

	// skipped holds ids whose expiry keeps failing, so a broken record
	// does not spam every sweep
	skipped mapset.Set[string]
}

func (w *Janitor) Run(ctx context.Context) error {
	w.logger.Info("janitor start")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.Interval):
			_ = w.run(ctx)
		}
	}
}

func (w *Janitor) run(ctx context.Context) error {
	if err := w.expirePending(ctx); err != nil {
		return err
	}

	if err := w.abortStuckIntents(ctx); err != nil {
		return err
	}

	if err := w.recoverSettledIntents(ctx); err != nil {
		return err
	}

	return w.properties.Set(ctx, core.PropertyJanitorOffset, time.Now().Unix())
}

func (w *Janitor) expirePending(ctx context.Context) error {
	const limit = 256
	txs, err := w.transactions.ListStatus(ctx, core.StatusPending, limit)
	if err != nil {
		w.logger.Error("transactions.ListStatus", "err", err)
		return err
	}

	cutoff := time.Now().Add(-w.cfg.PendingTTL)
	for _, tx := range txs {
		if tx.CreatedAt.After(cutoff) || w.skipped.Has(tx.ID) {
			continue
		}

		if err := w.transactions.UpdateStatus(ctx, tx, core.StatusFailed, "expired before confirmation"); err != nil {
			w.logger.Error("transactions.UpdateStatus", "transaction", tx.ID, "err", err)
			w.skipped.Put(tx.ID)
			continue
		}

		w.logger.Info("pending transaction expired", "transaction", tx.ID, "kind", tx.Kind)
	}

	return nil
}

// abortStuckIntents compensates intents that never reached Locked; the
// process died between escrow and lock registration.
func (w *Janitor) abortStuckIntents(ctx context.Context) error {
	const limit = 64
	intents, err := w.intents.ListPhase(ctx, core.PhaseInitiated, limit)
	if err != nil {
		w.logger.Error("intents.ListPhase", "err", err)
		return err
	}

	cutoff := time.Now().Add(-w.cfg.PendingTTL)
	for _, intent := range intents {
		if intent.CreatedAt.After(cutoff) || w.skipped.Has(intent.TransactionID) {
			continue
		}

		if err := w.bridgez.Abandon(ctx, intent, "lock registration never completed"); err != nil {
			w.logger.Error("bridgez.Abandon", "transaction", intent.TransactionID, "err", err)
			w.skipped.Put(intent.TransactionID)
			continue
		}

		w.logger.Info("stuck bridge intent aborted", "transaction", intent.TransactionID)
	}

	return nil
}

// recoverSettledIntents finishes transactions parked in AwaitingBridge
// whose intent already settled; a crash between the phase write and the
// balance apply strands them there, and the poller no longer sees them.
func (w *Janitor) recoverSettledIntents(ctx context.Context) error {
	const limit = 64
	txs, err := w.transactions.ListStatus(ctx, core.StatusAwaitingBridge, limit)
	if err != nil {
		w.logger.Error("transactions.ListStatus", "err", err)
		return err
	}

	cutoff := time.Now().Add(-w.cfg.PendingTTL)
	for _, tx := range txs {
		if tx.CreatedAt.After(cutoff) || w.skipped.Has(tx.ID) {
			continue
		}

		intent, err := w.intents.Find(ctx, tx.ID)
		if err != nil {
			w.logger.Error("intents.Find", "transaction", tx.ID, "err", err)
			w.skipped.Put(tx.ID)
			continue
		}

		switch intent.Phase {
		case core.PhaseCommitted, core.PhaseAborted:
		default:
			// Locked intents belong to the poller, Initiated ones to
			// abortStuckIntents
			continue
		}

		if err := w.bridgez.Recover(ctx, intent); err != nil {
			w.logger.Error("bridgez.Recover", "transaction", tx.ID, "err", err)
			w.skipped.Put(tx.ID)
			continue
		}

		w.logger.Info("settled bridge intent recovered", "transaction", tx.ID, "phase", intent.Phase)
	}

	return nil
}
