// Package bridgepoller drives confirmation polling for locked bridge
// intents. Requests never block on chain confirmation; this worker is the
// scheduler that resolves parked AwaitingBridge transactions.
package bridgepoller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/bridge"
	"golang.org/x/sync/errgroup"
)

func New(
	intents core.BridgeIntentStore,
	bridgez *bridge.Coordinator,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		intents: intents,
		bridgez: bridgez,
		logger:  logger.With("worker", "bridgepoller"),
	}
}

type Poller struct {
	intents core.BridgeIntentStore
	bridgez *bridge.Coordinator
	logger  *slog.Logger
}

func (w *Poller) Run(ctx context.Context) error {
	w.logger.Info("bridgepoller start")

	for {
		dur := 500 * time.Millisecond
		if w.run(ctx) == nil {
			dur = 200 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
		}
	}
}

func (w *Poller) run(ctx context.Context) error {
	const limit = 64
	intents, err := w.intents.ListPhase(ctx, core.PhaseLocked, limit)
	if err != nil {
		w.logger.Error("intents.ListPhase", "err", err)
		return err
	}

	now := time.Now()
	due := intents[:0]
	for _, intent := range intents {
		if w.bridgez.Due(intent, now) {
			due = append(due, intent)
		}
	}

	if len(due) == 0 {
		return fmt.Errorf("locked intents dry")
	}

	var g errgroup.Group
	g.SetLimit(10)

	for idx := range due {
		intent := due[idx]
		g.Go(func() error {
			if err := w.bridgez.Poll(ctx, intent); err != nil {
				w.logger.Error("bridgez.Poll", "transaction", intent.TransactionID, "err", err)
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
