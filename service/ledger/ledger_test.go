package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/store/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func testEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(memstore.NewLedgerStore(), logger)
}

func fund(t *testing.T, e *Engine, accountID string, currency core.Currency, amount string) {
	t.Helper()

	_, err := e.ApplyDelta(context.Background(), uuid.NewString(), Delta{
		AccountID: accountID,
		Currency:  currency,
		Amount:    newDecimal(amount),
		Leg:       core.LegAvailable,
		Kind:      core.KindReceive,
	})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestApplyDelta(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	fund(t, e, "alice", core.BTN, "100")

	b, err := e.GetBalance(ctx, "alice", core.BTN)
	if err != nil {
		t.Fatal(err)
	}

	if !b.Available.Equal(newDecimal("100")) {
		t.Fatalf("available = %s, want 100", b.Available)
	}

	if b.Version != 1 {
		t.Fatalf("version = %d, want 1", b.Version)
	}
}

func TestApplyDeltaInsufficientFunds(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	fund(t, e, "alice", core.BTN, "10")

	_, err := e.ApplyDelta(ctx, uuid.NewString(), Delta{
		AccountID: "alice",
		Currency:  core.BTN,
		Amount:    newDecimal("-10.00000001"),
		Leg:       core.LegAvailable,
		Kind:      core.KindSend,
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	b, _ := e.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.Equal(newDecimal("10")) {
		t.Fatalf("available = %s, want 10 after rejected debit", b.Available)
	}
}

func TestApplyAllAtomic(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	fund(t, e, "alice", core.BTN, "50")

	// second delta overdraws, so neither may land
	_, err := e.ApplyAll(ctx, uuid.NewString(),
		Delta{AccountID: "alice", Currency: core.BTN, Amount: newDecimal("-30"), Leg: core.LegAvailable, Kind: core.KindSend},
		Delta{AccountID: "alice", Currency: core.BTN, Amount: newDecimal("-30"), Leg: core.LegAvailable, Kind: core.KindSend},
	)
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	b, _ := e.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.Equal(newDecimal("50")) {
		t.Fatalf("available = %s, want 50 untouched", b.Available)
	}

	entries, _ := e.ListJournal(ctx, "alice", core.BTN, 100)
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want only the funding entry", len(entries))
	}
}

func TestJournalBalanceConsistency(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	fund(t, e, "alice", core.BTN, "100")

	ops := []string{"-12.5", "30", "-7.25", "-0.00000001", "2"}
	for _, amount := range ops {
		if _, err := e.ApplyDelta(ctx, uuid.NewString(), Delta{
			AccountID: "alice",
			Currency:  core.BTN,
			Amount:    newDecimal(amount),
			Leg:       core.LegAvailable,
			Kind:      core.KindSend,
		}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := e.ListJournal(ctx, "alice", core.BTN, 100)
	if err != nil {
		t.Fatal(err)
	}

	sum := decimal.Zero
	for _, entry := range entries {
		if entry.Leg == core.LegAvailable {
			sum = sum.Add(entry.Delta)
		}
	}

	b, _ := e.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.Equal(sum) {
		t.Fatalf("available = %s, journal sum = %s", b.Available, sum)
	}
}

func TestConcurrentDrainToZero(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	fund(t, e, "alice", core.BTN, "10")

	const workers = 20
	var (
		wg      sync.WaitGroup
		mux     sync.Mutex
		applied int
		failed  int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := e.ApplyDelta(ctx, uuid.NewString(), Delta{
				AccountID: "alice",
				Currency:  core.BTN,
				Amount:    newDecimal("-1"),
				Leg:       core.LegAvailable,
				Kind:      core.KindSend,
			})

			mux.Lock()
			defer mux.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, core.ErrInsufficientFunds):
				failed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if applied != 10 || failed != workers-10 {
		t.Fatalf("applied = %d, failed = %d; want 10/%d", applied, failed, workers-10)
	}

	b, _ := e.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.IsZero() {
		t.Fatalf("available = %s, want exactly zero", b.Available)
	}
}

func TestCrossAccountTransfer(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	fund(t, e, "alice", core.BTN, "100")

	_, err := e.ApplyAll(ctx, uuid.NewString(),
		Delta{AccountID: "alice", Currency: core.BTN, Amount: newDecimal("-40"), Leg: core.LegAvailable, Kind: core.KindSend},
		Delta{AccountID: "bob", Currency: core.BTN, Amount: newDecimal("40"), Leg: core.LegAvailable, Kind: core.KindReceive},
	)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := e.GetBalance(ctx, "alice", core.BTN)
	b, _ := e.GetBalance(ctx, "bob", core.BTN)
	if !a.Available.Equal(newDecimal("60")) || !b.Available.Equal(newDecimal("40")) {
		t.Fatalf("alice = %s, bob = %s", a.Available, b.Available)
	}
}

func TestGetBalanceUntouched(t *testing.T) {
	e := testEngine()

	b, err := e.GetBalance(context.Background(), "nobody", core.ETH)
	if err != nil {
		t.Fatal(err)
	}

	if !b.Available.IsZero() || !b.Locked.IsZero() || b.Version != 0 {
		t.Fatalf("untouched balance not zero: %+v", b)
	}
}
