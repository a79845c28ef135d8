package staking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/bituncoin/btnledger/store/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func testEngine(lockPeriod time.Duration) (*Engine, *ledger.Engine, core.StakeStore) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerz := ledger.New(memstore.NewLedgerStore(), logger)
	stakes := memstore.NewStakeStore()
	e := New(ledgerz, stakes, logger, Config{
		MinStake:   newDecimal("1"),
		LockPeriod: lockPeriod,
	})
	return e, ledgerz, stakes
}

func fund(t *testing.T, ledgerz *ledger.Engine, accountID string, amount string) {
	t.Helper()

	_, err := ledgerz.ApplyDelta(context.Background(), uuid.NewString(), ledger.Delta{
		AccountID: accountID,
		Currency:  core.BTN,
		Amount:    newDecimal(amount),
		Leg:       core.LegAvailable,
		Kind:      core.KindReceive,
	})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func stakeTx(amount string) *core.Transaction {
	return &core.Transaction{
		ID:       uuid.NewString(),
		Amount:   newDecimal(amount),
		Currency: core.BTN,
		Kind:     core.KindStake,
	}
}

func TestAccrue(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		principal string
		apy       int64
		elapsed   time.Duration
		want      string
	}{
		{"one year at 5%", "500", 500, 365 * 24 * time.Hour, "25"},
		{"half year at 5%", "500", 500, 365 * 12 * time.Hour, "12.5"},
		{"one year at 10%", "1000", 1000, 365 * 24 * time.Hour, "100"},
		{"no elapsed time", "500", 500, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			position := &core.StakePosition{
				Principal:      newDecimal(tt.principal),
				APYBasisPoints: tt.apy,
				LastAccrualAt:  start,
			}

			got := Accrue(position, start.Add(tt.elapsed))
			if !got.Equal(newDecimal(tt.want)) {
				t.Fatalf("Accrue() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStakeMovesFundsToLocked(t *testing.T) {
	e, ledgerz, _ := testEngine(time.Hour)
	ctx := context.Background()

	fund(t, ledgerz, "alice", "1000")

	position, err := e.Stake(ctx, stakeTx("500"), "alice", 500)
	if err != nil {
		t.Fatal(err)
	}

	if !position.Principal.Equal(newDecimal("500")) {
		t.Fatalf("principal = %s, want 500", position.Principal)
	}

	b, _ := ledgerz.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.Equal(newDecimal("500")) || !b.Locked.Equal(newDecimal("500")) {
		t.Fatalf("available = %s, locked = %s; want 500/500", b.Available, b.Locked)
	}
}

func TestStakeBelowMinimum(t *testing.T) {
	e, ledgerz, _ := testEngine(time.Hour)

	fund(t, ledgerz, "alice", "10")

	_, err := e.Stake(context.Background(), stakeTx("0.5"), "alice", 500)
	if !errors.Is(err, core.ErrBelowMinimumStake) {
		t.Fatalf("err = %v, want ErrBelowMinimumStake", err)
	}
}

func TestStakeInsufficientFunds(t *testing.T) {
	e, ledgerz, _ := testEngine(time.Hour)
	ctx := context.Background()

	fund(t, ledgerz, "alice", "100")

	_, err := e.Stake(ctx, stakeTx("200"), "alice", 500)
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	b, _ := ledgerz.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.Equal(newDecimal("100")) || !b.Locked.IsZero() {
		t.Fatalf("balances moved on rejected stake: %+v", b)
	}
}

func TestUnstakeDuringLockPeriod(t *testing.T) {
	e, ledgerz, _ := testEngine(24 * time.Hour)
	ctx := context.Background()

	fund(t, ledgerz, "alice", "1000")

	position, err := e.Stake(ctx, stakeTx("500"), "alice", 500)
	if err != nil {
		t.Fatal(err)
	}

	err = e.Unstake(ctx, stakeTx("500"), position, newDecimal("500"))
	if !errors.Is(err, core.ErrLockPeriodActive) {
		t.Fatalf("err = %v, want ErrLockPeriodActive", err)
	}
}

func TestUnstakeAfterLockPeriod(t *testing.T) {
	e, ledgerz, stakes := testEngine(time.Millisecond)
	ctx := context.Background()

	fund(t, ledgerz, "alice", "1000")

	if _, err := e.Stake(ctx, stakeTx("500"), "alice", 500); err != nil {
		t.Fatal(err)
	}

	// push the stake start past the lock period
	position, _ := stakes.Find(ctx, "alice", core.BTN)
	position.StartedAt = position.StartedAt.Add(-time.Hour)
	if err := stakes.Update(ctx, position); err != nil {
		t.Fatal(err)
	}

	position, _ = stakes.Find(ctx, "alice", core.BTN)
	if err := e.Unstake(ctx, stakeTx("500"), position, newDecimal("500")); err != nil {
		t.Fatal(err)
	}

	b, _ := ledgerz.GetBalance(ctx, "alice", core.BTN)
	if b.Available.LessThan(newDecimal("1000")) || !b.Locked.IsZero() {
		t.Fatalf("available = %s, locked = %s; want full principal back", b.Available, b.Locked)
	}

	if _, err := stakes.Find(ctx, "alice", core.BTN); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("position should be deleted once principal hits zero, got %v", err)
	}
}

func TestClaimReward(t *testing.T) {
	e, ledgerz, stakes := testEngine(time.Hour)
	ctx := context.Background()

	fund(t, ledgerz, "alice", "1000")

	if _, err := e.Stake(ctx, stakeTx("500"), "alice", 500); err != nil {
		t.Fatal(err)
	}

	// rewind the accrual mark one year
	position, _ := stakes.Find(ctx, "alice", core.BTN)
	position.LastAccrualAt = position.LastAccrualAt.Add(-365 * 24 * time.Hour)
	if err := stakes.Update(ctx, position); err != nil {
		t.Fatal(err)
	}

	position, _ = stakes.Find(ctx, "alice", core.BTN)
	reward, err := e.ClaimReward(ctx, stakeTx("0"), position)
	if err != nil {
		t.Fatal(err)
	}

	if !reward.Equal(newDecimal("25")) {
		t.Fatalf("reward = %s, want 25", reward)
	}

	b, _ := ledgerz.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.Equal(newDecimal("525")) {
		t.Fatalf("available = %s, want 525", b.Available)
	}

	if !b.Locked.Equal(newDecimal("500")) {
		t.Fatalf("locked = %s, want 500 unchanged", b.Locked)
	}
}

func TestStakeGrowsExistingPosition(t *testing.T) {
	e, ledgerz, _ := testEngine(time.Hour)
	ctx := context.Background()

	fund(t, ledgerz, "alice", "1000")

	if _, err := e.Stake(ctx, stakeTx("300"), "alice", 500); err != nil {
		t.Fatal(err)
	}

	position, err := e.Stake(ctx, stakeTx("200"), "alice", 500)
	if err != nil {
		t.Fatal(err)
	}

	if !position.Principal.Equal(newDecimal("500")) {
		t.Fatalf("principal = %s, want 500", position.Principal)
	}

	positions, _, err := e.Positions(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	if len(positions) != 1 {
		t.Fatalf("positions = %d, want a single position per currency", len(positions))
	}
}
