package exchange

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

type stubRates struct {
	rate decimal.Decimal
	err  error
}

func (s *stubRates) Rate(context.Context, core.Currency, core.Currency) (decimal.Decimal, error) {
	return s.rate, s.err
}

func testEngine(rates *stubRates) (*Engine, *ledger.Engine) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerz := ledger.New(memstore.NewLedgerStore(), logger)
	e := New(ledgerz, rates, logger, Config{
		FeeBasisPoints:      100, // 1%
		QuoteTTL:            time.Minute,
		SlippageBasisPoints: 100, // 1%
	})
	return e, ledgerz
}

func fund(t *testing.T, ledgerz *ledger.Engine, currency core.Currency, amount string) {
	t.Helper()

	_, err := ledgerz.ApplyDelta(context.Background(), uuid.NewString(), ledger.Delta{
		AccountID: "alice",
		Currency:  currency,
		Amount:    newDecimal(amount),
		Leg:       core.LegAvailable,
		Kind:      core.KindReceive,
	})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestQuote(t *testing.T) {
	e, _ := testEngine(&stubRates{rate: newDecimal("2")})

	quote, err := e.Quote(context.Background(), core.BTN, core.USDT, newDecimal("100"))
	if err != nil {
		t.Fatal(err)
	}

	if !quote.Fee.Equal(newDecimal("1")) {
		t.Fatalf("fee = %s, want 1", quote.Fee)
	}

	// (100 - 1) × 2
	if !quote.OutputAmount.Equal(newDecimal("198")) {
		t.Fatalf("output = %s, want 198", quote.OutputAmount)
	}
}

func TestQuoteUnsupportedPair(t *testing.T) {
	e, _ := testEngine(&stubRates{rate: newDecimal("2")})
	ctx := context.Background()

	if _, err := e.Quote(ctx, core.BTN, core.BTN, newDecimal("1")); !errors.Is(err, core.ErrUnsupportedPair) {
		t.Fatalf("same-currency pair: err = %v", err)
	}

	if _, err := e.Quote(ctx, core.Currency("DOGE"), core.BTN, newDecimal("1")); !errors.Is(err, core.ErrUnsupportedPair) {
		t.Fatalf("unknown currency: err = %v", err)
	}
}

func TestExecute(t *testing.T) {
	e, ledgerz := testEngine(&stubRates{rate: newDecimal("2")})
	ctx := context.Background()

	fund(t, ledgerz, core.BTN, "100")

	tx := &core.Transaction{ID: uuid.NewString(), Amount: newDecimal("100"), Currency: core.BTN, Kind: core.KindExchange}
	quote, err := e.Execute(ctx, tx, "alice", core.USDT, nil)
	if err != nil {
		t.Fatal(err)
	}

	btn, _ := ledgerz.GetBalance(ctx, "alice", core.BTN)
	usdt, _ := ledgerz.GetBalance(ctx, "alice", core.USDT)

	if !btn.Available.IsZero() {
		t.Fatalf("btn available = %s, want 0", btn.Available)
	}

	if !usdt.Available.Equal(quote.OutputAmount) || !usdt.Available.Equal(newDecimal("198")) {
		t.Fatalf("usdt available = %s, want 198", usdt.Available)
	}
}

func TestExecuteExpiredQuoteWithSlippage(t *testing.T) {
	rates := &stubRates{rate: newDecimal("2")}
	e, ledgerz := testEngine(rates)
	ctx := context.Background()

	fund(t, ledgerz, core.BTN, "100")

	stale := &core.Quote{
		From:     core.BTN,
		To:       core.USDT,
		Amount:   newDecimal("100"),
		Rate:     newDecimal("2"),
		QuotedAt: time.Now().Add(-2 * time.Minute),
	}

	// rate moved 10%, far past the 1% tolerance
	rates.rate = newDecimal("2.2")

	tx := &core.Transaction{ID: uuid.NewString(), Amount: newDecimal("100"), Currency: core.BTN, Kind: core.KindExchange}
	_, err := e.Execute(ctx, tx, "alice", core.USDT, stale)
	if !errors.Is(err, core.ErrQuoteExpired) {
		t.Fatalf("err = %v, want ErrQuoteExpired", err)
	}

	b, _ := ledgerz.GetBalance(ctx, "alice", core.BTN)
	if !b.Available.Equal(newDecimal("100")) {
		t.Fatalf("available = %s, funds moved on refused execution", b.Available)
	}
}

func TestExecuteExpiredQuoteWithinTolerance(t *testing.T) {
	e, ledgerz := testEngine(&stubRates{rate: newDecimal("2")})
	ctx := context.Background()

	fund(t, ledgerz, core.BTN, "100")

	stale := &core.Quote{
		From:     core.BTN,
		To:       core.USDT,
		Amount:   newDecimal("100"),
		Rate:     newDecimal("2.001"),
		QuotedAt: time.Now().Add(-2 * time.Minute),
	}

	tx := &core.Transaction{ID: uuid.NewString(), Amount: newDecimal("100"), Currency: core.BTN, Kind: core.KindExchange}
	if _, err := e.Execute(ctx, tx, "alice", core.USDT, stale); err != nil {
		t.Fatalf("expired quote within tolerance should execute at the fresh rate: %v", err)
	}
}

func TestExecuteInsufficientFunds(t *testing.T) {
	e, ledgerz := testEngine(&stubRates{rate: newDecimal("2")})
	ctx := context.Background()

	fund(t, ledgerz, core.BTN, "10")

	tx := &core.Transaction{ID: uuid.NewString(), Amount: newDecimal("100"), Currency: core.BTN, Kind: core.KindExchange}
	_, err := e.Execute(ctx, tx, "alice", core.USDT, nil)
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	usdt, _ := ledgerz.GetBalance(ctx, "alice", core.USDT)
	if !usdt.Available.IsZero() {
		t.Fatalf("usdt credited on failed exchange: %s", usdt.Available)
	}
}
