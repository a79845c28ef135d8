// Package exchange converts between currencies on the same account. Rates
// come from a pluggable provider; execution always re-quotes so a stale
// quote can never set the applied rate.
package exchange

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/shopspring/decimal"
	"github.com/zyedidia/generic/cache"
)

type Config struct {
	// FeeBasisPoints is charged on the input amount.
	FeeBasisPoints int64 `valid:"required"`
	// QuoteTTL is how long a caller-supplied quote stays executable as-is.
	QuoteTTL time.Duration `valid:"required"`
	// SlippageBasisPoints bounds the rate drift tolerated for an expired
	// quote before execution is refused.
	SlippageBasisPoints int64 `valid:"required"`
}

func New(ledgerz *ledger.Engine, rates core.RateProvider, logger *slog.Logger, cfg Config) *Engine {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	return &Engine{
		ledgerz: ledgerz,
		rates:   rates,
		logger:  logger.With("service", "exchange"),
		cfg:     cfg,
		recent:  cache.New[string, rateAt](256),
	}
}

type Engine struct {
	ledgerz *ledger.Engine
	rates   core.RateProvider
	logger  *slog.Logger
	cfg     Config

	// recent micro-caches provider rates so a quote/execute pair does not
	// hit the feed twice within the same second
	recent *cache.Cache[string, rateAt]
	mux    sync.Mutex
}

type rateAt struct {
	rate decimal.Decimal
	at   time.Time
}

func (e *Engine) rate(ctx context.Context, from, to core.Currency) (decimal.Decimal, error) {
	key := string(from) + "-" + string(to)

	e.mux.Lock()
	v, ok := e.recent.Get(key)
	e.mux.Unlock()
	if ok && time.Since(v.at) < time.Second {
		return v.rate, nil
	}

	rate, err := e.rates.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	e.mux.Lock()
	e.recent.Put(key, rateAt{rate: rate, at: time.Now()})
	e.mux.Unlock()

	return rate, nil
}

func (e *Engine) Quote(ctx context.Context, from, to core.Currency, amount decimal.Decimal) (*core.Quote, error) {
	if !from.Supported() || !to.Supported() || from == to {
		return nil, core.ErrUnsupportedPair
	}

	rate, err := e.rate(ctx, from, to)
	if err != nil {
		return nil, core.ErrUnsupportedPair
	}

	fee := amount.Mul(decimal.NewFromInt(e.cfg.FeeBasisPoints)).Div(decimal.NewFromInt(10000))
	output := amount.Sub(fee).Mul(rate).Round(8)

	return &core.Quote{
		From:         from,
		To:           to,
		Amount:       amount,
		Rate:         rate,
		Fee:          fee,
		OutputAmount: output,
		QuotedAt:     time.Now(),
	}, nil
}

// Execute re-quotes and converts. A caller quote older than the TTL whose
// rate disagrees with the re-quote beyond the slippage tolerance fails
// with ErrQuoteExpired; otherwise the fresh quote applies. Debit and
// credit land atomically.
func (e *Engine) Execute(ctx context.Context, tx *core.Transaction, accountID string, to core.Currency, quoted *core.Quote) (*core.Quote, error) {
	fresh, err := e.Quote(ctx, tx.Currency, to, tx.Amount)
	if err != nil {
		return nil, err
	}

	if quoted != nil && time.Since(quoted.QuotedAt) > e.cfg.QuoteTTL && e.slipped(quoted.Rate, fresh.Rate) {
		return nil, core.ErrQuoteExpired
	}

	if _, err := e.ledgerz.ApplyAll(ctx, tx.ID,
		ledger.Delta{AccountID: accountID, Currency: tx.Currency, Amount: tx.Amount.Neg(), Leg: core.LegAvailable, Kind: core.KindExchange},
		ledger.Delta{AccountID: accountID, Currency: to, Amount: fresh.OutputAmount, Leg: core.LegAvailable, Kind: core.KindExchange},
	); err != nil {
		return nil, err
	}

	e.logger.Info("exchange executed", "account", accountID,
		"from", fresh.From, "to", fresh.To, "amount", fresh.Amount, "output", fresh.OutputAmount, "rate", fresh.Rate)
	return fresh, nil
}

func (e *Engine) slipped(quoted, fresh decimal.Decimal) bool {
	if quoted.IsZero() {
		return true
	}

	drift := fresh.Sub(quoted).Abs().Div(quoted)
	tolerance := decimal.NewFromInt(e.cfg.SlippageBasisPoints).Div(decimal.NewFromInt(10000))
	return drift.GreaterThan(tolerance)
}
