package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a conversion offer. OutputAmount is what the account receives
// after the fee is charged on the input amount.
type Quote struct {
	From         Currency        `json:"from"`
	To           Currency        `json:"to"`
	Amount       decimal.Decimal `json:"amount"`
	Rate         decimal.Decimal `json:"rate"`
	Fee          decimal.Decimal `json:"fee"`
	OutputAmount decimal.Decimal `json:"output_amount"`
	QuotedAt     time.Time       `json:"quoted_at"`
}

// RateProvider is the external price feed. Rate returns how many units of
// `to` one unit of `from` buys.
type RateProvider interface {
	Rate(ctx context.Context, from, to Currency) (decimal.Decimal, error)
}
