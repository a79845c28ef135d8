package gateway

import (
	"context"

	"github.com/bituncoin/btnledger/core"
	"github.com/shopspring/decimal"
)

// NewFixedRates returns a rate provider backed by a static table, keyed
// "FROM-TO". Missing pairs fall back to the inverse of the reverse pair.
// Meant for development setups without a live feed.
func NewFixedRates(table map[string]decimal.Decimal) core.RateProvider {
	return fixedRates(table)
}

type fixedRates map[string]decimal.Decimal

func (r fixedRates) Rate(_ context.Context, from, to core.Currency) (decimal.Decimal, error) {
	if rate, ok := r[string(from)+"-"+string(to)]; ok && rate.IsPositive() {
		return rate, nil
	}

	if rate, ok := r[string(to)+"-"+string(from)]; ok && rate.IsPositive() {
		return decimal.NewFromInt(1).Div(rate), nil
	}

	return decimal.Zero, core.ErrUnsupportedPair
}
