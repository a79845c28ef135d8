package core

// Currency identifies a supported asset.
type Currency string

const (
	BTN  Currency = "BTN"
	BTC  Currency = "BTC"
	ETH  Currency = "ETH"
	USDT Currency = "USDT"
	BNB  Currency = "BNB"
	GLD  Currency = "GLD"
)

// Currencies lists every supported currency in a stable order.
func Currencies() []Currency {
	return []Currency{BTN, BTC, ETH, USDT, BNB, GLD}
}

// Chain returns the chain family an on-chain address for the currency
// belongs to. USDT settles on ethereum.
func (c Currency) Chain() string {
	switch c {
	case BTN:
		return "bituncoin"
	case BTC:
		return "bitcoin"
	case ETH, USDT:
		return "ethereum"
	case BNB:
		return "binance"
	case GLD:
		return "goldcoin"
	default:
		return ""
	}
}

// Supported reports whether the currency is known to the ledger.
func (c Currency) Supported() bool {
	return c.Chain() != ""
}
