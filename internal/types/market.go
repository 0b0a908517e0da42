package types

import "github.com/shopspring/decimal"

// Order sides as submitted to an exchange.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TickerQuote is the best bid/ask observed for one symbol. A quote with a
// missing or non-positive side is unusable for opportunity search and is
// skipped by the finder.
type TickerQuote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
}

// TickerSnapshot maps standardized symbol (e.g. BTCUSDT) to its latest quote.
// Snapshots are supplied by an exchange gateway or any other collaborator;
// the finder never fetches market data itself.
type TickerSnapshot map[string]TickerQuote
