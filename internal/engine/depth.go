package engine

import (
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/exchange"
	"github.com/triarb/triarb-api/internal/types"
)

// sufficientDepth reports whether the top levels of the book can absorb the
// required quantity within the slippage tolerance around the reference
// price. For a BUY it accumulates ask-side quantity, skipping levels priced
// above ref*(1+tolerance); for a SELL it mirrors on the bid side, skipping
// levels below ref*(1-tolerance). An empty side never has sufficient depth.
func sufficientDepth(book *exchange.OrderBook, side string, required, refPrice, tolerance decimal.Decimal) bool {
	if book == nil {
		return false
	}

	one := decimal.NewFromInt(1)
	accumulated := decimal.Zero

	switch side {
	case types.SideBuy:
		if len(book.Asks) == 0 {
			return false
		}
		ceiling := refPrice.Mul(one.Add(tolerance))
		for _, level := range book.Asks {
			if level.Price.GreaterThan(ceiling) {
				continue
			}
			accumulated = accumulated.Add(level.Qty)
			if accumulated.GreaterThanOrEqual(required) {
				return true
			}
		}
	case types.SideSell:
		if len(book.Bids) == 0 {
			return false
		}
		floor := refPrice.Mul(one.Sub(tolerance))
		for _, level := range book.Bids {
			if level.Price.LessThan(floor) {
				continue
			}
			accumulated = accumulated.Add(level.Qty)
			if accumulated.GreaterThanOrEqual(required) {
				return true
			}
		}
	}
	return false
}
