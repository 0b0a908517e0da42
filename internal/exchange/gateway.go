package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/types"
)

// Terminal order statuses as reported by a gateway. Anything other than
// FILLED is treated by the engine as a failed leg.
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusCanceled        = "CANCELED"
)

// PriceLevel is one order-book level: price and the quantity resting at it.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// OrderBook holds the top levels of both sides of a book. Bids are sorted
// descending by price, asks ascending, as exchanges return them.
type OrderBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// OrderResult is the gateway's interpretation of a market-order response.
type OrderResult struct {
	OrderID          string          `json:"exchange_order_id"`
	Status           string          `json:"status"`
	ExecutedQuantity decimal.Decimal `json:"executed_quantity"`
	ExecutedPriceAvg decimal.Decimal `json:"executed_price_avg"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	FeeCurrency      string          `json:"fee_currency"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Gateway is the per-exchange client surface consumed by the execution
// engine. Implementations own wire formats, request signing and fill
// interpretation; the engine only sees this interface.
type Gateway interface {
	Name() string
	GetOrderBookDepth(ctx context.Context, pair string, limit int) (*OrderBook, error)
	CreateMarketOrder(ctx context.Context, pair, side string, quantity decimal.Decimal) (*OrderResult, error)
}

// TickerSource is implemented by gateways that can supply a full bid/ask
// snapshot. The scanner consults it when asked to scan a live exchange.
type TickerSource interface {
	GetTickers(ctx context.Context) (types.TickerSnapshot, error)
}
