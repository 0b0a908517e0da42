package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/types"
)

// SimulatedConfig tunes the behaviour of the in-process exchange simulator.
type SimulatedConfig struct {
	Name            string
	MinLatency      int     // milliseconds
	MaxLatency      int     // milliseconds
	SuccessRate     float64 // 0-1, probability a market order fills
	LiquidityFactor float64 // 0-1, scales synthetic book depth
	FeeRate         float64 // fraction of notional charged per fill
	Deterministic   bool    // disables latency, variance and random rejections
}

// Simulated is an in-process ExchangeGateway backed by a mutable ticker
// snapshot. It synthesizes order books around the current quotes and fills
// market orders with configurable latency, fees and failure rates. It backs
// the simulation binary and any test that needs a full gateway.
type Simulated struct {
	cfg SimulatedConfig

	mu      sync.RWMutex
	tickers types.TickerSnapshot

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ Gateway = (*Simulated)(nil)
var _ TickerSource = (*Simulated)(nil)

func NewSimulated(cfg SimulatedConfig, tickers types.TickerSnapshot) *Simulated {
	if cfg.Name == "" {
		cfg.Name = "simulated"
	}
	if cfg.SuccessRate <= 0 {
		cfg.SuccessRate = 1.0
	}
	if cfg.LiquidityFactor <= 0 {
		cfg.LiquidityFactor = 1.0
	}
	s := &Simulated{
		cfg:     cfg,
		tickers: make(types.TickerSnapshot, len(tickers)),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for sym, q := range tickers {
		s.tickers[sym] = q
	}
	return s
}

func (s *Simulated) Name() string { return s.cfg.Name }

// SetTickers replaces the simulator's quote snapshot. The market-data
// refresh scheduler calls this; the core never does.
func (s *Simulated) SetTickers(tickers types.TickerSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers = make(types.TickerSnapshot, len(tickers))
	for sym, q := range tickers {
		s.tickers[sym] = q
	}
}

// GetTickers returns a copy of the current snapshot.
func (s *Simulated) GetTickers(_ context.Context) (types.TickerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(types.TickerSnapshot, len(s.tickers))
	for sym, q := range s.tickers {
		out[sym] = q
	}
	return out, nil
}

// GetOrderBookDepth synthesizes the top levels of the book around the
// current quote: asks climbing from the ask price, bids descending from the
// bid, roughly 1000 quote units resting per level scaled by the liquidity
// factor.
func (s *Simulated) GetOrderBookDepth(ctx context.Context, pair string, limit int) (*OrderBook, error) {
	if err := s.simulateLatency(ctx, "depth query"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	quote, ok := s.tickers[pair]
	s.mu.RUnlock()
	if !ok {
		return nil, &APIError{Status: 404, Payload: fmt.Sprintf("unknown symbol %s", pair)}
	}
	if limit <= 0 {
		limit = 10
	}

	levelNotional := decimal.NewFromInt(1000).Mul(decimal.NewFromFloat(s.cfg.LiquidityFactor))
	step := decimal.NewFromFloat(0.0005) // 5 bps between levels

	book := &OrderBook{}
	for i := 0; i < limit; i++ {
		offset := step.Mul(decimal.NewFromInt(int64(i)))

		askPrice := quote.Ask.Mul(decimal.NewFromInt(1).Add(offset))
		if askPrice.Sign() > 0 {
			book.Asks = append(book.Asks, PriceLevel{
				Price: askPrice,
				Qty:   levelNotional.Div(askPrice).Round(8),
			})
		}

		bidPrice := quote.Bid.Mul(decimal.NewFromInt(1).Sub(offset))
		if bidPrice.Sign() > 0 {
			book.Bids = append(book.Bids, PriceLevel{
				Price: bidPrice,
				Qty:   levelNotional.Div(bidPrice).Round(8),
			})
		}
	}
	return book, nil
}

// CreateMarketOrder fills the order at the current quote with a small price
// variance, or rejects it according to the configured success rate.
func (s *Simulated) CreateMarketOrder(ctx context.Context, pair, side string, quantity decimal.Decimal) (*OrderResult, error) {
	logger := log.With().
		Str("exchange", s.cfg.Name).
		Str("pair", pair).
		Str("side", side).
		Str("quantity", quantity.String()).
		Logger()

	if err := s.simulateLatency(ctx, "order placement"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	quote, ok := s.tickers[pair]
	s.mu.RUnlock()
	if !ok {
		return nil, &APIError{Status: 404, Payload: fmt.Sprintf("unknown symbol %s", pair)}
	}
	if quantity.Sign() <= 0 {
		return nil, &APIError{Status: 400, Payload: "quantity must be positive"}
	}

	orderID := fmt.Sprintf("SIM-%s-%d", strings.ToUpper(pair), s.randInt63())

	if !s.cfg.Deterministic && s.randFloat() > s.cfg.SuccessRate {
		logger.Warn().Float64("success_rate", s.cfg.SuccessRate).Msg("simulated order rejected")
		return &OrderResult{
			OrderID:   orderID,
			Status:    OrderStatusRejected,
			CreatedAt: time.Now(),
		}, nil
	}

	refPrice := quote.Ask
	if side == types.SideSell {
		refPrice = quote.Bid
	}

	execPrice := refPrice
	if !s.cfg.Deterministic {
		// up to 10 bps of adverse slippage
		variance := decimal.NewFromFloat(1 + s.randFloat()*0.001)
		if side == types.SideSell {
			variance = decimal.NewFromFloat(1 - s.randFloat()*0.001)
		}
		execPrice = refPrice.Mul(variance).Round(8)
	}

	notional := execPrice.Mul(quantity)
	fee := notional.Mul(decimal.NewFromFloat(s.cfg.FeeRate)).Round(8)

	result := &OrderResult{
		OrderID:          orderID,
		Status:           OrderStatusFilled,
		ExecutedQuantity: quantity,
		ExecutedPriceAvg: execPrice,
		FeeAmount:        fee,
		CreatedAt:        time.Now(),
	}

	logger.Info().
		Str("order_id", result.OrderID).
		Str("executed_price", result.ExecutedPriceAvg.String()).
		Str("fee_amount", result.FeeAmount.String()).
		Msg("simulated order filled")

	return result, nil
}

func (s *Simulated) simulateLatency(ctx context.Context, op string) error {
	if s.cfg.Deterministic || s.cfg.MaxLatency <= 0 {
		return nil
	}
	span := s.cfg.MaxLatency - s.cfg.MinLatency + 1
	latency := time.Duration(s.randIntn(span)+s.cfg.MinLatency) * time.Millisecond
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return &TransportError{Op: op, Err: ctx.Err()}
	}
}

func (s *Simulated) randFloat() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func (s *Simulated) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

func (s *Simulated) randInt63() int64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Int63()
}
