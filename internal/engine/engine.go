package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/events"
	"github.com/triarb/triarb-api/internal/exchange"
	"github.com/triarb/triarb-api/internal/rules"
	"github.com/triarb/triarb-api/internal/types"
	"github.com/triarb/triarb-api/internal/wallet"
	"gorm.io/gorm"
)

// Config tunes execution behaviour. Zero values fall back to the documented
// defaults: top-10 depth levels, 2% slippage tolerance, 10% profit
// commission.
type Config struct {
	DepthLimit        int
	SlippageTolerance decimal.Decimal
	CommissionRate    decimal.Decimal
}

func (c Config) withDefaults() Config {
	if c.DepthLimit <= 0 {
		c.DepthLimit = 10
	}
	if c.SlippageTolerance.Sign() <= 0 {
		c.SlippageTolerance = decimal.RequireFromString("0.02")
	}
	if c.CommissionRate.Sign() <= 0 {
		c.CommissionRate = decimal.RequireFromString("0.10")
	}
	return c
}

// Engine executes a chosen opportunity as three strictly sequential market
// orders, recording every state transition on the attempt and its legs.
// Attempts for different users may run concurrently; within an attempt there
// is no parallelism because each leg's input is the previous leg's output.
type Engine struct {
	db       *Database
	rules    *rules.Catalog
	registry *exchange.Registry
	wallet   *wallet.Service
	bus      *events.Bus
	cfg      Config
}

func NewEngine(gormDB *gorm.DB, catalog *rules.Catalog, registry *exchange.Registry, walletSvc *wallet.Service, bus *events.Bus, cfg Config) *Engine {
	return &Engine{
		db:       NewDatabase(gormDB),
		rules:    catalog,
		registry: registry,
		wallet:   walletSvc,
		bus:      bus,
		cfg:      cfg.withDefaults(),
	}
}

// Execute runs the full three-leg cycle for a client. It always returns the
// terminal attempt when one was created, alongside the error that stopped it
// if any. Failed legs are never unwound: a gateway failure after leg 1 has
// filled leaves the client holding the intermediate asset.
func (e *Engine) Execute(ctx context.Context, opp types.Opportunity, startAmount decimal.Decimal, clientID string) (*types.TradeAttempt, error) {
	if err := opp.Validate(); err != nil {
		return nil, err
	}
	if startAmount.Sign() <= 0 {
		return nil, fmt.Errorf("start amount must be positive")
	}
	gw, err := e.registry.Resolve(opp.Exchange)
	if err != nil {
		return nil, err
	}

	oppJSON, err := json.Marshal(opp)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot opportunity: %w", err)
	}

	attempt := &types.TradeAttempt{
		AttemptID:        "ATT_" + uuid.New().String(),
		ClientID:         clientID,
		Exchange:         opp.Exchange,
		OpportunityJSON:  string(oppJSON),
		Status:           types.AttemptStatusInProgress,
		StartAmount:      startAmount,
		CalculatedProfit: opp.Profit,
	}
	if err := e.db.CreateAttempt(attempt); err != nil {
		return nil, fmt.Errorf("failed to create trade attempt: %w", err)
	}
	e.publishAttempt(attempt)

	logger := log.With().
		Str("service", "engine").
		Str("attempt_id", attempt.AttemptID).
		Str("client_id", clientID).
		Str("exchange", opp.Exchange).
		Logger()
	logger.Info().
		Strs("path", opp.Path).
		Str("start_amount", startAmount.String()).
		Msg("starting trade attempt")

	// The wallet must exist up front so commission collection cannot
	// discover a missing wallet after money has moved on the exchange.
	if _, err := e.wallet.GetWallet(clientID); err != nil {
		return e.failAttempt(attempt, fmt.Errorf("wallet not found at start of trade execution: %w", err)), err
	}

	// All three legs exist from the start so an early abort can mark the
	// never-reached legs canceled instead of leaving them unrecorded.
	legs := make([]*types.OrderLeg, 3)
	for i := 0; i < 3; i++ {
		legs[i] = &types.OrderLeg{
			AttemptID: attempt.AttemptID,
			LegNumber: i + 1,
			Exchange:  opp.Exchange,
			Pair:      opp.Path[i],
			Side:      opp.Actions[i],
			Status:    types.LegStatusPending,
		}
		if err := e.db.CreateLeg(legs[i]); err != nil {
			return e.failAttempt(attempt, fmt.Errorf("failed to create order leg %d: %w", i+1, err)), err
		}
		e.publishLeg(attempt, legs[i])
	}

	held := startAmount
	for i := 0; i < 3; i++ {
		leg := legs[i]
		rate := opp.Rates[i]

		quantity, err := e.validateLeg(leg, held, rate)
		if err != nil {
			logger.Warn().Err(err).Int("leg", leg.LegNumber).Msg("leg validation failed")
			return e.failAttempt(attempt, err), err
		}
		leg.IntendedQuantity = quantity
		leg.IntendedPrice = rate
		if err := e.db.UpdateLeg(leg); err != nil {
			return e.failAttempt(attempt, err), err
		}
		e.publishLeg(attempt, leg)

		if err := e.checkDepth(ctx, gw, attempt, leg, quantity, rate); err != nil {
			logger.Warn().Err(err).Int("leg", leg.LegNumber).Msg("depth check failed")
			return e.failAttempt(attempt, err), err
		}
		logger.Debug().Int("leg", leg.LegNumber).Msg("depth check passed")

		output, err := e.placeOrder(ctx, gw, attempt, leg, quantity, rate)
		if err != nil {
			logger.Error().Err(err).Int("leg", leg.LegNumber).Msg("order placement failed")
			return e.failAttempt(attempt, err), err
		}

		held = output
		logger.Info().
			Int("leg", leg.LegNumber).
			Str("holding", held.String()).
			Str("asset", opp.AssetSequence[i+1]).
			Msg("leg filled")
	}

	attempt.Status = types.AttemptStatusCompleted
	attempt.FinalAmount = held
	attempt.ActualProfit = held.Sub(startAmount)
	if err := e.db.UpdateAttempt(attempt); err != nil {
		return attempt, err
	}

	e.collectCommission(attempt)
	if err := e.db.UpdateAttempt(attempt); err != nil {
		return attempt, err
	}
	e.publishAttempt(attempt)

	logger.Info().
		Str("final_amount", attempt.FinalAmount.String()).
		Str("actual_profit", attempt.ActualProfit.String()).
		Msg("trade attempt completed")

	return e.reload(attempt), nil
}

// GetAttempt returns a client's attempt with its legs, or nil if it does not
// exist or belongs to someone else.
func (e *Engine) GetAttempt(attemptID, clientID string) (*types.TradeAttempt, error) {
	return e.db.GetAttemptByClient(attemptID, clientID)
}

// GetClientAttempts lists a client's attempts, newest first.
func (e *Engine) GetClientAttempts(clientID string) ([]types.TradeAttempt, error) {
	return e.db.GetClientAttempts(clientID)
}

// validateLeg sizes the order from the held amount and the opportunity's
// rate, rounds down to the pair's base precision and enforces the pair's
// minimum quantity and notional. No network calls happen here.
func (e *Engine) validateLeg(leg *types.OrderLeg, held, rate decimal.Decimal) (decimal.Decimal, error) {
	rule := e.rules.Get(leg.Exchange, leg.Pair)

	quantity := held
	if leg.Side == types.SideBuy {
		quantity = held.Div(rate)
	}
	quantity = quantity.RoundDown(int32(rule.BasePrecision))

	if quantity.Sign() <= 0 {
		return decimal.Zero, &ValidationError{Leg: leg.LegNumber, Pair: leg.Pair,
			Reason: fmt.Sprintf("calculated quantity %s is zero or negative", quantity.String())}
	}
	if quantity.LessThan(rule.MinQty) {
		return decimal.Zero, &ValidationError{Leg: leg.LegNumber, Pair: leg.Pair,
			Reason: fmt.Sprintf("quantity %s below minimum %s", quantity.String(), rule.MinQty.String())}
	}
	if rule.MinNotional.Sign() > 0 {
		notional := quantity.Mul(rate)
		if notional.LessThan(rule.MinNotional) {
			return decimal.Zero, &ValidationError{Leg: leg.LegNumber, Pair: leg.Pair,
				Reason: fmt.Sprintf("notional %s below minimum %s", notional.String(), rule.MinNotional.String())}
		}
	}
	return quantity, nil
}

// checkDepth queries the top of the book and verifies it can absorb the leg
// within the slippage tolerance. Any gateway error fails the check; a failed
// check marks the leg errored before any order is sent.
func (e *Engine) checkDepth(ctx context.Context, gw exchange.Gateway, attempt *types.TradeAttempt, leg *types.OrderLeg, quantity, refPrice decimal.Decimal) error {
	book, err := gw.GetOrderBookDepth(ctx, leg.Pair, e.cfg.DepthLimit)
	if err != nil {
		depthErr := &DepthError{Leg: leg.LegNumber, Pair: leg.Pair, Side: leg.Side,
			Reason: fmt.Sprintf("depth query failed: %v", err)}
		e.markLegError(attempt, leg, depthErr.Reason)
		return depthErr
	}

	if !sufficientDepth(book, leg.Side, quantity, refPrice, e.cfg.SlippageTolerance) {
		depthErr := &DepthError{Leg: leg.LegNumber, Pair: leg.Pair, Side: leg.Side,
			Reason: "insufficient order book depth within slippage tolerance"}
		e.markLegError(attempt, leg, depthErr.Reason)
		return depthErr
	}
	return nil
}

// placeOrder submits the market order and interprets the fill. It returns
// the realized output amount carried into the next leg: the executed base
// quantity for a BUY, the proceeds at the average fill price for a SELL.
func (e *Engine) placeOrder(ctx context.Context, gw exchange.Gateway, attempt *types.TradeAttempt, leg *types.OrderLeg, quantity, rate decimal.Decimal) (decimal.Decimal, error) {
	leg.Status = types.LegStatusNew
	if err := e.db.UpdateLeg(leg); err != nil {
		return decimal.Zero, err
	}
	e.publishLeg(attempt, leg)

	result, err := gw.CreateMarketOrder(ctx, leg.Pair, leg.Side, quantity)
	if err != nil {
		gwErr := &GatewayError{Leg: leg.LegNumber, Pair: leg.Pair, Err: err}
		e.markLegError(attempt, leg, gwErr.Error())
		return decimal.Zero, gwErr
	}

	leg.ExchangeOrderID = result.OrderID
	if result.Status != exchange.OrderStatusFilled {
		gwErr := &GatewayError{Leg: leg.LegNumber, Pair: leg.Pair,
			Err: fmt.Errorf("order not filled, terminal status %s", result.Status)}
		e.markLegError(attempt, leg, gwErr.Error())
		return decimal.Zero, gwErr
	}

	leg.ExecutedQuantity = result.ExecutedQuantity
	leg.ExecutedPriceAvg = result.ExecutedPriceAvg
	if leg.ExecutedQuantity.Sign() <= 0 {
		leg.ExecutedQuantity = quantity
	}
	if leg.ExecutedPriceAvg.Sign() <= 0 {
		leg.ExecutedPriceAvg = rate
	}
	leg.FeeAmount = result.FeeAmount
	leg.FeeCurrency = result.FeeCurrency
	leg.Status = types.LegStatusFilled
	if err := e.db.UpdateLeg(leg); err != nil {
		return decimal.Zero, err
	}
	e.publishLeg(attempt, leg)

	if leg.Side == types.SideBuy {
		return leg.ExecutedQuantity, nil
	}
	return leg.ExecutedQuantity.Mul(leg.ExecutedPriceAvg), nil
}

// collectCommission deducts the fixed-rate cut of a positive actual profit
// from the client's wallet. Commission collection is deliberately decoupled
// from trade settlement: an insufficient balance is recorded as an
// admin-visible note and never reverts the completed trade.
func (e *Engine) collectCommission(attempt *types.TradeAttempt) {
	if attempt.ActualProfit.Sign() <= 0 {
		return
	}

	commission := attempt.ActualProfit.Mul(e.cfg.CommissionRate).RoundDown(8)
	if commission.Sign() <= 0 {
		return
	}
	description := fmt.Sprintf("Profit commission for trade attempt %s", attempt.AttemptID)

	_, err := e.wallet.DeductCredit(attempt.ClientID, commission, description)
	switch {
	case err == nil:
		attempt.CommissionDeducted = commission
		attempt.AdminNotes = appendNote(attempt.AdminNotes,
			fmt.Sprintf("Commission %s deducted.", commission.String()))
	case errors.Is(err, wallet.ErrInsufficientBalance):
		log.Error().
			Str("service", "engine").
			Str("attempt_id", attempt.AttemptID).
			Str("commission", commission.String()).
			Msg("insufficient balance to deduct commission")
		attempt.AdminNotes = appendNote(attempt.AdminNotes,
			fmt.Sprintf("CRITICAL: Insufficient balance for commission %s.", commission.String()))
	default:
		log.Error().Err(err).
			Str("service", "engine").
			Str("attempt_id", attempt.AttemptID).
			Msg("error deducting commission")
		attempt.AdminNotes = appendNote(attempt.AdminNotes,
			fmt.Sprintf("CRITICAL: Error deducting commission: %v.", err))
	}
}

// failAttempt marks the attempt failed, cancels every leg still pending or
// new with an explanatory note, and returns the reloaded attempt.
func (e *Engine) failAttempt(attempt *types.TradeAttempt, cause error) *types.TradeAttempt {
	attempt.Status = types.AttemptStatusFailed
	attempt.ErrorMessage = cause.Error()
	if err := e.db.UpdateAttempt(attempt); err != nil {
		log.Error().Err(err).
			Str("attempt_id", attempt.AttemptID).
			Msg("failed to persist failed attempt")
	}

	open, err := e.db.OpenLegs(attempt.AttemptID)
	if err != nil {
		log.Error().Err(err).
			Str("attempt_id", attempt.AttemptID).
			Msg("failed to load open legs for cancellation")
	}
	for i := range open {
		leg := open[i]
		leg.Status = types.LegStatusCanceled
		leg.ErrorMessage = appendNote(leg.ErrorMessage, "Attempt failed before this leg was placed.")
		if err := e.db.UpdateLeg(&leg); err != nil {
			log.Error().Err(err).
				Str("attempt_id", attempt.AttemptID).
				Int("leg", leg.LegNumber).
				Msg("failed to cancel open leg")
			continue
		}
		e.publishLeg(attempt, &leg)
	}

	e.publishAttempt(attempt)
	return e.reload(attempt)
}

func (e *Engine) markLegError(attempt *types.TradeAttempt, leg *types.OrderLeg, message string) {
	leg.Status = types.LegStatusError
	leg.ErrorMessage = appendNote(leg.ErrorMessage, message)
	if err := e.db.UpdateLeg(leg); err != nil {
		log.Error().Err(err).
			Str("attempt_id", leg.AttemptID).
			Int("leg", leg.LegNumber).
			Msg("failed to persist leg error")
	}
	e.publishLeg(attempt, leg)
}

func (e *Engine) reload(attempt *types.TradeAttempt) *types.TradeAttempt {
	full, err := e.db.GetAttempt(attempt.AttemptID)
	if err != nil || full == nil {
		return attempt
	}
	return full
}

func (e *Engine) publishAttempt(attempt *types.TradeAttempt) {
	e.bus.Publish(events.Event{
		Type:     events.TypeAttemptUpdated,
		ClientID: attempt.ClientID,
		Payload:  attempt,
	})
}

// publishLeg emits a leg update stamped with the owning client so the
// WebSocket hub never broadcasts one client's legs to another.
func (e *Engine) publishLeg(attempt *types.TradeAttempt, leg *types.OrderLeg) {
	e.bus.Publish(events.Event{
		Type:     events.TypeLegUpdated,
		ClientID: attempt.ClientID,
		Payload:  leg,
	})
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
