package engine

import "fmt"

// ValidationError means a leg's computed order size violates the pair's
// rules. It is raised before any network call; the attempt aborts with no
// side effects on the exchange.
type ValidationError struct {
	Leg    int
	Pair   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("leg %d (%s): %s", e.Leg, e.Pair, e.Reason)
}

// DepthError means the order book could not absorb the leg's quantity within
// the slippage tolerance. Like validation failures it aborts the attempt
// before any order is placed for that leg.
type DepthError struct {
	Leg    int
	Pair   string
	Side   string
	Reason string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("leg %d (%s %s): %s", e.Leg, e.Side, e.Pair, e.Reason)
}

// GatewayError wraps an order placement failure. Legs already filled before
// it stand unmodified; the engine does not unwind them.
type GatewayError struct {
	Leg  int
	Pair string
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("leg %d (%s): order placement failed: %v", e.Leg, e.Pair, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
