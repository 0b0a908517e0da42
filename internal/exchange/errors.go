package exchange

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned when an authenticated endpoint is called
// without credentials configured for the gateway.
var ErrAuthRequired = errors.New("exchange API credentials required")

// APIError is a structured error response from an exchange API.
type APIError struct {
	Status  int
	Payload string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error %d: %s", e.Status, e.Payload)
}

// TransportError wraps connectivity failures (timeouts, refused connections)
// distinct from errors the exchange itself returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
