package entity

import "errors"

var (
	// ErrUpstreamUnavailable is returned when the terminal session is down or
	// mid-reconnect. Transient: callers retry with backoff, never crash.
	ErrUpstreamUnavailable = errors.New("upstream terminal unavailable")

	// ErrInvalidOrder is returned when an order intent fails structural
	// validation before any upstream call is made. Terminal.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidRiskInput is returned by position sizing for unusable inputs
	// (zero stop distance, non-positive risk or balance). Terminal.
	ErrInvalidRiskInput = errors.New("invalid risk input")

	// ErrUnknownPosition is returned when a close/modify targets a ticket the
	// terminal does not know. Terminal.
	ErrUnknownPosition = errors.New("unknown position")

	ErrSymbolNotFound = errors.New("symbol not found")
)
