package entity

import (
	"context"

	"github.com/shopspring/decimal"
)

// SessionGateway is the single connection to the trading terminal. It is a
// shared resource: the core funnels every call through a bounded-concurrency
// gate and never assumes the driver tolerates unbounded concurrent calls.
//
// Every method fails with ErrUpstreamUnavailable while the session is down or
// mid-reconnect.
type SessionGateway interface {
	Connect(ctx context.Context, creds Credentials) (*AccountSnapshot, error)
	Disconnect(ctx context.Context) error
	Connected() bool

	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetAccount(ctx context.Context) (*AccountSnapshot, error)
	GetInstrument(ctx context.Context, symbol string) (*Instrument, error)
	ListSymbols(ctx context.Context) ([]Instrument, error)
	GetRates(ctx context.Context, symbol string, timeframe Timeframe, count int) ([]Rate, error)
	ListPositions(ctx context.Context) ([]Position, error)
	ListOrders(ctx context.Context) ([]PendingOrder, error)

	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderOutcome, error)
	ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit *decimal.Decimal) (*OrderOutcome, error)
	CloseOrder(ctx context.Context, ticket int64) (*OrderOutcome, error)
}
