package infrastructure

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/avelios/terminal-gateway/internal/entity"
)

const defaultGateSlots = 1

// SessionGate funnels every terminal call through a counting semaphore. The
// upstream session is one shared connection; the driver is not assumed safe
// for unbounded concurrent calls.
type SessionGate struct {
	inner entity.SessionGateway
	slots chan struct{}
}

var _ entity.SessionGateway = (*SessionGate)(nil)

func NewSessionGate(inner entity.SessionGateway, maxConcurrent int) *SessionGate {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultGateSlots
	}

	return &SessionGate{
		inner: inner,
		slots: make(chan struct{}, maxConcurrent),
	}
}

func (g *SessionGate) acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *SessionGate) release() {
	<-g.slots
}

func (g *SessionGate) Connect(ctx context.Context, creds entity.Credentials) (*entity.AccountSnapshot, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.Connect(ctx, creds)
}

func (g *SessionGate) Disconnect(ctx context.Context) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()

	return g.inner.Disconnect(ctx)
}

func (g *SessionGate) Connected() bool {
	return g.inner.Connected()
}

func (g *SessionGate) GetQuote(ctx context.Context, symbol string) (*entity.Quote, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.GetQuote(ctx, symbol)
}

func (g *SessionGate) GetAccount(ctx context.Context) (*entity.AccountSnapshot, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.GetAccount(ctx)
}

func (g *SessionGate) GetInstrument(ctx context.Context, symbol string) (*entity.Instrument, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.GetInstrument(ctx, symbol)
}

func (g *SessionGate) ListSymbols(ctx context.Context) ([]entity.Instrument, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.ListSymbols(ctx)
}

func (g *SessionGate) GetRates(ctx context.Context, symbol string, timeframe entity.Timeframe, count int) ([]entity.Rate, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.GetRates(ctx, symbol, timeframe, count)
}

func (g *SessionGate) ListPositions(ctx context.Context) ([]entity.Position, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.ListPositions(ctx)
}

func (g *SessionGate) ListOrders(ctx context.Context) ([]entity.PendingOrder, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.ListOrders(ctx)
}

func (g *SessionGate) PlaceOrder(ctx context.Context, req entity.PlaceOrderRequest) (*entity.OrderOutcome, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.PlaceOrder(ctx, req)
}

func (g *SessionGate) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit *decimal.Decimal) (*entity.OrderOutcome, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.ModifyOrder(ctx, ticket, stopLoss, takeProfit)
}

func (g *SessionGate) CloseOrder(ctx context.Context, ticket int64) (*entity.OrderOutcome, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	return g.inner.CloseOrder(ctx, ticket)
}
