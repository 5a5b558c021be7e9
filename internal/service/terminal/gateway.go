package terminal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/entity"
)

var _ entity.SessionGateway = (*BridgeDriver)(nil)

func (d *BridgeDriver) Connect(ctx context.Context, creds entity.Credentials) (*entity.AccountSnapshot, error) {
	var payload accountPayload
	if err := d.call(ctx, methodConnect, creds, &payload); err != nil {
		return nil, err
	}

	account := payload.toSnapshot()
	logrus.WithFields(logrus.Fields{
		"login":  account.Login,
		"server": account.Server,
	}).Info("terminal session established")

	return &account, nil
}

func (d *BridgeDriver) Disconnect(ctx context.Context) error {
	return d.call(ctx, methodDisconnect, nil, nil)
}

func (d *BridgeDriver) Connected() bool {
	return d.connected.Load()
}

func (d *BridgeDriver) GetQuote(ctx context.Context, symbol string) (*entity.Quote, error) {
	var payload tickPayload
	err := d.call(ctx, methodSymbolTick, map[string]string{"symbol": symbol}, &payload)
	if err != nil {
		return nil, err
	}

	if payload.Symbol == "" {
		payload.Symbol = symbol
	}

	quote := payload.toQuote()

	return &quote, nil
}

func (d *BridgeDriver) GetAccount(ctx context.Context) (*entity.AccountSnapshot, error) {
	var payload accountPayload
	err := d.call(ctx, methodAccountInfo, nil, &payload)
	if err != nil {
		return nil, err
	}

	account := payload.toSnapshot()

	return &account, nil
}

func (d *BridgeDriver) GetInstrument(ctx context.Context, symbol string) (*entity.Instrument, error) {
	var payload instrumentPayload
	err := d.call(ctx, methodSymbolInfo, map[string]string{"symbol": symbol}, &payload)
	if err != nil {
		return nil, err
	}

	instrument := payload.toInstrument()

	return &instrument, nil
}

func (d *BridgeDriver) ListSymbols(ctx context.Context) ([]entity.Instrument, error) {
	var payloads []instrumentPayload
	err := d.call(ctx, methodSymbols, nil, &payloads)
	if err != nil {
		return nil, err
	}

	instruments := make([]entity.Instrument, 0, len(payloads))
	for _, p := range payloads {
		instruments = append(instruments, p.toInstrument())
	}

	return instruments, nil
}

func (d *BridgeDriver) GetRates(ctx context.Context, symbol string, timeframe entity.Timeframe, count int) ([]entity.Rate, error) {
	params := map[string]any{
		"symbol":    symbol,
		"timeframe": timeframe,
		"count":     count,
	}

	var payloads []ratePayload
	err := d.call(ctx, methodCopyRates, params, &payloads)
	if err != nil {
		return nil, err
	}

	rates := make([]entity.Rate, 0, len(payloads))
	for _, p := range payloads {
		rates = append(rates, p.toRate())
	}

	return rates, nil
}

func (d *BridgeDriver) ListPositions(ctx context.Context) ([]entity.Position, error) {
	var payloads []positionPayload
	err := d.call(ctx, methodPositions, nil, &payloads)
	if err != nil {
		return nil, err
	}

	positions := make([]entity.Position, 0, len(payloads))
	for _, p := range payloads {
		positions = append(positions, p.toPosition())
	}

	return positions, nil
}

func (d *BridgeDriver) ListOrders(ctx context.Context) ([]entity.PendingOrder, error) {
	var payloads []pendingOrderPayload
	err := d.call(ctx, methodOrders, nil, &payloads)
	if err != nil {
		return nil, err
	}

	orders := make([]entity.PendingOrder, 0, len(payloads))
	for _, p := range payloads {
		orders = append(orders, p.toOrder())
	}

	return orders, nil
}

func (d *BridgeDriver) PlaceOrder(ctx context.Context, req entity.PlaceOrderRequest) (*entity.OrderOutcome, error) {
	params := orderSendParams{
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Deviation:  req.Deviation,
		Comment:    req.Comment,
		Magic:      req.Magic,
	}

	var payload orderResultPayload
	err := d.call(ctx, methodOrderSend, params, &payload)
	if err != nil {
		return nil, err
	}

	outcome := payload.toOutcome()

	return &outcome, nil
}

func (d *BridgeDriver) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit *decimal.Decimal) (*entity.OrderOutcome, error) {
	params := map[string]any{"ticket": ticket}
	if stopLoss != nil {
		params["sl"] = stopLoss
	}
	if takeProfit != nil {
		params["tp"] = takeProfit
	}

	var payload orderResultPayload
	if err := d.call(ctx, methodPositionModify, params, &payload); err != nil {
		return nil, fmt.Errorf("modify position %d: %w", ticket, err)
	}

	outcome := payload.toOutcome()
	outcome.Ticket = ticket

	return &outcome, nil
}

func (d *BridgeDriver) CloseOrder(ctx context.Context, ticket int64) (*entity.OrderOutcome, error) {
	var payload orderResultPayload
	if err := d.call(ctx, methodPositionClose, map[string]int64{"ticket": ticket}, &payload); err != nil {
		return nil, fmt.Errorf("close position %d: %w", ticket, err)
	}

	outcome := payload.toOutcome()
	outcome.Ticket = ticket

	return &outcome, nil
}
