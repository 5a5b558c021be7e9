package terminal

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/avelios/terminal-gateway/internal/entity"
)

type bridgeRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type bridgeResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *bridgeError    `json:"error,omitempty"`
}

// Bridge error codes.
const (
	codeUpstreamDown = -1
	codeNotFound     = -2
	codeBadRequest   = -3
)

type bridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *bridgeError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

func (e *bridgeError) toDomain(method string) error {
	switch e.Code {
	case codeUpstreamDown:
		return fmt.Errorf("%w: %s", entity.ErrUpstreamUnavailable, e.Message)
	case codeNotFound:
		switch method {
		case methodPositionClose, methodPositionModify:
			return fmt.Errorf("%w: %s", entity.ErrUnknownPosition, e.Message)
		default:
			return fmt.Errorf("%w: %s", entity.ErrSymbolNotFound, e.Message)
		}
	default:
		return fmt.Errorf("terminal call %s failed: %s", method, e.Message)
	}
}

// Bridge methods, mirroring the terminal API surface.
const (
	methodConnect        = "connect"
	methodDisconnect     = "disconnect"
	methodAccountInfo    = "account_info"
	methodSymbolTick     = "symbol_info_tick"
	methodSymbolInfo     = "symbol_info"
	methodSymbols        = "symbols_get"
	methodCopyRates      = "copy_rates"
	methodPositions      = "positions_get"
	methodOrders         = "orders_get"
	methodOrderSend      = "order_send"
	methodPositionClose  = "position_close"
	methodPositionModify = "position_modify"
)

// retcodeDone is the terminal's "request completed" trade return code.
const retcodeDone = 10009

type tickPayload struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
	Volume decimal.Decimal `json:"volume"`
	Time   int64           `json:"time"`
}

func (p tickPayload) toQuote() entity.Quote {
	return entity.Quote{
		Symbol: p.Symbol,
		Bid:    p.Bid,
		Ask:    p.Ask,
		Last:   p.Last,
		Volume: p.Volume,
		Time:   time.Unix(p.Time, 0).UTC(),
	}.WithSpread()
}

type accountPayload struct {
	Login      int64           `json:"login"`
	Server     string          `json:"server"`
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	Margin     decimal.Decimal `json:"margin"`
	MarginFree decimal.Decimal `json:"margin_free"`
	Profit     decimal.Decimal `json:"profit"`
	Currency   string          `json:"currency"`
	Leverage   int64           `json:"leverage"`
}

func (p accountPayload) toSnapshot() entity.AccountSnapshot {
	return entity.AccountSnapshot(p)
}

type instrumentPayload struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Digits       int32           `json:"digits"`
	Point        decimal.Decimal `json:"point"`
	TickSize     decimal.Decimal `json:"tick_size"`
	TickValue    decimal.Decimal `json:"tick_value"`
	ContractSize decimal.Decimal `json:"contract_size"`
	VolumeMin    decimal.Decimal `json:"volume_min"`
	VolumeMax    decimal.Decimal `json:"volume_max"`
	VolumeStep   decimal.Decimal `json:"volume_step"`
}

func (p instrumentPayload) toInstrument() entity.Instrument {
	return entity.Instrument{
		Symbol:       p.Name,
		Description:  p.Description,
		Digits:       p.Digits,
		Point:        p.Point,
		TickSize:     p.TickSize,
		TickValue:    p.TickValue,
		ContractSize: p.ContractSize,
		VolumeMin:    p.VolumeMin,
		VolumeMax:    p.VolumeMax,
		VolumeStep:   p.VolumeStep,
	}
}

type ratePayload struct {
	Time   int64           `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"tick_volume"`
}

func (p ratePayload) toRate() entity.Rate {
	return entity.Rate{
		Time:   time.Unix(p.Time, 0).UTC(),
		Open:   p.Open,
		High:   p.High,
		Low:    p.Low,
		Close:  p.Close,
		Volume: p.Volume,
	}
}

type positionPayload struct {
	Ticket       int64           `json:"ticket"`
	Symbol       string          `json:"symbol"`
	Type         string          `json:"type"`
	Volume       decimal.Decimal `json:"volume"`
	PriceOpen    decimal.Decimal `json:"price_open"`
	PriceCurrent decimal.Decimal `json:"price_current"`
	StopLoss     decimal.Decimal `json:"sl"`
	TakeProfit   decimal.Decimal `json:"tp"`
	Swap         decimal.Decimal `json:"swap"`
	Profit       decimal.Decimal `json:"profit"`
	Comment      string          `json:"comment"`
	Magic        int64           `json:"magic"`
	Time         int64           `json:"time"`
}

func (p positionPayload) toPosition() entity.Position {
	side := entity.OrderSideBuy
	if p.Type == string(entity.OrderSideSell) {
		side = entity.OrderSideSell
	}

	return entity.Position{
		Ticket:       p.Ticket,
		Symbol:       p.Symbol,
		Side:         side,
		Volume:       p.Volume,
		PriceOpen:    p.PriceOpen,
		PriceCurrent: p.PriceCurrent,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		Swap:         p.Swap,
		Profit:       p.Profit,
		Comment:      p.Comment,
		Magic:        p.Magic,
		OpenedAt:     time.Unix(p.Time, 0).UTC(),
	}
}

type pendingOrderPayload struct {
	Ticket     int64           `json:"ticket"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type"`
	Volume     decimal.Decimal `json:"volume_current"`
	PriceOpen  decimal.Decimal `json:"price_open"`
	StopLoss   decimal.Decimal `json:"sl"`
	TakeProfit decimal.Decimal `json:"tp"`
	Comment    string          `json:"comment"`
	Magic      int64           `json:"magic"`
	Time       int64           `json:"time_setup"`
}

func (p pendingOrderPayload) toOrder() entity.PendingOrder {
	return entity.PendingOrder{
		Ticket:     p.Ticket,
		Symbol:     p.Symbol,
		Type:       p.Type,
		Volume:     p.Volume,
		PriceOpen:  p.PriceOpen,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Comment:    p.Comment,
		Magic:      p.Magic,
		PlacedAt:   time.Unix(p.Time, 0).UTC(),
	}
}

type orderSendParams struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Volume     decimal.Decimal  `json:"volume"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	StopLoss   *decimal.Decimal `json:"sl,omitempty"`
	TakeProfit *decimal.Decimal `json:"tp,omitempty"`
	Deviation  int              `json:"deviation,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	Magic      int64            `json:"magic,omitempty"`
}

type orderResultPayload struct {
	Retcode int32           `json:"retcode"`
	Order   int64           `json:"order"`
	Deal    int64           `json:"deal"`
	Volume  decimal.Decimal `json:"volume"`
	Price   decimal.Decimal `json:"price"`
	Comment string          `json:"comment"`
}

// toOutcome reconciles the terminal's trade result into a single outcome:
// done means accepted; anything else (requote, invalid stops, market closed,
// insufficient margin) is a rejection carrying the terminal's comment.
func (p orderResultPayload) toOutcome() entity.OrderOutcome {
	if p.Retcode == retcodeDone {
		return entity.OrderOutcome{
			Accepted:        true,
			Ticket:          p.Order,
			Deal:            p.Deal,
			EffectiveVolume: p.Volume,
			Price:           p.Price,
		}
	}

	reason := p.Comment
	if reason == "" {
		reason = fmt.Sprintf("trade retcode %d", p.Retcode)
	}

	return entity.OrderOutcome{
		Accepted: false,
		Reason:   reason,
		RetCode:  p.Retcode,
	}
}
