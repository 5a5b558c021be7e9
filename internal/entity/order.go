package entity

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func ParseOrderSide(raw string) (OrderSide, bool) {
	switch OrderSide(raw) {
	case OrderSideBuy, OrderSideSell:
		return OrderSide(raw), true
	}
	return "", false
}

// OrderIntent is what a consumer asks for. Exactly one of Volume or the
// risk-sizing inputs (RiskPercent plus StopLoss) must be usable to determine
// the final size.
type OrderIntent struct {
	RequestID   string           `json:"request_id"`
	Symbol      string           `json:"symbol"`
	Side        OrderSide        `json:"side"`
	Volume      *decimal.Decimal `json:"volume,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit  *decimal.Decimal `json:"take_profit,omitempty"`
	RiskPercent *decimal.Decimal `json:"risk_percent,omitempty"`
	Comment     string           `json:"comment,omitempty"`
	Magic       int64            `json:"magic,omitempty"`
}

// OrderOutcome is the reconciled result of one submission attempt. Rejections
// are outcomes, not errors: Reason carries the broker-provided cause and the
// gateway never retries on its own.
type OrderOutcome struct {
	Accepted        bool            `json:"accepted"`
	Ticket          int64           `json:"ticket,omitempty"`
	Deal            int64           `json:"deal,omitempty"`
	EffectiveVolume decimal.Decimal `json:"effective_volume"`
	Price           decimal.Decimal `json:"price"`
	Reason          string          `json:"reason,omitempty"`
	RetCode         int32           `json:"retcode,omitempty"`
}

type Position struct {
	Ticket       int64           `json:"ticket"`
	Symbol       string          `json:"symbol"`
	Side         OrderSide       `json:"side"`
	Volume       decimal.Decimal `json:"volume"`
	PriceOpen    decimal.Decimal `json:"price_open"`
	PriceCurrent decimal.Decimal `json:"price_current"`
	StopLoss     decimal.Decimal `json:"sl"`
	TakeProfit   decimal.Decimal `json:"tp"`
	Swap         decimal.Decimal `json:"swap"`
	Profit       decimal.Decimal `json:"profit"`
	Comment      string          `json:"comment,omitempty"`
	Magic        int64           `json:"magic,omitempty"`
	OpenedAt     time.Time       `json:"time"`
}

// PendingOrder is a working order waiting at the terminal (limit/stop),
// distinct from an open Position.
type PendingOrder struct {
	Ticket     int64           `json:"ticket"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type"`
	Volume     decimal.Decimal `json:"volume"`
	PriceOpen  decimal.Decimal `json:"price_open"`
	StopLoss   decimal.Decimal `json:"sl"`
	TakeProfit decimal.Decimal `json:"tp"`
	Comment    string          `json:"comment,omitempty"`
	Magic      int64           `json:"magic,omitempty"`
	PlacedAt   time.Time       `json:"time"`
}

// PlaceOrderRequest is the fully-sized request handed to the terminal.
type PlaceOrderRequest struct {
	Symbol     string
	Side       OrderSide
	Volume     decimal.Decimal
	Price      *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	Deviation  int
	Comment    string
	Magic      int64
}

const (
	OrderStatusAccepted = "ACCEPTED"
	OrderStatusRejected = "REJECTED"
)

// OrderRecord is the persisted audit row for one coordinator outcome.
type OrderRecord struct {
	ID         string           `db:"id" json:"id"`
	RequestID  string           `db:"request_id" json:"request_id"`
	Symbol     string           `db:"symbol" json:"symbol"`
	Side       OrderSide        `db:"side" json:"side"`
	Volume     decimal.Decimal  `db:"volume" json:"volume"`
	Price      *decimal.Decimal `db:"price" json:"price,omitempty"`
	StopLoss   *decimal.Decimal `db:"stop_loss" json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `db:"take_profit" json:"take_profit,omitempty"`
	Ticket     sql.NullInt64    `db:"ticket" json:"ticket,omitempty"`
	Status     string           `db:"status" json:"status"`
	Reason     sql.NullString   `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

func (o OrderRecord) TableName() string {
	return "order_histories"
}

type OrderExecutedEvent struct {
	RetryCount int         `json:"retry"`
	Data       OrderRecord `json:"data"`
}
