package entity

import "github.com/shopspring/decimal"

// AccountSnapshot is read from the terminal at the moment it is needed and
// never cached: balance changes between orders.
type AccountSnapshot struct {
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

type Credentials struct {
	TerminalPath string `json:"terminal_path,omitempty"`
}
