package entity

import "github.com/shopspring/decimal"

// Instrument carries the broker-defined contract metadata for one symbol.
type Instrument struct {
	Symbol       string          `json:"symbol"`
	Description  string          `json:"description,omitempty"`
	Digits       int32           `json:"digits"`
	Point        decimal.Decimal `json:"point"`
	TickSize     decimal.Decimal `json:"tick_size"`
	TickValue    decimal.Decimal `json:"tick_value"`
	ContractSize decimal.Decimal `json:"contract_size"`
	VolumeMin    decimal.Decimal `json:"volume_min"`
	VolumeMax    decimal.Decimal `json:"volume_max"`
	VolumeStep   decimal.Decimal `json:"volume_step"`
}
