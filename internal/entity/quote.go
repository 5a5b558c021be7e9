package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Volume    decimal.Decimal `json:"volume"`
	Time      time.Time       `json:"time"`
	Spread    decimal.Decimal `json:"spread"`
}

// PricesEqual reports whether bid, ask and last all match. Volume, time and
// spread do not participate in change detection.
func (q Quote) PricesEqual(other Quote) bool {
	return q.Bid.Equal(other.Bid) && q.Ask.Equal(other.Ask) && q.Last.Equal(other.Last)
}

// WithSpread returns the quote with spread recomputed as ask minus bid.
func (q Quote) WithSpread() Quote {
	q.Spread = q.Ask.Sub(q.Bid)
	return q
}

type Rate struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
	TimeframeW1  Timeframe = "W1"
	TimeframeMN1 Timeframe = "MN1"
)

func ParseTimeframe(raw string) (Timeframe, bool) {
	switch Timeframe(raw) {
	case TimeframeM1, TimeframeM5, TimeframeM15, TimeframeM30,
		TimeframeH1, TimeframeH4, TimeframeD1, TimeframeW1, TimeframeMN1:
		return Timeframe(raw), true
	}
	return "", false
}
