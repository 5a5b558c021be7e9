// Package analysis derives simple market condition summaries from recent
// rate history: daily range statistics and an SMA crossover trend signal.
package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/avelios/terminal-gateway/internal/entity"
)

const (
	analysisTimeframe = entity.TimeframeH1
	analysisBarCount  = 24

	smaShortWindow = 10
	smaLongWindow  = 20
)

const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
	TrendUnknown = "unknown"
)

// trendBand is the +/-1% dead zone around the long SMA that reads as neutral.
var trendBand = decimal.NewFromFloat(0.01)

type CurrentPrice struct {
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Spread decimal.Decimal `json:"spread"`
}

type RangeStats struct {
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Average    decimal.Decimal `json:"average"`
	Volatility decimal.Decimal `json:"volatility"`
}

type MarketAnalysis struct {
	Symbol       string       `json:"symbol"`
	CurrentPrice CurrentPrice `json:"current_price"`
	Stats        RangeStats   `json:"24h_stats"`
	Trend        string       `json:"trend"`
}

type Analyzer struct {
	gateway entity.SessionGateway
}

func NewAnalyzer(gateway entity.SessionGateway) *Analyzer {
	return &Analyzer{gateway: gateway}
}

// Analyze summarizes the last 24 hourly bars of the symbol together with the
// current quote.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*MarketAnalysis, error) {
	quote, err := a.gateway.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	rates, err := a.gateway.GetRates(ctx, symbol, analysisTimeframe, analysisBarCount)
	if err != nil {
		return nil, err
	}

	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: no rate history for %s", entity.ErrSymbolNotFound, symbol)
	}

	return &MarketAnalysis{
		Symbol: symbol,
		CurrentPrice: CurrentPrice{
			Bid:    quote.Bid,
			Ask:    quote.Ask,
			Spread: quote.Spread,
		},
		Stats: computeRangeStats(rates),
		Trend: ComputeTrend(rates),
	}, nil
}

func computeRangeStats(rates []entity.Rate) RangeStats {
	high := rates[0].High
	low := rates[0].Low
	sum := decimal.Zero

	for _, rate := range rates {
		if rate.High.GreaterThan(high) {
			high = rate.High
		}
		if rate.Low.LessThan(low) {
			low = rate.Low
		}
		sum = sum.Add(rate.Close)
	}

	average := sum.Div(decimal.NewFromInt(int64(len(rates))))

	return RangeStats{
		High:       high,
		Low:        low,
		Average:    average,
		Volatility: closeStdDev(rates, average),
	}
}

// closeStdDev is the sample standard deviation of close prices. A single bar
// has no spread to measure, so it reports zero.
func closeStdDev(rates []entity.Rate, mean decimal.Decimal) decimal.Decimal {
	if len(rates) < 2 {
		return decimal.Zero
	}

	sumSquares := 0.0
	for _, rate := range rates {
		diff := rate.Close.Sub(mean).InexactFloat64()
		sumSquares += diff * diff
	}

	return decimal.NewFromFloat(math.Sqrt(sumSquares / float64(len(rates)-1)))
}

// ComputeTrend compares the 10-bar and 20-bar SMAs of close prices over the
// most recent bars. The short SMA must clear the long SMA by more than 1% in
// either direction to leave neutral.
func ComputeTrend(rates []entity.Rate) string {
	if len(rates) == 0 {
		return TrendUnknown
	}

	smaShort := tailMean(rates, smaShortWindow)
	smaLong := tailMean(rates, smaLongWindow)

	upper := smaLong.Mul(decimal.NewFromInt(1).Add(trendBand))
	lower := smaLong.Mul(decimal.NewFromInt(1).Sub(trendBand))

	switch {
	case smaShort.GreaterThan(upper):
		return TrendBullish
	case smaShort.LessThan(lower):
		return TrendBearish
	default:
		return TrendNeutral
	}
}

func tailMean(rates []entity.Rate, window int) decimal.Decimal {
	if window > len(rates) {
		window = len(rates)
	}

	sum := decimal.Zero
	for _, rate := range rates[len(rates)-window:] {
		sum = sum.Add(rate.Close)
	}

	return sum.Div(decimal.NewFromInt(int64(window)))
}
