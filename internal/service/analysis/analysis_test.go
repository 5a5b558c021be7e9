package analysis_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/service/analysis"
)

type stubGateway struct {
	quote    *entity.Quote
	quoteErr error
	rates    []entity.Rate
	ratesErr error
}

func (g *stubGateway) Connect(ctx context.Context, creds entity.Credentials) (*entity.AccountSnapshot, error) {
	return nil, nil
}
func (g *stubGateway) Disconnect(ctx context.Context) error { return nil }
func (g *stubGateway) Connected() bool                      { return true }

func (g *stubGateway) GetQuote(ctx context.Context, symbol string) (*entity.Quote, error) {
	if g.quoteErr != nil {
		return nil, g.quoteErr
	}
	return g.quote, nil
}

func (g *stubGateway) GetAccount(ctx context.Context) (*entity.AccountSnapshot, error) {
	return nil, nil
}
func (g *stubGateway) GetInstrument(ctx context.Context, symbol string) (*entity.Instrument, error) {
	return nil, entity.ErrSymbolNotFound
}
func (g *stubGateway) ListSymbols(ctx context.Context) ([]entity.Instrument, error) { return nil, nil }

func (g *stubGateway) GetRates(ctx context.Context, symbol string, timeframe entity.Timeframe, count int) ([]entity.Rate, error) {
	if g.ratesErr != nil {
		return nil, g.ratesErr
	}
	return g.rates, nil
}

func (g *stubGateway) ListPositions(ctx context.Context) ([]entity.Position, error) { return nil, nil }
func (g *stubGateway) ListOrders(ctx context.Context) ([]entity.PendingOrder, error)  { return nil, nil }
func (g *stubGateway) PlaceOrder(ctx context.Context, req entity.PlaceOrderRequest) (*entity.OrderOutcome, error) {
	return nil, nil
}
func (g *stubGateway) ModifyOrder(ctx context.Context, ticket int64, sl, tp *decimal.Decimal) (*entity.OrderOutcome, error) {
	return nil, nil
}
func (g *stubGateway) CloseOrder(ctx context.Context, ticket int64) (*entity.OrderOutcome, error) {
	return nil, nil
}

func ratesFromCloses(closes ...float64) []entity.Rate {
	rates := make([]entity.Rate, 0, len(closes))
	for _, c := range closes {
		price := decimal.NewFromFloat(c)
		rates = append(rates, entity.Rate{
			Open:  price,
			High:  price.Add(decimal.NewFromFloat(0.1)),
			Low:   price.Sub(decimal.NewFromFloat(0.1)),
			Close: price,
		})
	}
	return rates
}

func TestComputeTrend(t *testing.T) {
	rising := make([]float64, 24)
	falling := make([]float64, 24)
	flat := make([]float64, 24)
	for i := range rising {
		rising[i] = float64(i + 1)
		falling[i] = float64(24 - i)
		flat[i] = 1.1
	}

	assert.Equal(t, analysis.TrendBullish, analysis.ComputeTrend(ratesFromCloses(rising...)))
	assert.Equal(t, analysis.TrendBearish, analysis.ComputeTrend(ratesFromCloses(falling...)))
	assert.Equal(t, analysis.TrendNeutral, analysis.ComputeTrend(ratesFromCloses(flat...)))
	assert.Equal(t, analysis.TrendUnknown, analysis.ComputeTrend(nil))
}

func TestComputeTrendShortHistory(t *testing.T) {
	// With fewer bars than both windows the SMAs collapse to the same mean.
	assert.Equal(t, analysis.TrendNeutral, analysis.ComputeTrend(ratesFromCloses(1.1, 1.2, 1.3)))
}

func TestAnalyzeRangeStats(t *testing.T) {
	gateway := &stubGateway{
		quote: &entity.Quote{
			Symbol: "EURUSD",
			Bid:    decimal.NewFromFloat(1.0999),
			Ask:    decimal.NewFromFloat(1.1001),
			Spread: decimal.NewFromFloat(0.0002),
		},
		rates: []entity.Rate{
			{High: decimal.NewFromFloat(1.1050), Low: decimal.NewFromFloat(1.0950), Close: decimal.NewFromFloat(1.1000)},
			{High: decimal.NewFromFloat(1.1120), Low: decimal.NewFromFloat(1.1000), Close: decimal.NewFromFloat(1.1100)},
			{High: decimal.NewFromFloat(1.1110), Low: decimal.NewFromFloat(1.0900), Close: decimal.NewFromFloat(1.1050)},
		},
	}

	result, err := analysis.NewAnalyzer(gateway).Analyze(context.Background(), "EURUSD")
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", result.Symbol)
	assert.True(t, result.CurrentPrice.Bid.Equal(decimal.NewFromFloat(1.0999)))
	assert.True(t, result.CurrentPrice.Spread.Equal(decimal.NewFromFloat(0.0002)))

	assert.True(t, result.Stats.High.Equal(decimal.NewFromFloat(1.1120)), "high = %s", result.Stats.High)
	assert.True(t, result.Stats.Low.Equal(decimal.NewFromFloat(1.0900)), "low = %s", result.Stats.Low)
	assert.True(t, result.Stats.Average.Equal(decimal.NewFromFloat(1.1050)), "average = %s", result.Stats.Average)
	assert.True(t, result.Stats.Volatility.IsPositive())
	assert.Equal(t, analysis.TrendNeutral, result.Trend)
}

func TestAnalyzeSingleBarHasZeroVolatility(t *testing.T) {
	gateway := &stubGateway{
		quote: &entity.Quote{Symbol: "EURUSD"},
		rates: ratesFromCloses(1.1),
	}

	result, err := analysis.NewAnalyzer(gateway).Analyze(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.True(t, result.Stats.Volatility.IsZero())
}

func TestAnalyzeNoHistory(t *testing.T) {
	gateway := &stubGateway{quote: &entity.Quote{Symbol: "XXXYYY"}}

	_, err := analysis.NewAnalyzer(gateway).Analyze(context.Background(), "XXXYYY")
	assert.ErrorIs(t, err, entity.ErrSymbolNotFound)
}

func TestAnalyzeQuoteFailure(t *testing.T) {
	gateway := &stubGateway{quoteErr: entity.ErrUpstreamUnavailable}

	_, err := analysis.NewAnalyzer(gateway).Analyze(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, entity.ErrUpstreamUnavailable)
}
