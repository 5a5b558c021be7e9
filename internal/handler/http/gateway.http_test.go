package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelios/terminal-gateway/internal/entity"
	gatewayhttp "github.com/avelios/terminal-gateway/internal/handler/http"
	"github.com/avelios/terminal-gateway/internal/service/execution"
)

type stubGateway struct {
	connected bool
	quote     *entity.Quote
	account   *entity.AccountSnapshot
	outcome   *entity.OrderOutcome
	orders    []entity.PendingOrder
}

func (g *stubGateway) Connect(ctx context.Context, creds entity.Credentials) (*entity.AccountSnapshot, error) {
	g.connected = true
	return g.account, nil
}

func (g *stubGateway) Disconnect(ctx context.Context) error {
	g.connected = false
	return nil
}

func (g *stubGateway) Connected() bool { return g.connected }

func (g *stubGateway) GetQuote(ctx context.Context, symbol string) (*entity.Quote, error) {
	if g.quote == nil || g.quote.Symbol != symbol {
		return nil, entity.ErrSymbolNotFound
	}
	return g.quote, nil
}

func (g *stubGateway) GetAccount(ctx context.Context) (*entity.AccountSnapshot, error) {
	if g.account == nil {
		return nil, entity.ErrUpstreamUnavailable
	}
	return g.account, nil
}

func (g *stubGateway) GetInstrument(ctx context.Context, symbol string) (*entity.Instrument, error) {
	return nil, entity.ErrSymbolNotFound
}
func (g *stubGateway) ListSymbols(ctx context.Context) ([]entity.Instrument, error) { return nil, nil }
func (g *stubGateway) GetRates(ctx context.Context, symbol string, timeframe entity.Timeframe, count int) ([]entity.Rate, error) {
	return nil, nil
}
func (g *stubGateway) ListPositions(ctx context.Context) ([]entity.Position, error) { return nil, nil }
func (g *stubGateway) ListOrders(ctx context.Context) ([]entity.PendingOrder, error) {
	return g.orders, nil
}

func (g *stubGateway) PlaceOrder(ctx context.Context, req entity.PlaceOrderRequest) (*entity.OrderOutcome, error) {
	return g.outcome, nil
}
func (g *stubGateway) ModifyOrder(ctx context.Context, ticket int64, sl, tp *decimal.Decimal) (*entity.OrderOutcome, error) {
	return &entity.OrderOutcome{Accepted: true, Ticket: ticket}, nil
}
func (g *stubGateway) CloseOrder(ctx context.Context, ticket int64) (*entity.OrderOutcome, error) {
	return &entity.OrderOutcome{Accepted: true, Ticket: ticket}, nil
}

type stubInstruments struct{}

func (stubInstruments) Resolve(ctx context.Context, symbol string) (*entity.Instrument, error) {
	if symbol != "EURUSD" {
		return nil, entity.ErrSymbolNotFound
	}
	return &entity.Instrument{
		Symbol:     "EURUSD",
		TickSize:   decimal.NewFromFloat(0.0001),
		TickValue:  decimal.NewFromInt(1),
		VolumeMin:  decimal.NewFromFloat(0.01),
		VolumeMax:  decimal.NewFromInt(100),
		VolumeStep: decimal.NewFromFloat(0.01),
	}, nil
}

type stubHistory struct {
	requested []string
	records   []entity.OrderRecord
}

func (s *stubHistory) GetByStatus(ctx context.Context, statuses []string) ([]entity.OrderRecord, error) {
	s.requested = statuses
	return s.records, nil
}

type recordingStore struct {
	records []entity.OrderRecord
}

func (s *recordingStore) Create(ctx context.Context, record *entity.OrderRecord) error {
	s.records = append(s.records, *record)
	return nil
}

func newTestMux(gateway *stubGateway) *http.ServeMux {
	return newTestMuxWithHistory(gateway, nil)
}

func newTestMuxWithRecorder(gateway *stubGateway, recorder execution.OrderRecorder) *http.ServeMux {
	coordinator := execution.NewCoordinator(gateway, stubInstruments{}, execution.WithRecorder(recorder))
	handler := gatewayhttp.NewGatewayHTTPHandler(gateway, coordinator, stubInstruments{}, nil)

	mux := http.NewServeMux()
	handler.Register(mux)

	return mux
}

func newTestMuxWithHistory(gateway *stubGateway, history gatewayhttp.OrderHistorySource) *http.ServeMux {
	coordinator := execution.NewCoordinator(gateway, stubInstruments{})
	handler := gatewayhttp.NewGatewayHTTPHandler(gateway, coordinator, stubInstruments{}, history)

	mux := http.NewServeMux()
	handler.Register(mux)

	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func TestStatusEndpoint(t *testing.T) {
	gateway := &stubGateway{connected: true}
	rec := doRequest(t, newTestMux(gateway), http.MethodGet, "/gateway/v1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["connected"])
}

func TestTickEndpoint(t *testing.T) {
	gateway := &stubGateway{
		quote: &entity.Quote{
			Symbol: "EURUSD",
			Bid:    decimal.NewFromFloat(1.0999),
			Ask:    decimal.NewFromFloat(1.1001),
		},
	}
	mux := newTestMux(gateway)

	rec := doRequest(t, mux, http.MethodGet, "/gateway/v1/tick/EURUSD", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var quote entity.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, "EURUSD", quote.Symbol)

	rec = doRequest(t, mux, http.MethodGet, "/gateway/v1/tick/NOSUCH", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRatesEndpointRejectsBadParams(t *testing.T) {
	mux := newTestMux(&stubGateway{})

	rec := doRequest(t, mux, http.MethodGet, "/gateway/v1/rates/EURUSD?timeframe=H99", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/gateway/v1/rates/EURUSD?count=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrdersEndpoint(t *testing.T) {
	gateway := &stubGateway{
		orders: []entity.PendingOrder{
			{Ticket: 555, Symbol: "EURUSD", Type: "BUY_LIMIT", Volume: decimal.NewFromFloat(0.2)},
		},
	}

	rec := doRequest(t, newTestMux(gateway), http.MethodGet, "/gateway/v1/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []entity.PendingOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, int64(555), orders[0].Ticket)
	assert.Equal(t, "BUY_LIMIT", orders[0].Type)
}

func TestOrderHistoryEndpoint(t *testing.T) {
	history := &stubHistory{
		records: []entity.OrderRecord{
			{RequestID: "req-1", Symbol: "EURUSD", Status: entity.OrderStatusAccepted},
		},
	}
	mux := newTestMuxWithHistory(&stubGateway{}, history)

	rec := doRequest(t, mux, http.MethodGet, "/gateway/v1/orders/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{entity.OrderStatusAccepted, entity.OrderStatusRejected}, history.requested)

	var records []entity.OrderRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "req-1", records[0].RequestID)

	rec = doRequest(t, mux, http.MethodGet, "/gateway/v1/orders/history?status=rejected", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{entity.OrderStatusRejected}, history.requested)

	rec = doRequest(t, mux, http.MethodGet, "/gateway/v1/orders/history?status=SHIPPED", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHistoryRouteNeedsAStore(t *testing.T) {
	rec := doRequest(t, newTestMux(&stubGateway{}), http.MethodGet, "/gateway/v1/orders/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceOrderEndpoint(t *testing.T) {
	gateway := &stubGateway{
		outcome: &entity.OrderOutcome{Accepted: true, Ticket: 12345, EffectiveVolume: decimal.NewFromFloat(0.1)},
	}
	mux := newTestMux(gateway)

	rec := doRequest(t, mux, http.MethodPost, "/gateway/v1/orders",
		`{"symbol":"EURUSD","side":"buy","volume":"0.1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var outcome entity.OrderOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.True(t, outcome.Accepted)
	assert.Equal(t, int64(12345), outcome.Ticket)
}

func TestPlaceOrderKeepsCallerRequestID(t *testing.T) {
	recorder := &recordingStore{}
	gateway := &stubGateway{
		outcome: &entity.OrderOutcome{Accepted: true, Ticket: 12345},
	}
	mux := newTestMuxWithRecorder(gateway, recorder)

	rec := doRequest(t, mux, http.MethodPost, "/gateway/v1/orders",
		`{"symbol":"EURUSD","side":"buy","volume":"0.1","request_id":"client-ref-7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "client-ref-7", recorder.records[0].RequestID)

	rec = doRequest(t, mux, http.MethodPost, "/gateway/v1/orders",
		`{"symbol":"EURUSD","side":"buy","volume":"0.1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, recorder.records, 2)
	assert.NotEmpty(t, recorder.records[1].RequestID, "an omitted request id gets assigned")
}

func TestPlaceOrderEndpointValidation(t *testing.T) {
	mux := newTestMux(&stubGateway{})

	tests := []struct {
		name string
		body string
	}{
		{"missing symbol", `{"side":"BUY","volume":"0.1"}`},
		{"bad side", `{"symbol":"EURUSD","side":"LONG","volume":"0.1"}`},
		{"bad volume", `{"symbol":"EURUSD","side":"BUY","volume":"lots"}`},
		{"malformed body", `{"symbol":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, mux, http.MethodPost, "/gateway/v1/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestClosePositionEndpoint(t *testing.T) {
	mux := newTestMux(&stubGateway{})

	rec := doRequest(t, mux, http.MethodDelete, "/gateway/v1/positions/12345", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, mux, http.MethodDelete, "/gateway/v1/positions/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositionSizeEndpoint(t *testing.T) {
	mux := newTestMux(&stubGateway{})

	rec := doRequest(t, mux, http.MethodPost, "/gateway/v1/calculate/position-size",
		`{"symbol":"EURUSD","balance":"10000","risk_percent":"1","entry_price":"1.1000","stop_loss_price":"1.0950"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body gatewayhttp.PositionSizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2", body.Volume)
	assert.Equal(t, "100", body.RiskAmount)
	assert.False(t, body.ClampedToMin)
}

func TestPositionSizeEndpointFallsBackToAccountBalance(t *testing.T) {
	gateway := &stubGateway{account: &entity.AccountSnapshot{Balance: decimal.NewFromInt(10000)}}
	mux := newTestMux(gateway)

	rec := doRequest(t, mux, http.MethodPost, "/gateway/v1/calculate/position-size",
		`{"symbol":"EURUSD","risk_percent":"1","entry_price":"1.1000","stop_distance":"0.0050"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body gatewayhttp.PositionSizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2", body.Volume)
}
