package tools_test

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/handler/tools"
	"github.com/avelios/terminal-gateway/internal/service/analysis"
	"github.com/avelios/terminal-gateway/internal/service/execution"
)

type stubGateway struct {
	quote  *entity.Quote
	orders []entity.PendingOrder
}

func (g *stubGateway) Connect(ctx context.Context, creds entity.Credentials) (*entity.AccountSnapshot, error) {
	return &entity.AccountSnapshot{Login: 123456, Currency: "USD"}, nil
}
func (g *stubGateway) Disconnect(ctx context.Context) error { return nil }
func (g *stubGateway) Connected() bool                      { return true }

func (g *stubGateway) GetQuote(ctx context.Context, symbol string) (*entity.Quote, error) {
	if g.quote == nil || g.quote.Symbol != symbol {
		return nil, entity.ErrSymbolNotFound
	}
	return g.quote, nil
}

func (g *stubGateway) GetAccount(ctx context.Context) (*entity.AccountSnapshot, error) {
	return &entity.AccountSnapshot{Balance: decimal.NewFromInt(10000)}, nil
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
	return &entity.OrderOutcome{Accepted: true, Ticket: 1}, nil
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

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID json.RawMessage `json:"id"`
}

// runServer feeds the requests through a fresh server and returns the banner
// line plus one parsed response per request.
func runServer(t *testing.T, requests ...string) (string, []rpcResponse) {
	t.Helper()

	gateway := &stubGateway{
		quote: &entity.Quote{
			Symbol: "EURUSD",
			Bid:    decimal.NewFromFloat(1.0999),
			Ask:    decimal.NewFromFloat(1.1001),
		},
		orders: []entity.PendingOrder{
			{Ticket: 555, Symbol: "EURUSD", Type: "SELL_STOP", Volume: decimal.NewFromFloat(0.3)},
		},
	}
	instruments := stubInstruments{}
	coordinator := execution.NewCoordinator(gateway, instruments)

	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer

	server := tools.NewServer(gateway, coordinator, analysis.NewAnalyzer(gateway), instruments, in, &out)
	require.NoError(t, server.Run(context.Background()))

	scanner := bufio.NewScanner(&out)
	require.True(t, scanner.Scan(), "missing capabilities banner")
	banner := scanner.Text()

	var responses []rpcResponse
	for scanner.Scan() {
		var resp rpcResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	require.Len(t, responses, len(requests))

	return banner, responses
}

func TestRunAnnouncesCapabilities(t *testing.T) {
	banner, _ := runServer(t, `{"jsonrpc":"2.0","method":"account_info","id":1}`)

	var caps struct {
		Name    string   `json:"name"`
		Methods []string `json:"methods"`
	}
	require.NoError(t, json.Unmarshal([]byte(banner), &caps))
	assert.Equal(t, "terminal-gateway-tools", caps.Name)
	assert.Contains(t, caps.Methods, "place_order")
	assert.Contains(t, caps.Methods, "orders")
	assert.Contains(t, caps.Methods, "analyze_market")
}

func TestTickMethod(t *testing.T) {
	_, responses := runServer(t, `{"jsonrpc":"2.0","method":"tick","params":{"symbol":"EURUSD"},"id":1}`)

	resp := responses[0]
	require.Nil(t, resp.Error)

	var quote entity.Quote
	require.NoError(t, json.Unmarshal(resp.Result, &quote))
	assert.Equal(t, "EURUSD", quote.Symbol)
	assert.True(t, quote.Ask.Equal(decimal.NewFromFloat(1.1001)))
}

func TestOrdersMethod(t *testing.T) {
	_, responses := runServer(t, `{"jsonrpc":"2.0","method":"orders","id":4}`)

	resp := responses[0]
	require.Nil(t, resp.Error)

	var orders []entity.PendingOrder
	require.NoError(t, json.Unmarshal(resp.Result, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "SELL_STOP", orders[0].Type)
}

func TestMethodNotFound(t *testing.T) {
	_, responses := runServer(t, `{"jsonrpc":"2.0","method":"teleport","id":7}`)

	resp := responses[0]
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "teleport")
	assert.Equal(t, `7`, string(resp.ID))
}

func TestInvalidOrderMapsToInvalidParams(t *testing.T) {
	_, responses := runServer(t, `{"jsonrpc":"2.0","method":"place_order","params":{"symbol":"EURUSD","side":"BUY"},"id":2}`)

	resp := responses[0]
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestCalculatePositionSize(t *testing.T) {
	_, responses := runServer(t, `{"jsonrpc":"2.0","method":"calculate_position_size","params":{"symbol":"EURUSD","balance":10000,"risk_percentage":1,"stop_loss_pips":50},"id":3}`)

	resp := responses[0]
	require.Nil(t, resp.Error)

	var result struct {
		Status       string          `json:"status"`
		PositionSize decimal.Decimal `json:"position_size"`
		RiskAmount   decimal.Decimal `json:"risk_amount"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "success", result.Status)
	assert.True(t, result.PositionSize.Equal(decimal.NewFromInt(2)), "position_size = %s", result.PositionSize)
	assert.True(t, result.RiskAmount.Equal(decimal.NewFromInt(100)))
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	gateway := &stubGateway{}
	coordinator := execution.NewCoordinator(gateway, stubInstruments{})

	in := strings.NewReader("not json at all\n{\"jsonrpc\":\"2.0\",\"method\":\"account_info\",\"id\":1}\n")
	var out bytes.Buffer

	server := tools.NewServer(gateway, coordinator, analysis.NewAnalyzer(gateway), stubInstruments{}, in, &out)
	require.NoError(t, server.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "banner plus one response, malformed line dropped")

	var resp rpcResponse
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &resp))
	assert.Nil(t, resp.Error)
}
