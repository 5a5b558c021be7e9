// Package http exposes the request/response surface of the gateway: session
// control, market data reads, order execution and position-size calculation.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/service/execution"
	"github.com/avelios/terminal-gateway/internal/service/risk"
)

const defaultRatesCount = 100

type PlaceOrderRequest struct {
	RequestID   string `json:"request_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Volume      string `json:"volume"`
	Price       string `json:"price"`
	StopLoss    string `json:"stop_loss"`
	TakeProfit  string `json:"take_profit"`
	RiskPercent string `json:"risk_percent"`
	Comment     string `json:"comment"`
	Magic       int64  `json:"magic"`
}

type ModifyPositionRequest struct {
	Ticket     int64  `json:"ticket"`
	StopLoss   string `json:"stop_loss"`
	TakeProfit string `json:"take_profit"`
}

type PositionSizeRequest struct {
	Symbol        string `json:"symbol"`
	Balance       string `json:"balance"`
	RiskPercent   string `json:"risk_percent"`
	EntryPrice    string `json:"entry_price"`
	StopLossPrice string `json:"stop_loss_price"`
	StopDistance  string `json:"stop_distance"`
}

type PositionSizeResponse struct {
	Symbol       string `json:"symbol"`
	Volume       string `json:"volume"`
	RiskAmount   string `json:"risk_amount"`
	LossPerUnit  string `json:"loss_per_unit"`
	ClampedToMin bool   `json:"clamped_to_min"`
	ClampedToMax bool   `json:"clamped_to_max"`
}

// OrderHistorySource reads persisted order outcomes. Optional: without a
// database the history route is not registered.
type OrderHistorySource interface {
	GetByStatus(ctx context.Context, statuses []string) ([]entity.OrderRecord, error)
}

type Handler struct {
	gateway     entity.SessionGateway
	coordinator *execution.Coordinator
	instruments execution.InstrumentSource
	history     OrderHistorySource
}

func NewGatewayHTTPHandler(gateway entity.SessionGateway, coordinator *execution.Coordinator, instruments execution.InstrumentSource, history OrderHistorySource) *Handler {
	return &Handler{
		gateway:     gateway,
		coordinator: coordinator,
		instruments: instruments,
		history:     history,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /gateway/v1/connect", h.Connect)
	mux.HandleFunc("POST /gateway/v1/disconnect", h.Disconnect)
	mux.HandleFunc("GET /gateway/v1/status", h.Status)
	mux.HandleFunc("GET /gateway/v1/account", h.Account)
	mux.HandleFunc("GET /gateway/v1/symbols", h.Symbols)
	mux.HandleFunc("GET /gateway/v1/tick/{symbol}", h.Tick)
	mux.HandleFunc("GET /gateway/v1/rates/{symbol}", h.Rates)
	mux.HandleFunc("GET /gateway/v1/positions", h.Positions)
	mux.HandleFunc("GET /gateway/v1/orders", h.Orders)
	mux.HandleFunc("POST /gateway/v1/orders", h.PlaceOrder)
	mux.HandleFunc("PATCH /gateway/v1/positions", h.ModifyPosition)
	mux.HandleFunc("DELETE /gateway/v1/positions/{ticket}", h.ClosePosition)
	mux.HandleFunc("POST /gateway/v1/calculate/position-size", h.PositionSize)

	if h.history != nil {
		mux.HandleFunc("GET /gateway/v1/orders/history", h.OrderHistory)
	}
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var creds entity.Credentials
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
			return
		}
	}

	account, err := h.gateway.Connect(r.Context(), creds)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"disconnected": true})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"connected": h.gateway.Connected()})
}

func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	account, err := h.gateway.GetAccount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) Symbols(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.gateway.ListSymbols(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, instruments)
}

func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	quote, err := h.gateway.GetQuote(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	timeframe := entity.TimeframeM1
	if raw := r.URL.Query().Get("timeframe"); raw != "" {
		parsed, ok := entity.ParseTimeframe(strings.ToUpper(raw))
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid timeframe: " + raw})
			return
		}
		timeframe = parsed
	}

	count := defaultRatesCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid count: " + raw})
			return
		}
		count = parsed
	}

	rates, err := h.gateway.GetRates(r.Context(), symbol, timeframe, count)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rates)
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.gateway.ListPositions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, positions)
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.gateway.ListOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	statuses := []string{entity.OrderStatusAccepted, entity.OrderStatusRejected}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = statuses[:0]
		for _, status := range strings.Split(raw, ",") {
			status = strings.ToUpper(strings.TrimSpace(status))
			if status != entity.OrderStatusAccepted && status != entity.OrderStatusRejected {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid status: " + status})
				return
			}
			statuses = append(statuses, status)
		}
	}

	records, err := h.history.GetByStatus(r.Context(), statuses)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	intent, err := mapHTTPRequestToOrderIntent(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	outcome, err := h.coordinator.PlaceOrder(r.Context(), intent)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) ModifyPosition(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req ModifyPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	stopLoss, err := parseOptionalDecimal(req.StopLoss, "stop_loss")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	takeProfit, err := parseOptionalDecimal(req.TakeProfit, "take_profit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	outcome, err := h.coordinator.ModifyPosition(r.Context(), req.Ticket, stopLoss, takeProfit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	ticket, err := strconv.ParseInt(r.PathValue("ticket"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid ticket"})
		return
	}

	outcome, err := h.coordinator.ClosePosition(r.Context(), ticket)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) PositionSize(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req PositionSizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if strings.TrimSpace(req.Symbol) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "symbol is required"})
		return
	}

	riskPercent, err := decimal.NewFromString(req.RiskPercent)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid risk_percent"})
		return
	}

	instrument, err := h.instruments.Resolve(r.Context(), req.Symbol)
	if err != nil {
		writeError(w, err)
		return
	}

	balance, err := h.resolveBalance(r, req.Balance)
	if err != nil {
		writeError(w, err)
		return
	}

	entryPrice, stopLossPrice, err := h.resolvePrices(r, &req, instrument)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := risk.ComputeSize(risk.SizingInput{
		Balance:       balance,
		RiskPercent:   riskPercent,
		EntryPrice:    entryPrice,
		StopLossPrice: stopLossPrice,
		Instrument:    *instrument,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PositionSizeResponse{
		Symbol:       req.Symbol,
		Volume:       result.Volume.String(),
		RiskAmount:   result.RiskAmount.String(),
		LossPerUnit:  result.LossPerUnit.String(),
		ClampedToMin: result.ClampedToMin,
		ClampedToMax: result.ClampedToMax,
	})
}

func (h *Handler) resolveBalance(r *http.Request, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) != "" {
		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, errors.New("invalid balance")
		}
		return balance, nil
	}

	account, err := h.gateway.GetAccount(r.Context())
	if err != nil {
		return decimal.Zero, err
	}

	return account.Balance, nil
}

// resolvePrices accepts either an explicit stop price or a stop distance in
// price units below/above the entry. Entry defaults to the current ask.
func (h *Handler) resolvePrices(r *http.Request, req *PositionSizeRequest, instrument *entity.Instrument) (decimal.Decimal, decimal.Decimal, error) {
	var entryPrice decimal.Decimal
	if strings.TrimSpace(req.EntryPrice) != "" {
		parsed, err := decimal.NewFromString(req.EntryPrice)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.New("invalid entry_price")
		}
		entryPrice = parsed
	} else {
		quote, err := h.gateway.GetQuote(r.Context(), instrument.Symbol)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		entryPrice = quote.Ask
	}

	if strings.TrimSpace(req.StopLossPrice) != "" {
		stopLoss, err := decimal.NewFromString(req.StopLossPrice)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.New("invalid stop_loss_price")
		}
		return entryPrice, stopLoss, nil
	}

	if strings.TrimSpace(req.StopDistance) != "" {
		distance, err := decimal.NewFromString(req.StopDistance)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.New("invalid stop_distance")
		}
		return entryPrice, entryPrice.Sub(distance), nil
	}

	return decimal.Zero, decimal.Zero, errors.New("stop_loss_price or stop_distance is required")
}

func mapHTTPRequestToOrderIntent(req *PlaceOrderRequest) (entity.OrderIntent, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return entity.OrderIntent{}, errors.New("symbol is required")
	}

	side, ok := entity.ParseOrderSide(strings.ToUpper(req.Side))
	if !ok {
		return entity.OrderIntent{}, errors.New("invalid side")
	}

	volume, err := parseOptionalDecimal(req.Volume, "volume")
	if err != nil {
		return entity.OrderIntent{}, err
	}

	price, err := parseOptionalDecimal(req.Price, "price")
	if err != nil {
		return entity.OrderIntent{}, err
	}

	stopLoss, err := parseOptionalDecimal(req.StopLoss, "stop_loss")
	if err != nil {
		return entity.OrderIntent{}, err
	}

	takeProfit, err := parseOptionalDecimal(req.TakeProfit, "take_profit")
	if err != nil {
		return entity.OrderIntent{}, err
	}

	riskPercent, err := parseOptionalDecimal(req.RiskPercent, "risk_percent")
	if err != nil {
		return entity.OrderIntent{}, err
	}

	return entity.OrderIntent{
		RequestID:   req.RequestID,
		Symbol:      req.Symbol,
		Side:        side,
		Volume:      volume,
		Price:       price,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		RiskPercent: riskPercent,
		Comment:     req.Comment,
		Magic:       req.Magic,
	}, nil
}

func parseOptionalDecimal(raw, field string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.New("invalid " + field)
	}

	return &parsed, nil
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrUpstreamUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	case errors.Is(err, entity.ErrInvalidOrder), errors.Is(err, entity.ErrInvalidRiskInput):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, entity.ErrSymbolNotFound), errors.Is(err, entity.ErrUnknownPosition):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
