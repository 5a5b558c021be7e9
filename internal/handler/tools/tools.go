// Package tools exposes the gateway's operations as a JSON-RPC 2.0 server
// over stdio, one request per line. It is meant to be spawned as a child
// process by agent runtimes that speak line-delimited JSON-RPC.
package tools

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/service/analysis"
	"github.com/avelios/terminal-gateway/internal/service/execution"
	"github.com/avelios/terminal-gateway/internal/service/risk"
)

const (
	serverName    = "terminal-gateway-tools"
	serverVersion = "1.0.0"

	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// maxLineSize bounds a single request line. Rate requests dominate responses,
// not requests, so 1 MiB is generous.
const maxLineSize = 1 << 20

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type capabilities struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Methods []string `json:"methods"`
}

type toolFunc func(ctx context.Context, params json.RawMessage) (any, error)

type Server struct {
	gateway     entity.SessionGateway
	coordinator *execution.Coordinator
	analyzer    *analysis.Analyzer
	instruments execution.InstrumentSource

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
	methods map[string]toolFunc
}

func NewServer(gateway entity.SessionGateway, coordinator *execution.Coordinator, analyzer *analysis.Analyzer, instruments execution.InstrumentSource, in io.Reader, out io.Writer) *Server {
	s := &Server{
		gateway:     gateway,
		coordinator: coordinator,
		analyzer:    analyzer,
		instruments: instruments,
		in:          in,
		out:         out,
	}

	s.methods = map[string]toolFunc{
		"connect":                 s.connect,
		"disconnect":              s.disconnect,
		"account_info":            s.accountInfo,
		"symbols":                 s.symbols,
		"tick":                    s.tick,
		"rates":                   s.rates,
		"positions":               s.positions,
		"orders":                  s.orders,
		"place_order":             s.placeOrder,
		"close_position":          s.closePosition,
		"modify_position":         s.modifyPosition,
		"analyze_market":          s.analyzeMarket,
		"calculate_position_size": s.calculatePositionSize,
	}

	return s
}

// Run announces capabilities then serves requests line by line until input is
// exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.write(capabilities{
		Name:    serverName,
		Version: serverVersion,
		Methods: s.methodNames(),
	}); err != nil {
		return err
	}

	logrus.Info("tools server started")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			logrus.Errorf("invalid request line: %v", err)
			continue
		}

		if err := s.write(s.dispatch(ctx, req)); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	method, ok := s.methods[req.Method]
	if !ok {
		return response{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method},
			ID:      req.ID,
		}
	}

	result, err := method(ctx, req.Params)
	if err != nil {
		code := codeInternalError
		if errors.Is(err, entity.ErrInvalidOrder) || errors.Is(err, entity.ErrInvalidRiskInput) {
			code = codeInvalidParams
		}

		logrus.WithField("method", req.Method).Errorf("tool call failed: %v", err)
		return response{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: code, Message: err.Error()},
			ID:      req.ID,
		}
	}

	return response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (s *Server) write(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.out.Write(append(raw, '\n'))
	return err
}

func (s *Server) methodNames() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (s *Server) connect(ctx context.Context, params json.RawMessage) (any, error) {
	var creds entity.Credentials
	if len(params) > 0 {
		if err := json.Unmarshal(params, &creds); err != nil {
			return nil, err
		}
	}

	account, err := s.gateway.Connect(ctx, creds)
	if err != nil {
		return nil, err
	}

	return map[string]any{"status": "success", "account": account}, nil
}

func (s *Server) disconnect(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := s.gateway.Disconnect(ctx); err != nil {
		return nil, err
	}

	return map[string]any{"status": "success"}, nil
}

func (s *Server) accountInfo(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.gateway.GetAccount(ctx)
}

func (s *Server) symbols(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.gateway.ListSymbols(ctx)
}

func (s *Server) tick(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	return s.gateway.GetQuote(ctx, p.Symbol)
}

func (s *Server) rates(ctx context.Context, params json.RawMessage) (any, error) {
	p := struct {
		Symbol    string `json:"symbol"`
		Timeframe string `json:"timeframe"`
		Count     int    `json:"count"`
	}{Timeframe: string(entity.TimeframeM1), Count: 100}

	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	timeframe, ok := entity.ParseTimeframe(p.Timeframe)
	if !ok {
		return nil, errors.New("invalid timeframe: " + p.Timeframe)
	}

	return s.gateway.GetRates(ctx, p.Symbol, timeframe, p.Count)
}

func (s *Server) positions(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.gateway.ListPositions(ctx)
}

func (s *Server) orders(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.gateway.ListOrders(ctx)
}

func (s *Server) placeOrder(ctx context.Context, params json.RawMessage) (any, error) {
	var intent entity.OrderIntent
	if err := json.Unmarshal(params, &intent); err != nil {
		return nil, err
	}

	return s.coordinator.PlaceOrder(ctx, intent)
}

func (s *Server) closePosition(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Ticket int64 `json:"ticket"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	return s.coordinator.ClosePosition(ctx, p.Ticket)
}

func (s *Server) modifyPosition(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Ticket     int64            `json:"ticket"`
		StopLoss   *decimal.Decimal `json:"sl"`
		TakeProfit *decimal.Decimal `json:"tp"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	return s.coordinator.ModifyPosition(ctx, p.Ticket, p.StopLoss, p.TakeProfit)
}

func (s *Server) analyzeMarket(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	result, err := s.analyzer.Analyze(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

	return map[string]any{"status": "success", "analysis": result}, nil
}

func (s *Server) calculatePositionSize(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Symbol         string          `json:"symbol"`
		Balance        decimal.Decimal `json:"balance"`
		RiskPercentage decimal.Decimal `json:"risk_percentage"`
		StopLossTicks  decimal.Decimal `json:"stop_loss_pips"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}

	instrument, err := s.instruments.Resolve(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

	result, err := risk.ComputeSizeFromTicks(p.Balance, p.RiskPercentage, p.StopLossTicks, *instrument)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status":        "success",
		"position_size": result.Volume,
		"risk_amount":   result.RiskAmount,
		"pip_value":     instrument.TickValue,
	}, nil
}
