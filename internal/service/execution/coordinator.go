// Package execution validates, sizes and submits order intents against the
// terminal session and reconciles the result into a single outcome.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/constant"
	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/service/risk"
	"github.com/avelios/terminal-gateway/internal/util"
)

// InstrumentSource resolves instrument metadata, normally through the redis
// store with the gateway as fallback.
type InstrumentSource interface {
	Resolve(ctx context.Context, symbol string) (*entity.Instrument, error)
}

// OrderRecorder persists coordinator outcomes. Optional.
type OrderRecorder interface {
	Create(ctx context.Context, record *entity.OrderRecord) error
}

// Coordinator runs each intent through
// Received -> Validated -> Sized (if needed) -> Submitted -> Accepted|Rejected.
// Validation and sizing failures are terminal and happen before any upstream
// call; rejections surface as outcomes and are never auto-retried, since a
// blind retry on a live order risks duplicate execution.
type Coordinator struct {
	gateway     entity.SessionGateway
	instruments InstrumentSource
	recorder    OrderRecorder
	js          nats.JetStreamContext

	defaultRiskPercent decimal.Decimal
	defaultMagic       int64
	defaultDeviation   int
	maxPositions       int
}

type Option func(*Coordinator)

func WithRecorder(recorder OrderRecorder) Option {
	return func(c *Coordinator) { c.recorder = recorder }
}

func WithJetstream(js nats.JetStreamContext) Option {
	return func(c *Coordinator) { c.js = js }
}

func WithDefaultRiskPercent(pct decimal.Decimal) Option {
	return func(c *Coordinator) { c.defaultRiskPercent = pct }
}

func WithDefaultMagic(magic int64) Option {
	return func(c *Coordinator) { c.defaultMagic = magic }
}

func WithDefaultDeviation(deviation int) Option {
	return func(c *Coordinator) { c.defaultDeviation = deviation }
}

// WithMaxPositions caps how many positions may be open when a new order is
// submitted. Zero means no cap.
func WithMaxPositions(max int) Option {
	return func(c *Coordinator) { c.maxPositions = max }
}

func NewCoordinator(gateway entity.SessionGateway, instruments InstrumentSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway:     gateway,
		instruments: instruments,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// JetstreamEventInit provisions the order event stream. No-op without NATS.
func (c *Coordinator) JetstreamEventInit(ctx context.Context) error {
	if c.js == nil {
		return nil
	}

	streamConfig := &nats.StreamConfig{
		Name:      constant.OrderStreamName,
		Subjects:  []string{constant.OrderStreamSubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Replicas:  1,
	}

	stream, err := c.js.StreamInfo(constant.OrderStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.OrderStreamName)
		_, err = c.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	_, err = c.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.OrderStreamName)

	return nil
}

// PlaceOrder executes one order intent. It returns ErrInvalidOrder or
// ErrInvalidRiskInput before any submission attempt; after submission it
// returns the reconciled OrderOutcome (accepted or rejected with reason).
func (c *Coordinator) PlaceOrder(ctx context.Context, intent entity.OrderIntent) (*entity.OrderOutcome, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if intent.RequestID == "" {
		intent.RequestID = uuid.NewString()
	}

	if err := c.validate(intent); err != nil {
		return nil, err
	}

	instrument, err := c.instruments.Resolve(ctx, intent.Symbol)
	if err != nil {
		if errors.Is(err, entity.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", entity.ErrInvalidOrder, err)
	}

	if c.maxPositions > 0 {
		positions, err := c.gateway.ListPositions(ctx)
		if err != nil {
			return nil, err
		}
		if len(positions) >= c.maxPositions {
			return nil, fmt.Errorf("%w: position limit of %d reached", entity.ErrInvalidOrder, c.maxPositions)
		}
	}

	volume, err := c.resolveVolume(ctx, intent, *instrument)
	if err != nil {
		return nil, err
	}

	if intent.Magic == 0 {
		intent.Magic = c.defaultMagic
	}

	outcome, err := c.gateway.PlaceOrder(ctx, entity.PlaceOrderRequest{
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Volume:     volume,
		Price:      intent.Price,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Deviation:  c.defaultDeviation,
		Comment:    intent.Comment,
		Magic:      intent.Magic,
	})
	if err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"request_id": intent.RequestID,
		"symbol":     intent.Symbol,
		"side":       intent.Side,
		"volume":     volume.String(),
		"accepted":   outcome.Accepted,
	})
	if outcome.Accepted {
		logger.WithField("ticket", outcome.Ticket).Info("order placed")
	} else {
		logger.WithField("reason", outcome.Reason).Info("order rejected")
	}

	c.record(ctx, intent, volume, outcome)

	return outcome, nil
}

// ClosePosition closes an open position by ticket. An unknown ticket fails
// with ErrUnknownPosition.
func (c *Coordinator) ClosePosition(ctx context.Context, ticket int64) (*entity.OrderOutcome, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if ticket <= 0 {
		return nil, fmt.Errorf("%w: ticket must be positive", entity.ErrInvalidOrder)
	}

	outcome, err := c.gateway.CloseOrder(ctx, ticket)
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

// ModifyPosition updates stop-loss and/or take-profit on an open position.
func (c *Coordinator) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit *decimal.Decimal) (*entity.OrderOutcome, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if ticket <= 0 {
		return nil, fmt.Errorf("%w: ticket must be positive", entity.ErrInvalidOrder)
	}
	if stopLoss == nil && takeProfit == nil {
		return nil, fmt.Errorf("%w: nothing to modify", entity.ErrInvalidOrder)
	}

	outcome, err := c.gateway.ModifyOrder(ctx, ticket, stopLoss, takeProfit)
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

func (c *Coordinator) validate(intent entity.OrderIntent) error {
	if intent.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", entity.ErrInvalidOrder)
	}

	if _, ok := entity.ParseOrderSide(string(intent.Side)); !ok {
		return fmt.Errorf("%w: invalid side %q", entity.ErrInvalidOrder, intent.Side)
	}

	if intent.Volume != nil {
		if !intent.Volume.IsPositive() {
			return fmt.Errorf("%w: volume must be positive", entity.ErrInvalidOrder)
		}
		return nil
	}

	riskPercent := intent.RiskPercent
	if riskPercent == nil && c.defaultRiskPercent.IsPositive() {
		riskPercent = &c.defaultRiskPercent
	}

	if riskPercent == nil || intent.StopLoss == nil {
		return fmt.Errorf("%w: either volume or risk_percent with stop_loss is required", entity.ErrInvalidOrder)
	}

	return nil
}

// resolveVolume returns the explicit volume, or sizes the order from a fresh
// account snapshot and the current quote.
func (c *Coordinator) resolveVolume(ctx context.Context, intent entity.OrderIntent, instrument entity.Instrument) (decimal.Decimal, error) {
	if intent.Volume != nil {
		return *intent.Volume, nil
	}

	account, err := c.gateway.GetAccount(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	quote, err := c.gateway.GetQuote(ctx, intent.Symbol)
	if err != nil {
		return decimal.Zero, err
	}

	entryPrice := quote.Ask
	if intent.Side == entity.OrderSideSell {
		entryPrice = quote.Bid
	}

	riskPercent := c.defaultRiskPercent
	if intent.RiskPercent != nil {
		riskPercent = *intent.RiskPercent
	}

	result, err := risk.ComputeSize(risk.SizingInput{
		Balance:       account.Balance,
		RiskPercent:   riskPercent,
		EntryPrice:    entryPrice,
		StopLossPrice: *intent.StopLoss,
		Instrument:    instrument,
	})
	if err != nil {
		return decimal.Zero, err
	}

	return result.Volume, nil
}

func (c *Coordinator) record(ctx context.Context, intent entity.OrderIntent, volume decimal.Decimal, outcome *entity.OrderOutcome) {
	now := time.Now().UTC()

	record := entity.OrderRecord{
		RequestID:  intent.RequestID,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Volume:     volume,
		Price:      intent.Price,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Status:     entity.OrderStatusRejected,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if outcome.Accepted {
		record.Status = entity.OrderStatusAccepted
		record.Ticket.Int64 = outcome.Ticket
		record.Ticket.Valid = true
		record.Volume = outcome.EffectiveVolume
	} else if outcome.Reason != "" {
		record.Reason.String = outcome.Reason
		record.Reason.Valid = true
	}

	if c.recorder != nil {
		if err := c.recorder.Create(ctx, &record); err != nil {
			logrus.Errorf("failed to persist order record: %v", err)
		}
	}

	if c.js != nil {
		err := util.PublishEvent(c.js, constant.OrderStreamSubjectExecuted, entity.OrderExecutedEvent{
			RetryCount: 0,
			Data:       record,
		})
		if err != nil {
			logrus.Errorf("failed to publish order event: %v", err)
		}
	}
}
