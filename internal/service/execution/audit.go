package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/config"
	"github.com/avelios/terminal-gateway/internal/constant"
	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/repository"
	"github.com/avelios/terminal-gateway/internal/util"
)

const defaultAuditHandlerTimeout = 10 * time.Second

// AuditService consumes order executed events and backfills the audit table.
// It makes persistence independent of the gateway instance that placed the
// order: a record already written is left alone, a missing one is created.
type AuditService struct {
	js               nats.JetStreamContext
	orderHistoryRepo *repository.OrderHistoryRepository
}

func NewAuditService(js nats.JetStreamContext, orderHistoryRepo *repository.OrderHistoryRepository) *AuditService {
	return &AuditService{
		js:               js,
		orderHistoryRepo: orderHistoryRepo,
	}
}

func (s *AuditService) JetstreamEventSubscribe(ctx context.Context) error {
	timeout := config.Env.NatsJetstream.TimeoutHandler["order_executed"]
	if timeout <= 0 {
		timeout = defaultAuditHandlerTimeout
	}

	_, err := s.js.QueueSubscribe(
		constant.OrderStreamSubjectExecuted,
		constant.OrderExecutedQueueName,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(timeout, msg, s.handleOrderExecutedEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.OrderExecutedQueueGroup),
	)

	return err
}

func (s *AuditService) handleOrderExecutedEvent(ctx context.Context, msg *nats.Msg) (err error) {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var event *entity.OrderExecutedEvent
	err = json.Unmarshal(msg.Data, &event)
	if err != nil {
		logger.Error(err)
		return err
	}

	defer func() {
		if err != nil {
			logger.Error(err)
			event.RetryCount++
			if event.RetryCount >= config.Env.NatsJetstream.MaxRetries {
				return
			}

			err := util.PublishEvent(s.js, constant.OrderStreamSubjectExecuted, event)
			if err != nil {
				logger.Error(err)
				return
			}
		}
	}()

	if event.Data.RequestID == "" {
		event.RetryCount = config.Env.NatsJetstream.MaxRetries // malformed, never retry
		return fmt.Errorf("order executed event without request_id")
	}

	_, err = s.orderHistoryRepo.GetByRequestID(ctx, event.Data.RequestID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	record := event.Data
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	err = s.orderHistoryRepo.Create(ctx, &record)
	if err != nil {
		return err
	}

	logger.WithField("request_id", record.RequestID).Info("order record backfilled")

	return nil
}
