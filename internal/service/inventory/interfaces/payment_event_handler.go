package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/mq"
	"nexus-inventory/internal/service/inventory/application"
	"nexus-inventory/internal/service/inventory/domain"
	"nexus-inventory/internal/service/inventory/domain/port"
)

// PaymentEventHandler 是一个驱动适配器，它消费支付结果事件并驱动预占的确认、扣减或取消。
type PaymentEventHandler struct {
	reader       *kafka.Reader
	reservations *application.ReservationService
	fulfillment  *application.FulfillmentService
	dedupe       port.IdempotencyStore
	alerts       port.AlertPublisher
	failures     *mq.FailureHandler
	tracer       trace.Tracer
	wg           sync.WaitGroup
}

func NewPaymentEventHandler(reader *kafka.Reader, reservations *application.ReservationService, fulfillment *application.FulfillmentService, dedupe port.IdempotencyStore, alerts port.AlertPublisher, failures *mq.FailureHandler, tracer trace.Tracer) *PaymentEventHandler {
	return &PaymentEventHandler{
		reader:       reader,
		reservations: reservations,
		fulfillment:  fulfillment,
		dedupe:       dedupe,
		alerts:       alerts,
		failures:     failures,
		tracer:       tracer,
	}
}

// Run 持续拉取消息直到 ctx 被取消。每条消息处理完（成功或转投死信）后才提交 offset，
// 因退出而中断的消息不提交，重启后会被重新投递。
func (h *PaymentEventHandler) Run(ctx context.Context) error {
	h.wg.Add(1)
	defer h.wg.Done()
	logger.Ctx(ctx).Info().Str("topic", h.reader.Config().Topic).Msg("payment result consumer started")
	for {
		msg, err := h.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("payment result consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := h.HandleMessage(ctx, msg); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("offset", msg.Offset).Msg("payment result left uncommitted")
			return nil
		}

		if err := h.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// Stop 关闭 reader 并等待消费循环退出。
func (h *PaymentEventHandler) Stop() error {
	err := h.reader.Close()
	h.wg.Wait()
	return err
}

// HandleMessage 处理单条消息。处理失败的消息转投死信主题。
// 只有 ctx 在处理过程中被取消时才返回错误，此时消息既没有落实也没有转投，调用方不能提交 offset。
func (h *PaymentEventHandler) HandleMessage(parent context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := h.tracer.Start(ctx, "consumer.PaymentResult", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		))
	defer span.End()
	// 死信、告警和完成标记不受退出信号影响
	detached := context.WithoutCancel(ctx)

	var event domain.PaymentResultEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.failures.Handle(detached, msg, errors.Wrap(err, "decode payment result"))
		return nil
	}
	if event.EventID == "" || event.OrderID == "" {
		h.failures.Handle(detached, msg, errors.New("payment result without eventId or orderId"))
		return nil
	}
	span.SetAttributes(
		attribute.String("order.id", event.OrderID),
		attribute.String("payment.status", string(event.Status)),
	)

	seen, err := h.dedupe.Seen(ctx, event.EventID)
	switch {
	case err != nil && ctx.Err() != nil:
		return errors.Wrap(ctx.Err(), "payment result interrupted")
	case err != nil:
		// 去重只是优化，下游操作可以安全重放
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", event.EventID).Msg("dedupe store unavailable, processing anyway")
	case seen:
		logger.Ctx(ctx).Info().Str("event_id", event.EventID).Msg("duplicate payment result skipped")
		return nil
	}

	if err := h.process(ctx, event); err != nil {
		recordSpanError(span, err)
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "payment result interrupted: %v", err)
		}
		if errors.Is(err, domain.ErrInvariantViolation) {
			alertErr := h.alert(detached, event, err)
			if alertErr == nil {
				h.markDone(detached, event.EventID)
				return nil
			}
			err = errors.Wrapf(err, "alert not published: %v", alertErr)
		}
		h.failures.Handle(detached, msg, err)
		return nil
	}
	h.markDone(detached, event.EventID)
	return nil
}

func (h *PaymentEventHandler) markDone(ctx context.Context, eventID string) {
	if err := h.dedupe.MarkDone(ctx, eventID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_id", eventID).Msg("failed to mark payment result done")
	}
}

func (h *PaymentEventHandler) process(ctx context.Context, event domain.PaymentResultEvent) error {
	switch event.Status {
	case domain.PaymentSucceeded:
		return h.fulfil(ctx, event.OrderID)
	case domain.PaymentFailed, domain.PaymentTimedOut, domain.PaymentCancelled:
		_, err := h.reservations.CancelReservations(ctx, event.OrderID)
		return err
	default:
		return errors.Errorf("unknown payment status %q", event.Status)
	}
}

// fulfil 确认并扣减。如果确认因为预占已是 CONFIRMED 而失败（上一次处理中断后重放），
// 仍然尝试扣减尚未落实的部分；全部已经扣减过时视为成功。
func (h *PaymentEventHandler) fulfil(ctx context.Context, orderID string) error {
	_, confirmErr := h.reservations.ConfirmReservations(ctx, orderID)
	if confirmErr != nil && !errors.Is(confirmErr, domain.ErrInvalidReservationState) {
		return confirmErr
	}
	_, err := h.fulfillment.DecrementConfirmedStock(ctx, orderID)
	if err == nil || confirmErr == nil || !errors.Is(err, domain.ErrNothingToDecrement) {
		return err
	}
	done, checkErr := h.fulfillment.IsOrderFulfilled(ctx, orderID)
	if checkErr != nil {
		return checkErr
	}
	if done {
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("payment result already applied")
		return nil
	}
	return confirmErr
}

func (h *PaymentEventHandler) alert(ctx context.Context, event domain.PaymentResultEvent, cause error) error {
	err := h.alerts.PublishReconciliationRequired(ctx, domain.ReconciliationRequired{
		OrderID:    event.OrderID,
		Reason:     cause.Error(),
		DetectedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", event.OrderID).Msg("failed to publish reconciliation alert")
		return err
	}
	logger.Ctx(ctx).Error().Str("order_id", event.OrderID).Msg("reconciliation required, alert published")
	return nil
}
