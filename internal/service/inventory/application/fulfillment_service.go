// internal/service/inventory/application/fulfillment_service.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/service/inventory/domain"
)

// FulfillmentService 是唯一会修改 product.stock 的组件。
type FulfillmentService struct {
	tx           domain.Transactor
	products     domain.ProductRepository
	reservations domain.ReservationRepository
	tracer       trace.Tracer
	metrics      *metrics.InventoryMetrics
	now          func() time.Time
}

func NewFulfillmentService(tx domain.Transactor, products domain.ProductRepository, reservations domain.ReservationRepository, tracer trace.Tracer, m *metrics.InventoryMetrics) *FulfillmentService {
	return &FulfillmentService{
		tx:           tx,
		products:     products,
		reservations: reservations,
		tracer:       tracer,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// DecrementConfirmedStock 把订单已确认、尚未扣减的预占落实为真实库存扣减。
// 扣减时库存不足说明上游不变量已被破坏，返回 ErrInvariantViolation，整个事务回滚，不做任何重试。
func (s *FulfillmentService) DecrementConfirmedStock(ctx context.Context, orderID string) (summary *DecrementSummary, err error) {
	ctx, span := s.tracer.Start(ctx, "app.DecrementConfirmedStock", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()
	start := time.Now()
	defer func() {
		s.metrics.Reservations.WithLabelValues("decrement", outcome(err)).Inc()
		s.metrics.OperationLatency.WithLabelValues("decrement").Observe(time.Since(start).Seconds())
		if err != nil {
			recordError(span, err)
		}
	}()

	err = s.tx.InNewTx(ctx, func(ctx context.Context) error {
		summary = &DecrementSummary{OrderID: orderID, Items: []DecrementedItem{}}
		confirmed, err := s.reservations.FindUncommittedConfirmed(ctx, orderID)
		if err != nil {
			return err
		}
		if len(confirmed) == 0 {
			return errors.Wrapf(domain.ErrNothingToDecrement, "order %s", orderID)
		}

		now := s.now()
		// 仓储按 product_id 排序返回，多个订单并发扣减时以相同顺序更新商品行
		for _, r := range confirmed {
			product, err := s.products.FindByID(ctx, r.ProductID)
			if err != nil {
				return err
			}
			if product.Stock < r.ReservedQuantity {
				return errors.Wrapf(domain.ErrInvariantViolation,
					"product %s stock %d is below confirmed quantity %d (reservation %s)",
					r.ProductID, product.Stock, r.ReservedQuantity, r.ID)
			}
			ok, err := s.products.DecrementStock(ctx, r.ProductID, r.ReservedQuantity, product.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(domain.ErrWriteConflict, "product %s changed during decrement", r.ProductID)
			}

			if err := r.MarkCommitted(now); err != nil {
				return err
			}
			ok, err = s.reservations.MarkCommitted(ctx, r)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(domain.ErrWriteConflict, "reservation %s changed during decrement", r.ID)
			}
			summary.add(r.ProductID, r.ReservedQuantity)
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvariantViolation):
		s.metrics.InvariantViolations.Inc()
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("stock invariant violated, order requires reconciliation")
		return nil, err
	case errors.Is(err, domain.ErrWriteConflict):
		s.metrics.WriteConflicts.WithLabelValues("decrement").Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("decrement lost optimistic lock")
		return nil, err
	default:
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("decrement confirmed stock failed")
		return nil, err
	}

	s.metrics.StockDecremented.Add(float64(summary.TotalUnits))
	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Int64("units", summary.TotalUnits).
		Msg("confirmed stock decremented")
	return summary, nil
}

// IsOrderFulfilled 判断订单的预占是否已经全部确认并扣减。
// 支付成功事件重放时用它区分"已经落实"和"预占已过期或被取消"。
func (s *FulfillmentService) IsOrderFulfilled(ctx context.Context, orderID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "app.IsOrderFulfilled", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	all, err := s.reservations.FindByOrder(ctx, orderID)
	if err != nil {
		recordError(span, err)
		return false, err
	}
	if len(all) == 0 {
		return false, nil
	}
	for _, r := range all {
		if r.Status != domain.StatusConfirmed || r.CommittedAt == nil {
			return false, nil
		}
	}
	return true, nil
}
