// internal/service/inventory/application/expiry_sweeper.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/service/inventory/domain"
)

// ExpirySweeper 回收超时未确认的预占。
type ExpirySweeper struct {
	tx           domain.Transactor
	reservations domain.ReservationRepository
	tracer       trace.Tracer
	metrics      *metrics.InventoryMetrics
	now          func() time.Time
}

func NewExpirySweeper(tx domain.Transactor, reservations domain.ReservationRepository, tracer trace.Tracer, m *metrics.InventoryMetrics) *ExpirySweeper {
	return &ExpirySweeper{
		tx:           tx,
		reservations: reservations,
		tracer:       tracer,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 替换时钟，返回自身便于链式调用。
func (s *ExpirySweeper) WithClock(now func() time.Time) *ExpirySweeper {
	s.now = now
	return s
}

// ProcessExpiredReservations 把所有 expires_at 早于当前时间的 ACTIVE 预占置为 EXPIRED，返回影响行数。
// 重复执行是安全的，第二次会返回 0。
func (s *ExpirySweeper) ProcessExpiredReservations(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "app.ProcessExpiredReservations")
	defer span.End()
	start := time.Now()

	var expired int64
	err := s.tx.InNewTx(ctx, func(ctx context.Context) error {
		n, err := s.reservations.ExpireActiveBefore(ctx, s.now())
		expired = n
		return err
	})
	s.metrics.OperationLatency.WithLabelValues("expire").Observe(time.Since(start).Seconds())
	if err != nil {
		recordError(span, err)
		logger.Ctx(ctx).Error().Err(err).Msg("expire reservations failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int64("reservations.expired", expired))
	s.metrics.ExpiredReservations.Add(float64(expired))
	if expired > 0 {
		logger.Ctx(ctx).Info().Int64("expired", expired).Msg("expired reservations released")
	}
	return expired, nil
}
