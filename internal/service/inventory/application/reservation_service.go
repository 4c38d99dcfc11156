// internal/service/inventory/application/reservation_service.go
package application

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/service/inventory/domain"
	"nexus-inventory/internal/service/inventory/domain/port"
)

// ReservationService 管理预占的生命周期：创建、确认、取消和查询。
// 进程内没有任何锁，并发正确性完全依赖数据库的版本号条件更新。
type ReservationService struct {
	tx           domain.Transactor
	products     domain.ProductRepository
	reservations domain.ReservationRepository
	availability *AvailabilityService
	policy       port.LinePolicy
	ttl          time.Duration
	tracer       trace.Tracer
	metrics      *metrics.InventoryMetrics
	now          func() time.Time
	retry        retryPolicy
}

// Option 用于覆盖 ReservationService 的可选依赖。
type Option func(*ReservationService)

// WithLinePolicy 设置订单行准入策略，默认不做限制。
func WithLinePolicy(p port.LinePolicy) Option {
	return func(s *ReservationService) { s.policy = p }
}

// WithClock 替换时钟，测试中用于模拟时间流逝。
func WithClock(now func() time.Time) Option {
	return func(s *ReservationService) { s.now = now }
}

// WithConflictRetry 调整乐观锁冲突的重试次数和退避时间。
func WithConflictRetry(retries int, backoff time.Duration) Option {
	return func(s *ReservationService) { s.retry = retryPolicy{retries: retries, backoff: backoff} }
}

func NewReservationService(tx domain.Transactor, products domain.ProductRepository, reservations domain.ReservationRepository, availability *AvailabilityService, ttl time.Duration, tracer trace.Tracer, m *metrics.InventoryMetrics, opts ...Option) *ReservationService {
	s := &ReservationService{
		tx:           tx,
		products:     products,
		reservations: reservations,
		availability: availability,
		policy:       port.AllowAll{},
		ttl:          ttl,
		tracer:       tracer,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
		retry:        retryPolicy{retries: DefaultConflictRetries, backoff: DefaultConflictBackoff},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateReservation 为单个订单行创建预占。
func (s *ReservationService) CreateReservation(ctx context.Context, orderID, productID string, quantity int64) (*domain.Reservation, error) {
	created, err := s.reserve(ctx, "create", orderID, []domain.OrderLine{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateBulkReservations 为整个订单创建预占，要么全部成功，要么一条都不写入。
func (s *ReservationService) CreateBulkReservations(ctx context.Context, orderID string, lines []domain.OrderLine) ([]*domain.Reservation, error) {
	if len(lines) == 0 {
		return nil, errors.Wrapf(domain.ErrInvalidQuantity, "order %s has no lines", orderID)
	}
	return s.reserve(ctx, "create_bulk", orderID, lines)
}

func (s *ReservationService) reserve(ctx context.Context, op, orderID string, lines []domain.OrderLine) (created []*domain.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Reserve", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.lines", len(lines)),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		s.metrics.Reservations.WithLabelValues(op, outcome(err)).Inc()
		s.metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			recordError(span, err)
		}
	}()

	demand, err := s.validate(ctx, orderID, lines)
	if err != nil {
		return nil, err
	}

	err = s.retry.onConflict(ctx, op, func() {
		s.metrics.WriteConflicts.WithLabelValues(op).Inc()
	}, func() error {
		var txErr error
		created, txErr = s.reserveOnce(ctx, orderID, lines, demand)
		return txErr
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("reservation rejected")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Int("reservations", len(created)).
		Time("expires_at", created[0].ExpiresAt).
		Msg("stock reserved")
	return created, nil
}

// productDemand 是同一商品在订单中的合计需求量。
type productDemand struct {
	productID string
	quantity  int64
}

// validate 校验数量和准入策略，并按商品合并需求。结果按商品 ID 排序，保证多个事务以相同顺序访问商品。
func (s *ReservationService) validate(ctx context.Context, orderID string, lines []domain.OrderLine) ([]productDemand, error) {
	if orderID == "" {
		return nil, errors.Wrap(domain.ErrInvalidLine, "order id is required")
	}
	totals := make(map[string]int64, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, errors.Wrapf(domain.ErrInvalidLine, "order %s has a line without product id", orderID)
		}
		if line.Quantity <= 0 {
			return nil, errors.Wrapf(domain.ErrInvalidQuantity, "product %s quantity %d", line.ProductID, line.Quantity)
		}
		allowed, err := s.policy.Allow(ctx, orderID, line)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, errors.Wrapf(domain.ErrLineRejected, "product %s quantity %d", line.ProductID, line.Quantity)
		}
		totals[line.ProductID] += line.Quantity
	}
	demand := make([]productDemand, 0, len(totals))
	for id, q := range totals {
		demand = append(demand, productDemand{productID: id, quantity: q})
	}
	sort.Slice(demand, func(i, j int) bool { return demand[i].productID < demand[j].productID })
	return demand, nil
}

// reserveOnce 在一个新事务里完成 "检查可售库存 -> 写入预占 -> 递增商品版本号"。
// 如果在检查之后有其他事务改动了商品，版本号条件更新会失败，整个事务回滚并返回 ErrWriteConflict。
func (s *ReservationService) reserveOnce(ctx context.Context, orderID string, lines []domain.OrderLine, demand []productDemand) ([]*domain.Reservation, error) {
	var created []*domain.Reservation
	err := s.tx.InNewTx(ctx, func(ctx context.Context) error {
		versions := make(map[string]int64, len(demand))
		for _, d := range demand {
			product, view, err := s.availability.compute(ctx, d.productID)
			if err != nil {
				return err
			}
			if d.quantity > view.AvailableStock {
				return &domain.InsufficientStockError{
					ProductID: d.productID,
					Requested: d.quantity,
					Available: view.AvailableStock,
				}
			}
			versions[d.productID] = product.Version
		}

		now := s.now()
		created = make([]*domain.Reservation, 0, len(lines))
		for _, line := range lines {
			r, err := domain.NewReservation(orderID, line.ProductID, line.Quantity, now, s.ttl)
			if err != nil {
				return err
			}
			created = append(created, r)
		}
		if err := s.reservations.CreateBatch(ctx, created); err != nil {
			return err
		}

		for _, d := range demand {
			ok, err := s.products.BumpVersion(ctx, d.productID, versions[d.productID])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(domain.ErrWriteConflict, "product %s changed during reservation", d.productID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ConfirmReservations 在支付成功后把订单的全部预占置为 CONFIRMED。
// 只要有一条不是 ACTIVE，整个确认失败并回滚。
func (s *ReservationService) ConfirmReservations(ctx context.Context, orderID string) (confirmed []*domain.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "app.ConfirmReservations", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()
	start := time.Now()
	defer func() {
		s.metrics.Reservations.WithLabelValues("confirm", outcome(err)).Inc()
		s.metrics.OperationLatency.WithLabelValues("confirm").Observe(time.Since(start).Seconds())
		if err != nil {
			recordError(span, err)
		}
	}()

	err = s.tx.InNewTx(ctx, func(ctx context.Context) error {
		all, err := s.reservations.FindByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			return errors.Wrapf(domain.ErrReservationNotFound, "order %s", orderID)
		}
		now := s.now()
		for _, r := range all {
			if err := r.Confirm(now); err != nil {
				return err
			}
		}
		for _, r := range all {
			ok, err := s.reservations.TransitionStatus(ctx, r, domain.StatusActive)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(domain.ErrWriteConflict, "reservation %s changed during confirm", r.ID)
			}
		}
		confirmed = all
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrWriteConflict) {
			s.metrics.WriteConflicts.WithLabelValues("confirm").Inc()
		}
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("confirm reservations failed")
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("reservations", len(confirmed)).Msg("reservations confirmed")
	return confirmed, nil
}

// CancelReservations 释放订单中仍为 ACTIVE 的预占，返回实际被取消的部分。
// 已处于终态的预占会被跳过，重复调用是安全的。
func (s *ReservationService) CancelReservations(ctx context.Context, orderID string) (cancelled []*domain.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelReservations", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()
	start := time.Now()
	defer func() {
		s.metrics.Reservations.WithLabelValues("cancel", outcome(err)).Inc()
		s.metrics.OperationLatency.WithLabelValues("cancel").Observe(time.Since(start).Seconds())
		if err != nil {
			recordError(span, err)
		}
	}()

	err = s.tx.InNewTx(ctx, func(ctx context.Context) error {
		cancelled = nil
		active, err := s.reservations.FindByOrderAndStatus(ctx, orderID, domain.StatusActive)
		if err != nil {
			return err
		}
		now := s.now()
		for _, r := range active {
			if !r.Cancel(now) {
				continue
			}
			ok, err := s.reservations.TransitionStatus(ctx, r, domain.StatusActive)
			if err != nil {
				return err
			}
			if !ok {
				// 已被清理任务或确认抢先处理
				logger.Ctx(ctx).Warn().Str("reservation_id", r.ID).Msg("reservation changed concurrently, skip cancel")
				continue
			}
			cancelled = append(cancelled, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(cancelled) == 0 {
		logger.Ctx(ctx).Warn().Str("order_id", orderID).Msg("no active reservations to cancel")
		return []*domain.Reservation{}, nil
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("reservations", len(cancelled)).Msg("reservations cancelled")
	return cancelled, nil
}

// GetActiveReservationsByOrder 返回订单中仍为 ACTIVE 的预占。
func (s *ReservationService) GetActiveReservationsByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetActiveReservationsByOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	reservations, err := s.reservations.FindByOrderAndStatus(ctx, orderID, domain.StatusActive)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return reservations, nil
}

// GetActiveReservationsByProduct 返回商品当前所有 ACTIVE 预占。
func (s *ReservationService) GetActiveReservationsByProduct(ctx context.Context, productID string) ([]*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetActiveReservationsByProduct", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	reservations, err := s.reservations.FindByProductAndStatus(ctx, productID, domain.StatusActive)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return reservations, nil
}
