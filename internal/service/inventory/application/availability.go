// internal/service/inventory/application/availability.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"nexus-inventory/internal/service/inventory/domain"
)

// AvailabilityService 计算商品的可售库存: available = max(0, stock - Σ ACTIVE 预占)。
type AvailabilityService struct {
	tx           domain.Transactor
	products     domain.ProductRepository
	reservations domain.ReservationRepository
	tracer       trace.Tracer
}

func NewAvailabilityService(tx domain.Transactor, products domain.ProductRepository, reservations domain.ReservationRepository, tracer trace.Tracer) *AvailabilityService {
	return &AvailabilityService{tx: tx, products: products, reservations: reservations, tracer: tracer}
}

// GetAvailability 在一个独立的只读事务中计算可售库存。
func (s *AvailabilityService) GetAvailability(ctx context.Context, productID string) (domain.Availability, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetAvailability", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	var view domain.Availability
	err := s.tx.InNewTx(ctx, func(ctx context.Context) error {
		_, a, err := s.compute(ctx, productID)
		view = a
		return err
	})
	if err != nil {
		recordError(span, err)
		return domain.Availability{}, err
	}
	return view, nil
}

// compute 在调用方的事务中计算，同时返回读到的商品，调用方用它的版本号做乐观锁。
func (s *AvailabilityService) compute(ctx context.Context, productID string) (*domain.Product, domain.Availability, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, domain.Availability{}, err
	}
	reserved, err := s.reservations.SumActiveQuantity(ctx, productID)
	if err != nil {
		return nil, domain.Availability{}, err
	}
	return product, domain.NewAvailability(productID, product.Stock, reserved), nil
}
