// Package inventory 组装库存预占引擎的仓储和应用服务，供各个进程的 main 复用。
package inventory

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"nexus-inventory/internal/pkg/bootstrap"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/service/inventory/application"
	"nexus-inventory/internal/service/inventory/domain/port"
	"nexus-inventory/internal/service/inventory/infrastructure"
	"nexus-inventory/internal/service/inventory/infrastructure/adapter"
)

// Module 持有引擎的全部应用服务。
type Module struct {
	Availability *application.AvailabilityService
	Reservations *application.ReservationService
	Fulfillment  *application.FulfillmentService
	Sweeper      *application.ExpirySweeper
}

// NewModule 基于已打开的数据库构建应用服务。
func NewModule(cfg *bootstrap.Config, db *gorm.DB, tracer trace.Tracer, m *metrics.InventoryMetrics) (*Module, error) {
	isolation, err := infrastructure.ParseIsolation(cfg.Infra.MySQL.Isolation)
	if err != nil {
		return nil, err
	}
	var policy port.LinePolicy = port.AllowAll{}
	if cfg.Reservation.LinePolicy != "" {
		celPolicy, err := adapter.NewCELLinePolicy(cfg.Reservation.LinePolicy)
		if err != nil {
			return nil, errors.Wrap(err, "reservation.line_policy")
		}
		policy = celPolicy
	}

	tx := infrastructure.NewGormTransactor(db, isolation)
	products := infrastructure.NewGormProductRepository(db)
	reservations := infrastructure.NewGormReservationRepository(db)

	availability := application.NewAvailabilityService(tx, products, reservations, tracer)
	return &Module{
		Availability: availability,
		Reservations: application.NewReservationService(tx, products, reservations, availability,
			cfg.Reservation.TTL, tracer, m, application.WithLinePolicy(policy)),
		Fulfillment: application.NewFulfillmentService(tx, products, reservations, tracer, m),
		Sweeper:     application.NewExpirySweeper(tx, reservations, tracer, m),
	}, nil
}
