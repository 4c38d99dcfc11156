package interfaces

import (
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/service/inventory/application"
	"nexus-inventory/internal/service/inventory/infrastructure"
	"nexus-inventory/internal/service/inventory/infrastructure/storetest"
)

type testEngine struct {
	db           *gorm.DB
	metrics      *metrics.InventoryMetrics
	availability *application.AvailabilityService
	reservations *application.ReservationService
	fulfillment  *application.FulfillmentService
	sweeper      *application.ExpirySweeper
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	db := storetest.Open(t)
	m := metrics.NewInventoryMetrics(prometheus.NewRegistry())
	tracer := otel.Tracer("test")
	tx := infrastructure.NewGormTransactor(db, sql.LevelDefault)
	products := infrastructure.NewGormProductRepository(db)
	repo := infrastructure.NewGormReservationRepository(db)
	availability := application.NewAvailabilityService(tx, products, repo, tracer)
	return &testEngine{
		db:           db,
		metrics:      m,
		availability: availability,
		reservations: application.NewReservationService(tx, products, repo, availability, 30*time.Minute, tracer, m),
		fulfillment:  application.NewFulfillmentService(tx, products, repo, tracer, m),
		sweeper:      application.NewExpirySweeper(tx, repo, tracer, m),
	}
}
