// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nexus_inventory"

// InventoryMetrics 汇总了预占引擎的核心指标。
type InventoryMetrics struct {
	Reservations        *prometheus.CounterVec // 按 operation/result 统计的预占操作
	WriteConflicts      *prometheus.CounterVec // 乐观锁冲突次数，按 operation 区分
	ExpiredReservations prometheus.Counter
	StockDecremented    prometheus.Counter
	InvariantViolations prometheus.Counter
	OperationLatency    *prometheus.HistogramVec
}

// NewInventoryMetrics 在给定的 Registerer 上注册指标。
// 测试中传入 prometheus.NewRegistry()。
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	m := &InventoryMetrics{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_operations_total",
			Help:      "Reservation operations by operation and result.",
		}, []string{"operation", "result"}),
		WriteConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_conflicts_total",
			Help:      "Optimistic lock conflicts by operation.",
		}, []string{"operation"}),
		ExpiredReservations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_reservations_total",
			Help:      "Reservations transitioned to EXPIRED by the sweeper.",
		}),
		StockDecremented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_decremented_units_total",
			Help:      "Units removed from product stock by fulfillment.",
		}),
		InvariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Confirmed reservations that could not be honored at decrement time.",
		}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(
		m.Reservations,
		m.WriteConflicts,
		m.ExpiredReservations,
		m.StockDecremented,
		m.InvariantViolations,
		m.OperationLatency,
	)
	return m
}

// Handler 暴露 /metrics。
func Handler() http.Handler {
	return promhttp.Handler()
}
