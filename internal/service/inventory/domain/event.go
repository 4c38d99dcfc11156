// internal/service/inventory/domain/event.go
package domain

import "time"

// PaymentStatus 是支付服务回传的支付结果。
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentTimedOut  PaymentStatus = "TIMED_OUT"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// PaymentResultEvent 是订单流程转发过来的支付结果事件。
type PaymentResultEvent struct {
	EventID    string        `json:"eventId"`
	OrderID    string        `json:"orderId"`
	Status     PaymentStatus `json:"status"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// ReconciliationRequired 在扣减库存发现不变量被破坏时发布，
// 订单流程收到后必须把订单标记为人工对账，并发起补偿取消。
type ReconciliationRequired struct {
	OrderID    string    `json:"orderId"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detectedAt"`
}
