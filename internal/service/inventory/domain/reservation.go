// internal/service/inventory/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReservationStatus 定义了库存预占的生命周期状态。
// ACTIVE 是唯一的非终态，其余三个状态一旦进入就不能再流转。
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "ACTIVE"    // 已预占，等待支付
	StatusConfirmed ReservationStatus = "CONFIRMED" // 支付成功
	StatusCancelled ReservationStatus = "CANCELLED" // 主动释放（支付失败、订单取消）
	StatusExpired   ReservationStatus = "EXPIRED"   // 超时未处理，被清理任务回收
)

// IsTerminal 判断状态是否为终态。
func (s ReservationStatus) IsTerminal() bool {
	return s != StatusActive
}

// Reservation 是针对单个订单行的限时库存预占。
type Reservation struct {
	ID               string
	OrderID          string
	ProductID        string
	ReservedQuantity int64
	Status           ReservationStatus
	ExpiresAt        time.Time
	// CommittedAt 库存实际扣减的时间，为 nil 表示尚未扣减
	CommittedAt *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewReservation 创建一个 ACTIVE 状态的预占，过期时间为 now + ttl。
func NewReservation(orderID, productID string, quantity int64, now time.Time, ttl time.Duration) (*Reservation, error) {
	if quantity <= 0 {
		return nil, errors.Wrapf(ErrInvalidQuantity, "product %s quantity %d", productID, quantity)
	}
	if orderID == "" || productID == "" {
		return nil, errors.Wrap(ErrInvalidLine, "order id and product id are required")
	}
	return &Reservation{
		ID:               uuid.New().String(),
		OrderID:          orderID,
		ProductID:        productID,
		ReservedQuantity: quantity,
		Status:           StatusActive,
		ExpiresAt:        now.Add(ttl),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Confirm ACTIVE -> CONFIRMED。对非 ACTIVE 的预占确认是错误。
func (r *Reservation) Confirm(now time.Time) error {
	if r.Status != StatusActive {
		return errors.Wrapf(ErrInvalidReservationState, "reservation %s is %s", r.ID, r.Status)
	}
	r.Status = StatusConfirmed
	r.UpdatedAt = now
	return nil
}

// Cancel ACTIVE -> CANCELLED。已处于终态时返回 false，不视为错误。
func (r *Reservation) Cancel(now time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now
	return true
}

// MarkCommitted 记录库存已扣减，只有 CONFIRMED 且未扣减过的预占可以标记。
func (r *Reservation) MarkCommitted(now time.Time) error {
	if r.Status != StatusConfirmed {
		return errors.Wrapf(ErrIllegalState, "reservation %s is %s, not CONFIRMED", r.ID, r.Status)
	}
	if r.CommittedAt != nil {
		return errors.Wrapf(ErrIllegalState, "reservation %s already committed", r.ID)
	}
	r.CommittedAt = &now
	r.UpdatedAt = now
	return nil
}

// OrderLine 是创建预占时的一行请求。
type OrderLine struct {
	ProductID string
	Quantity  int64
}
