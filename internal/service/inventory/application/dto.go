// internal/service/inventory/application/dto.go
package application

import (
	"time"

	"nexus-inventory/internal/service/inventory/domain"
)

// CreateReservationsRequest 是 POST /reservations 的请求体。
type CreateReservationsRequest struct {
	OrderID string        `json:"orderId"`
	Lines   []LineRequest `json:"lines"`
}

type LineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// ToOrderLines 转换为领域层的订单行。
func (r *CreateReservationsRequest) ToOrderLines() []domain.OrderLine {
	lines := make([]domain.OrderLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return lines
}

// ReservationView 是返回给调用方的预占视图。
type ReservationView struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"orderId"`
	ProductID   string     `json:"productId"`
	Quantity    int64      `json:"reservedQuantity"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	CommittedAt *time.Time `json:"committedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func ToReservationViews(reservations []*domain.Reservation) []ReservationView {
	views := make([]ReservationView, 0, len(reservations))
	for _, r := range reservations {
		views = append(views, ReservationView{
			ID:          r.ID,
			OrderID:     r.OrderID,
			ProductID:   r.ProductID,
			Quantity:    r.ReservedQuantity,
			Status:      string(r.Status),
			ExpiresAt:   r.ExpiresAt,
			CommittedAt: r.CommittedAt,
			CreatedAt:   r.CreatedAt,
		})
	}
	return views
}

// DecrementSummary 汇总一次扣减中每个商品扣掉的数量。
type DecrementSummary struct {
	OrderID    string            `json:"orderId"`
	Items      []DecrementedItem `json:"items"`
	TotalUnits int64             `json:"totalUnits"`
}

type DecrementedItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func (s *DecrementSummary) add(productID string, quantity int64) {
	s.TotalUnits += quantity
	if n := len(s.Items); n > 0 && s.Items[n-1].ProductID == productID {
		s.Items[n-1].Quantity += quantity
		return
	}
	s.Items = append(s.Items, DecrementedItem{ProductID: productID, Quantity: quantity})
}
