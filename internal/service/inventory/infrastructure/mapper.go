package infrastructure

import (
	"database/sql"

	"nexus-inventory/internal/service/inventory/domain"
)

// ToDomainReservation 将数据库模型转换为领域模型
func ToDomainReservation(m *StockReservationModel) *domain.Reservation {
	if m == nil {
		return nil
	}
	r := &domain.Reservation{
		ID:               m.ID,
		OrderID:          m.OrderID,
		ProductID:        m.ProductID,
		ReservedQuantity: m.ReservedQuantity,
		Status:           domain.ReservationStatus(m.Status),
		ExpiresAt:        m.ExpiresAt,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.CommittedAt.Valid {
		t := m.CommittedAt.Time
		r.CommittedAt = &t
	}
	return r
}

// FromDomainReservation 将领域模型转换为数据库模型（用于插入）
func FromDomainReservation(r *domain.Reservation) *StockReservationModel {
	if r == nil {
		return nil
	}
	m := &StockReservationModel{
		ID:               r.ID,
		OrderID:          r.OrderID,
		ProductID:        r.ProductID,
		ReservedQuantity: r.ReservedQuantity,
		Status:           string(r.Status),
		ExpiresAt:        r.ExpiresAt,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.CommittedAt != nil {
		m.CommittedAt = sql.NullTime{Time: *r.CommittedAt, Valid: true}
	}
	return m
}

func toDomainReservations(models []*StockReservationModel) []*domain.Reservation {
	out := make([]*domain.Reservation, len(models))
	for i, m := range models {
		out[i] = ToDomainReservation(m)
	}
	return out
}

// ToDomainProduct 将数据库模型转换为领域模型
func ToDomainProduct(m *ProductModel) *domain.Product {
	if m == nil {
		return nil
	}
	return &domain.Product{
		ID:      m.ID,
		Name:    m.Name,
		Stock:   m.Stock,
		Version: m.Version,
	}
}
