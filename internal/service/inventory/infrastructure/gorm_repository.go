// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"nexus-inventory/internal/service/inventory/domain"
)

// GormReservationRepository 是 ReservationRepository 的 GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository 创建一个新的 GORM 仓储实例
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) CreateBatch(ctx context.Context, reservations []*domain.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	models := make([]*StockReservationModel, len(reservations))
	for i, res := range reservations {
		models[i] = FromDomainReservation(res)
	}
	if err := conn(ctx, r.db).Create(&models).Error; err != nil {
		return errors.Wrap(classify(err), "insert reservations")
	}
	return nil
}

func (r *GormReservationRepository) FindByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	return r.find(ctx, "order_id = ?", orderID)
}

func (r *GormReservationRepository) FindByOrderAndStatus(ctx context.Context, orderID string, status domain.ReservationStatus) ([]*domain.Reservation, error) {
	return r.find(ctx, "order_id = ? AND status = ?", orderID, string(status))
}

func (r *GormReservationRepository) FindByProductAndStatus(ctx context.Context, productID string, status domain.ReservationStatus) ([]*domain.Reservation, error) {
	return r.find(ctx, "product_id = ? AND status = ?", productID, string(status))
}

func (r *GormReservationRepository) FindUncommittedConfirmed(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	var models []*StockReservationModel
	err := conn(ctx, r.db).
		Where("order_id = ? AND status = ? AND committed_at IS NULL", orderID, string(domain.StatusConfirmed)).
		Order("product_id, id").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(classify(err), "query confirmed reservations")
	}
	return toDomainReservations(models), nil
}

func (r *GormReservationRepository) find(ctx context.Context, query string, args ...interface{}) ([]*domain.Reservation, error) {
	var models []*StockReservationModel
	if err := conn(ctx, r.db).Where(query, args...).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(classify(err), "query reservations")
	}
	return toDomainReservations(models), nil
}

func (r *GormReservationRepository) SumActiveQuantity(ctx context.Context, productID string) (int64, error) {
	var total sql.NullInt64
	row := conn(ctx, r.db).Model(&StockReservationModel{}).
		Select("COALESCE(SUM(reserved_quantity), 0)").
		Where("product_id = ? AND status = ?", productID, string(domain.StatusActive)).
		Row()
	if err := row.Scan(&total); err != nil {
		return 0, errors.Wrap(classify(err), "sum active reservations")
	}
	return total.Int64, nil
}

// TransitionStatus 使用 "WHERE id = ? AND version = ? AND status = ?" 做条件更新，
// RowsAffected 为 0 说明版本已变化，不会覆盖别人的写入。
func (r *GormReservationRepository) TransitionStatus(ctx context.Context, res *domain.Reservation, from domain.ReservationStatus) (bool, error) {
	result := conn(ctx, r.db).Model(&StockReservationModel{}).
		Where("id = ? AND version = ? AND status = ?", res.ID, res.Version, string(from)).
		UpdateColumns(map[string]interface{}{
			"status":     string(res.Status),
			"version":    gorm.Expr("version + ?", 1),
			"updated_at": res.UpdatedAt,
		})
	if result.Error != nil {
		return false, errors.Wrap(classify(result.Error), "update reservation status")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	res.Version++
	return true, nil
}

func (r *GormReservationRepository) MarkCommitted(ctx context.Context, res *domain.Reservation) (bool, error) {
	if res.CommittedAt == nil {
		return false, errors.Errorf("reservation %s has no commit time", res.ID)
	}
	result := conn(ctx, r.db).Model(&StockReservationModel{}).
		Where("id = ? AND version = ? AND committed_at IS NULL", res.ID, res.Version).
		UpdateColumns(map[string]interface{}{
			"committed_at": *res.CommittedAt,
			"version":      gorm.Expr("version + ?", 1),
			"updated_at":   res.UpdatedAt,
		})
	if result.Error != nil {
		return false, errors.Wrap(classify(result.Error), "mark reservation committed")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	res.Version++
	return true, nil
}

// ExpireActiveBefore 是一条集合更新，不先查再逐条保存。
func (r *GormReservationRepository) ExpireActiveBefore(ctx context.Context, now time.Time) (int64, error) {
	result := conn(ctx, r.db).Model(&StockReservationModel{}).
		Where("status = ? AND expires_at < ?", string(domain.StatusActive), now).
		UpdateColumns(map[string]interface{}{
			"status":     string(domain.StatusExpired),
			"version":    gorm.Expr("version + ?", 1),
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, errors.Wrap(classify(result.Error), "expire reservations")
	}
	return result.RowsAffected, nil
}
