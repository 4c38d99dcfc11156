// internal/service/inventory/infrastructure/product_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"nexus-inventory/internal/service/inventory/domain"
)

// GormProductRepository 是库存账本的 GORM 实现。
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel
	err := conn(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrProductNotFound, "product %s", id)
		}
		return nil, errors.Wrap(classify(err), "query product")
	}
	return ToDomainProduct(&model), nil
}

func (r *GormProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if p.Stock < 0 {
		return errors.Errorf("product %s stock must not be negative", p.ID)
	}
	model := &ProductModel{
		ID:      p.ID,
		Name:    p.Name,
		Stock:   p.Stock,
		Version: p.Version,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		return errors.Wrap(classify(err), "insert product")
	}
	return nil
}

func (r *GormProductRepository) BumpVersion(ctx context.Context, id string, expectedVersion int64) (bool, error) {
	result := conn(ctx, r.db).Model(&ProductModel{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		UpdateColumns(map[string]interface{}{
			"version":    gorm.Expr("version + ?", 1),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, errors.Wrap(classify(result.Error), "bump product version")
	}
	return result.RowsAffected == 1, nil
}

// DecrementStock 的 WHERE 条件同时带上 version 和 stock >= quantity，
// 即使调用方的检查被绕过，数据库层面也不会把库存扣成负数。
func (r *GormProductRepository) DecrementStock(ctx context.Context, id string, quantity, expectedVersion int64) (bool, error) {
	result := conn(ctx, r.db).Model(&ProductModel{}).
		Where("id = ? AND version = ? AND stock >= ?", id, expectedVersion, quantity).
		UpdateColumns(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", quantity),
			"version":    gorm.Expr("version + ?", 1),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, errors.Wrap(classify(result.Error), "decrement product stock")
	}
	return result.RowsAffected == 1, nil
}
