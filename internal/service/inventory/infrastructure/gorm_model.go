// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"
)

// ProductModel 对应 products 表。库存账本只读写 stock 和 version 两列。
type ProductModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	Stock     int64  `gorm:"not null;default:0"`
	Version   int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "products"
}

// StockReservationModel 对应 stock_reservations 表。记录永不物理删除。
type StockReservationModel struct {
	ID               string       `gorm:"primaryKey;size:36"`
	OrderID          string       `gorm:"size:64;not null;index:idx_reservation_order"`
	ProductID        string       `gorm:"size:64;not null;index:idx_reservation_product_status,priority:1"`
	ReservedQuantity int64        `gorm:"not null"`
	Status           string       `gorm:"size:16;not null;index:idx_reservation_product_status,priority:2;index:idx_reservation_status_expires,priority:1"`
	ExpiresAt        time.Time    `gorm:"not null;index:idx_reservation_status_expires,priority:2"`
	CommittedAt      sql.NullTime
	Version          int64 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockReservationModel) TableName() string {
	return "stock_reservations"
}
