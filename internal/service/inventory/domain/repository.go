// internal/service/inventory/domain/repository.go
package domain

import (
	"context"
	"time"
)

// ReservationRepository 定义了预占记录的持久化接口。
// 所有方法都会优先使用 ctx 中由 Transactor 开启的事务。
type ReservationRepository interface {
	// CreateBatch 在同一事务中插入一组预占。
	CreateBatch(ctx context.Context, reservations []*Reservation) error

	FindByOrder(ctx context.Context, orderID string) ([]*Reservation, error)
	FindByOrderAndStatus(ctx context.Context, orderID string, status ReservationStatus) ([]*Reservation, error)
	FindByProductAndStatus(ctx context.Context, productID string, status ReservationStatus) ([]*Reservation, error)

	// FindUncommittedConfirmed 返回订单下已确认但尚未扣减库存的预占。
	FindUncommittedConfirmed(ctx context.Context, orderID string) ([]*Reservation, error)

	// SumActiveQuantity 统计商品所有 ACTIVE 预占的数量之和。
	SumActiveQuantity(ctx context.Context, productID string) (int64, error)

	// TransitionStatus 基于版本号和当前状态做条件更新，返回是否更新成功。
	// 返回 false 表示记录已被并发修改，由调用方决定如何处理。
	TransitionStatus(ctx context.Context, r *Reservation, from ReservationStatus) (bool, error)

	// MarkCommitted 基于版本号写入 committed_at。
	MarkCommitted(ctx context.Context, r *Reservation) (bool, error)

	// ExpireActiveBefore 一条 UPDATE 把所有 expires_at < now 的 ACTIVE 预占置为 EXPIRED。
	ExpireActiveBefore(ctx context.Context, now time.Time) (int64, error)
}

// ProductRepository 是库存账本的访问接口。
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*Product, error)

	// Create 初始化商品库存（商品目录同步、测试数据准备）。
	Create(ctx context.Context, p *Product) error

	// BumpVersion 在版本号等于 expectedVersion 时加一，用于给"读库存-写预占"加乐观锁。
	BumpVersion(ctx context.Context, id string, expectedVersion int64) (bool, error)

	// DecrementStock 在版本号匹配且库存充足时扣减库存并递增版本号。
	DecrementStock(ctx context.Context, id string, quantity, expectedVersion int64) (bool, error)
}

// Transactor 提供显式的事务边界。
type Transactor interface {
	// InNewTx 总是开启一个新的、独立的事务（不加入 ctx 中已存在的事务），
	// fn 返回错误时回滚，否则提交。
	InNewTx(ctx context.Context, fn func(ctx context.Context) error) error
}
