// internal/service/inventory/domain/errors.go
package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// 错误分类。调用方统一使用 errors.Is 判断，具体错误会被 Wrap 上下文后向上传递。
var (
	ErrNotFound            = errors.New("not found")
	ErrReservationNotFound = errors.WithMessage(ErrNotFound, "reservation")
	ErrProductNotFound     = errors.WithMessage(ErrNotFound, "product")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	// ErrInvalidLine 订单号或商品号缺失等请求格式错误
	ErrInvalidLine  = errors.New("invalid order line")
	ErrLineRejected = errors.New("order line rejected by policy")

	// ErrWriteConflict 乐观锁冲突（版本号不匹配、死锁、锁等待超时），属于瞬时错误
	ErrWriteConflict = errors.New("write conflict")

	ErrIllegalState            = errors.New("illegal state")
	ErrInvalidReservationState = errors.WithMessage(ErrIllegalState, "reservation not active")
	ErrNothingToDecrement      = errors.WithMessage(ErrIllegalState, "no confirmed reservations to decrement")

	// ErrInvariantViolation 确认后的预占在扣减时库存不足，说明上游不变量被破坏，绝不自动重试
	ErrInvariantViolation = errors.New("stock invariant violation")
)

// InsufficientStockError 携带请求数量和可用数量，调用方可以据此提示用户减少购买数量。
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
