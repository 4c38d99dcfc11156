// internal/service/inventory/domain/product.go
package domain

// Product 是商品在库存账本中的视图。商品本身归商品目录服务所有，
// 这里只关心库存数量和用于乐观锁的版本号。
type Product struct {
	ID      string
	Name    string
	Stock   int64
	Version int64
}

// Availability 是某个商品当前可售库存的快照。
type Availability struct {
	ProductID      string `json:"productId"`
	ActualStock    int64  `json:"actualStock"`
	ReservedStock  int64  `json:"reservedStock"`
	AvailableStock int64  `json:"availableStock"`
}

// NewAvailability 按 available = max(0, actual - reserved) 计算可售库存。
func NewAvailability(productID string, actual, reserved int64) Availability {
	available := actual - reserved
	if available < 0 {
		available = 0
	}
	return Availability{
		ProductID:      productID,
		ActualStock:    actual,
		ReservedStock:  reserved,
		AvailableStock: available,
	}
}
