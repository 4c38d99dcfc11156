package port

import (
	"context"

	"nexus-inventory/internal/service/inventory/domain"
)

// LinePolicy 是订单行准入策略的出站端口（例如单品限购）。
type LinePolicy interface {
	// Allow 返回 false 表示该订单行被策略拒绝。
	Allow(ctx context.Context, orderID string, line domain.OrderLine) (bool, error)
}

// AllowAll 是默认策略，不做任何限制。
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string, domain.OrderLine) (bool, error) {
	return true, nil
}
