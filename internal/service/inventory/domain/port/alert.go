package port

import (
	"context"

	"nexus-inventory/internal/service/inventory/domain"
)

// AlertPublisher 是库存告警的出站端口。
type AlertPublisher interface {
	// PublishReconciliationRequired 通知订单流程该订单需要人工对账和补偿取消。
	PublishReconciliationRequired(ctx context.Context, event domain.ReconciliationRequired) error
}
