package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"nexus-inventory/internal/pkg/mq"
	"nexus-inventory/internal/service/inventory/domain"
)

// AlertKafkaAdapter 实现了 port.AlertPublisher，把对账告警写入 inventory-alerts 主题。
type AlertKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewAlertKafkaAdapter(writer mq.MessageWriter) *AlertKafkaAdapter {
	return &AlertKafkaAdapter{writer: writer}
}

func (a *AlertKafkaAdapter) PublishReconciliationRequired(ctx context.Context, event domain.ReconciliationRequired) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal reconciliation event")
	}
	// 以订单号作为 key，同一订单的告警保持有序
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.OrderID), payload); err != nil {
		return errors.Wrapf(err, "publish reconciliation event for order %s", event.OrderID)
	}
	return nil
}
