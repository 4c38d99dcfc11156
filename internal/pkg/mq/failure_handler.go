// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"nexus-inventory/internal/pkg/logger"
)

// 死信消息头，记录消息的来源位置和失败原因
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
)

// MessageWriter 是 *kafka.Writer 的最小子集，方便在测试中替换。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// FailureHandler 把处理失败的消息转投到死信主题 (<topic>.DLT)。
type FailureHandler struct {
	dltWriter MessageWriter
}

func NewFailureHandler(dltWriter MessageWriter) *FailureHandler {
	return &FailureHandler{dltWriter: dltWriter}
}

// DLTTopic 返回某个主题对应的死信主题名。
func DLTTopic(topic string) string {
	return topic + ".DLT"
}

// Handle 转投死信。转投本身失败时只记录日志，不阻塞消费。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header{}, msg.Headers...),
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
			kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
		),
	}
	if err := h.dltWriter.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("original_topic", msg.Topic).
			Int64("original_offset", msg.Offset).
			Msg("failed to forward message to dead letter topic")
		return
	}
	logger.Ctx(ctx).Warn().Err(cause).
		Str("original_topic", msg.Topic).
		Int64("original_offset", msg.Offset).
		Msg("message forwarded to dead letter topic")
}
