// internal/pkg/mq/failure.go
package mq

import (
	"context"

	"atelier/internal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// FailureHandler 把处理失败的消息移交到死信 Topic，
// 保留原始 Key/Value 并附加失败原因，供离线排查和重放。
type FailureHandler struct {
	dltWriter *kafka.Writer
}

func NewFailureHandler(dltWriter *kafka.Writer) *FailureHandler {
	return &FailureHandler{dltWriter: dltWriter}
}

// Handle 将失败消息发往死信 Topic。死信发送本身失败时只能记日志，
// 消费方随后照常提交 offset，避免坏消息阻塞整个分区。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	logger.Ctx(ctx).Error().
		Err(cause).
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Msg("Message processing failed, forwarding to dead letter topic")

	dltMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers, kafka.Header{
			Key:   "x-failure-reason",
			Value: []byte(cause.Error()),
		}),
	}
	if err := h.dltWriter.WriteMessages(ctx, dltMsg); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("key", string(msg.Key)).
			Msg("CRITICAL: failed to forward message to dead letter topic")
	}
}
