// internal/service/notification/consumer.go
package notification

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/commerce/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OrderEventConsumer 是一个驱动适配器，监听订单事件并向买家发送通知。
// 真正的邮件/短信投递由外部渠道完成，这里负责消费、组装文案与记录。
type OrderEventConsumer struct {
	reader         *kafka.Reader
	failureHandler *mq.FailureHandler
	tracer         trace.Tracer

	wg sync.WaitGroup
}

func NewOrderEventConsumer(reader *kafka.Reader, failureHandler *mq.FailureHandler, tracer trace.Tracer) *OrderEventConsumer {
	return &OrderEventConsumer{
		reader:         reader,
		failureHandler: failureHandler,
		tracer:         tracer,
	}
}

// Start 开始监听订单事件主题。这是一个长期运行的方法。
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Printf("✅ Notification consumer started for topic '%s'.", c.reader.Config().Topic)
		for {
			// 用 FetchMessage 而不是 ReadMessage，以便自行控制提交时机。
			// Reader 被 Close 后 FetchMessage 返回 io.EOF。
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					logger.Ctx(ctx).Info().Msg("🛑 Notification consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Printf("ERROR: could not read message: %v. Retrying...", err)
				time.Sleep(1 * time.Second)
				continue
			}

			propagator := otel.GetTextMapPropagator()
			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			newCtx := propagator.Extract(ctx, &headerCarrier)

			if processingErr := c.processMessage(newCtx, msg); processingErr != nil {
				// 处理失败的消息移交死信主题，不阻塞分区
				c.failureHandler.Handle(newCtx, msg, processingErr)
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (c *OrderEventConsumer) Stop(ctx context.Context) {
	c.reader.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Printf("✅ Notification consumer stopped.")
}

// processMessage 反序列化事件信封并按类型分发。
func (c *OrderEventConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	spanOpts := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	}
	ctx, span := c.tracer.Start(ctx, "notification.ProcessOrderEvent", spanOpts...)
	defer span.End()

	var envelope domain.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "unmarshal event envelope")
	}
	span.SetAttributes(attribute.String("event.type", envelope.Type))

	switch envelope.Type {
	case domain.EventTypeOrderPlaced:
		var event domain.OrderPlaced
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "unmarshal order.placed payload")
		}
		return c.notifyOrderPlaced(ctx, &event)

	case domain.EventTypeOrderStatusChanged:
		var event domain.OrderStatusChanged
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "unmarshal order.status_changed payload")
		}
		return c.notifyStatusChanged(ctx, &event)

	default:
		// 未知类型多半来自新版本生产者，跳过而不是送死信
		logger.Ctx(ctx).Warn().Str("type", envelope.Type).Msg("Skipping unknown order event type")
		return nil
	}
}

func (c *OrderEventConsumer) notifyOrderPlaced(ctx context.Context, event *domain.OrderPlaced) error {
	c.dispatch(ctx, event.ShopperID, "Order confirmed",
		"Thanks for your order "+event.OrderID+"! We are getting it ready.")
	return nil
}

func (c *OrderEventConsumer) notifyStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	switch event.ToStatus {
	case domain.StatusShipped:
		body := "Your order " + event.OrderID + " is on its way."
		if event.TrackingNumber != "" {
			body += " Tracking number: " + event.TrackingNumber
		}
		c.dispatch(ctx, event.ShopperID, "Order shipped", body)
	case domain.StatusDelivered:
		c.dispatch(ctx, event.ShopperID, "Order delivered",
			"Your order "+event.OrderID+" has been delivered. Enjoy!")
	case domain.StatusCancelled:
		c.dispatch(ctx, event.ShopperID, "Order cancelled",
			"Your order "+event.OrderID+" has been cancelled.")
	case domain.StatusRefunded:
		c.dispatch(ctx, event.ShopperID, "Refund issued",
			"The refund for order "+event.OrderID+" is on the way back to you.")
	default:
		// 中间状态（confirmed/processing/returned）不打扰买家
	}
	return nil
}

// dispatch 把通知交给投递渠道。当前渠道是结构化日志。
func (c *OrderEventConsumer) dispatch(ctx context.Context, shopperID, subject, body string) {
	trace.SpanFromContext(ctx).AddEvent("Notification dispatched")
	logger.Ctx(ctx).Info().
		Str("shopperId", shopperID).
		Str("subject", subject).
		Str("body", body).
		Msg("Notification sent")
}
