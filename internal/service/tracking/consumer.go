// internal/service/tracking/consumer.go
package tracking

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
	"go.opentelemetry.io/otel/trace"
)

// StatusPush 是推送给追踪页的消息体。
type StatusPush struct {
	OrderID        string        `json:"orderId"`
	FromStatus     domain.Status `json:"fromStatus"`
	ToStatus       domain.Status `json:"toStatus"`
	TrackingNumber string        `json:"trackingNumber,omitempty"`
	OccurredAt     time.Time     `json:"occurredAt"`
}

// StatusEventConsumer 消费订单事件，把状态变更实时推给在线的买家。
// 推送是尽力而为：买家不在线就丢弃，追踪页打开时会拉全量轨迹。
type StatusEventConsumer struct {
	reader *kafka.Reader
	hub    *Hub
	tracer trace.Tracer

	wg sync.WaitGroup
}

func NewStatusEventConsumer(reader *kafka.Reader, hub *Hub, tracer trace.Tracer) *StatusEventConsumer {
	return &StatusEventConsumer{reader: reader, hub: hub, tracer: tracer}
}

// Start 开始监听订单事件主题。这是一个长期运行的方法。
func (c *StatusEventConsumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Printf("✅ Tracking consumer started for topic '%s'.", c.reader.Config().Topic)
		for {
			// Reader 被 Close 后 ReadMessage 返回 io.EOF。
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					logger.Ctx(ctx).Info().Msg("🛑 Tracking consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Printf("ERROR: could not read message: %v. Retrying...", err)
				time.Sleep(1 * time.Second)
				continue
			}

			propagator := otel.GetTextMapPropagator()
			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			c.processMessage(propagator.Extract(ctx, &headerCarrier), msg)
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (c *StatusEventConsumer) Stop(ctx context.Context) {
	c.reader.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Printf("✅ Tracking consumer stopped.")
}

// processMessage 过滤出状态变更事件并推送。坏消息记日志后跳过。
func (c *StatusEventConsumer) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, span := c.tracer.Start(ctx, "tracking.PushStatusChange",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	var envelope domain.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Msg("Skipping malformed order event")
		return
	}
	if envelope.Type != domain.EventTypeOrderStatusChanged {
		return
	}

	var event domain.OrderStatusChanged
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Msg("Skipping malformed status change payload")
		return
	}

	payload, err := json.Marshal(StatusPush{
		OrderID:        event.OrderID,
		FromStatus:     event.FromStatus,
		ToStatus:       event.ToStatus,
		TrackingNumber: event.TrackingNumber,
		OccurredAt:     envelope.OccurredAt,
	})
	if err != nil {
		span.RecordError(err)
		return
	}

	span.SetAttributes(
		attribute.String("order.id", event.OrderID),
		attribute.String("order.status", string(event.ToStatus)),
	)
	c.hub.Push(ctx, event.ShopperID, payload)
}
