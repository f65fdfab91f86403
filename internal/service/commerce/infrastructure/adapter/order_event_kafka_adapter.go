package adapter

import (
	"context"
	"encoding/json"
	"time"

	"atelier/internal/pkg/mq"
	"atelier/internal/service/commerce/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// OrderEventKafkaAdapter 是 port.OrderEventPublisher 接口的 Kafka 实现。
// 所有事件按买家 ID 做 Key，同一买家的事件落在同一分区、保持有序。
type OrderEventKafkaAdapter struct {
	writer *kafka.Writer
}

// NewOrderEventKafkaAdapter 创建一个新的订单事件生产者适配器。
func NewOrderEventKafkaAdapter(writer *kafka.Writer) *OrderEventKafkaAdapter {
	return &OrderEventKafkaAdapter{writer: writer}
}

func (a *OrderEventKafkaAdapter) publish(ctx context.Context, key string, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s payload", eventType)
	}
	envelope, err := json.Marshal(domain.EventEnvelope{
		Type:       eventType,
		OccurredAt: time.Now(),
		Payload:    data,
	})
	if err != nil {
		return errors.Wrapf(err, "marshal %s envelope", eventType)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(key), envelope)
}

// OrderPlaced 发布下单成功事件。
func (a *OrderEventKafkaAdapter) OrderPlaced(ctx context.Context, order *domain.Order) error {
	return a.publish(ctx, order.ShopperID, domain.EventTypeOrderPlaced, domain.OrderPlaced{
		EventID:   uuid.New().String(),
		OrderID:   order.ID,
		ShopperID: order.ShopperID,
		Total:     order.Total.String(),
		ItemCount: len(order.Items),
	})
}

// OrderStatusChanged 发布状态流转事件。
func (a *OrderEventKafkaAdapter) OrderStatusChanged(ctx context.Context, order *domain.Order, from domain.Status, actor string) error {
	return a.publish(ctx, order.ShopperID, domain.EventTypeOrderStatusChanged, domain.OrderStatusChanged{
		EventID:        uuid.New().String(),
		OrderID:        order.ID,
		ShopperID:      order.ShopperID,
		FromStatus:     from,
		ToStatus:       order.Status,
		TrackingNumber: order.TrackingNumber,
		Actor:          actor,
	})
}
