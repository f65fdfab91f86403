// internal/service/commerce/domain/event.go
package domain

import (
	"encoding/json"
	"time"
)

// 订单事件类型，发布到 commerce.order-events。
const (
	EventTypeOrderPlaced        = "order.placed"
	EventTypeOrderStatusChanged = "order.status_changed"
)

// EventEnvelope 是订单事件的统一信封。
// 消费方先按 Type 分发，再解码 Payload。
type EventEnvelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// OrderPlaced 在结算成功、订单落库之后发布。
type OrderPlaced struct {
	EventID   string `json:"eventId"`
	OrderID   string `json:"orderId"`
	ShopperID string `json:"shopperId"`
	Total     string `json:"total"`
	ItemCount int    `json:"itemCount"`
}

// OrderStatusChanged 在每次成功的状态流转之后发布。
type OrderStatusChanged struct {
	EventID        string `json:"eventId"`
	OrderID        string `json:"orderId"`
	ShopperID      string `json:"shopperId"`
	FromStatus     Status `json:"fromStatus"`
	ToStatus       Status `json:"toStatus"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	Actor          string `json:"actor,omitempty"`
}
