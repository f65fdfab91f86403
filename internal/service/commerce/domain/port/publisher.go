// internal/service/commerce/domain/port/publisher.go
package port

import (
	"context"

	"atelier/internal/service/commerce/domain"
)

// OrderEventPublisher 是订单事件的出站端口。
// 发布失败不应该使业务操作失败：订单状态以数据库为准，事件是尽力投递。
type OrderEventPublisher interface {
	OrderPlaced(ctx context.Context, order *domain.Order) error
	OrderStatusChanged(ctx context.Context, order *domain.Order, from domain.Status, actor string) error
}
