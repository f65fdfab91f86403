package saga

import (
	"fmt"

	"atelier/internal/service/commerce/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateOrderHandler 用领域工厂把购物车快照组装成订单实体。
// 此时订单只存在于内存里，落库由 PersistOrderHandler 负责。
type CreateOrderHandler struct {
	NextHandler
}

func (h *CreateOrderHandler) Handle(checkoutCtx *CheckoutContext) error {
	_, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CreateOrderEntity")
	defer span.End()

	fmt.Println("【Saga】=> 步骤 3: 组装订单实体...")

	order, err := domain.NewOrder(
		checkoutCtx.OrderID,
		checkoutCtx.ShopperID,
		checkoutCtx.Cart,
		checkoutCtx.ShippingCost,
		checkoutCtx.ShippingAddress,
		checkoutCtx.Notes,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create order entity")
		return err
	}

	checkoutCtx.Order = order
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.Total.String()),
		attribute.Int("order.lines", len(order.Items)),
	)

	return h.executeNext(checkoutCtx)
}
