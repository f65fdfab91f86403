package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// PersistOrderHandler 把订单落库。
// 仓储实现保证订单头、商品行和首条轨迹记录在同一事务里写入。
type PersistOrderHandler struct {
	NextHandler
}

func (h *PersistOrderHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.PersistOrder")
	defer span.End()

	fmt.Println("【Saga】=> 步骤 5: 订单落库...")

	if err := checkoutCtx.Orders.Create(ctx, checkoutCtx.Order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to persist order")
		return err
	}

	span.AddEvent("Order persisted with pending state")
	return h.executeNext(checkoutCtx)
}
