package saga

import (
	"context"
	"fmt"

	"atelier/internal/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ConfirmStockHandler 把购物车每一行的预留转为实际扣减。
// 任何一行失败即终止，已确认的行通过补偿恢复为预留。
type ConfirmStockHandler struct {
	NextHandler
}

func (h *ConfirmStockHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.ConfirmStock")
	defer span.End()

	fmt.Println("【Saga】=> 步骤 1: 确认库存扣减...")
	span.SetAttributes(attribute.Int("lines", len(checkoutCtx.Cart.Items)))

	for _, item := range checkoutCtx.Cart.Items {
		sku, qty := item.SKU, item.Quantity

		if err := checkoutCtx.Ledger.Confirm(ctx, sku, qty); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Stock confirmation failed")
			return err
		}

		// 每确认一行就注册一条补偿，后续任何步骤失败都能恢复到确认前的状态。
		checkoutCtx.AddCompensation(func(compCtx context.Context) {
			compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.ReinstateStock")
			defer compSpan.End()
			compSpan.SetAttributes(attribute.String("sku", sku), attribute.Int("quantity", qty))

			// 补偿失败意味着库存数字已经不准，需要人工介入。
			if err := checkoutCtx.Ledger.Reinstate(compCtx, sku, qty); err != nil {
				compSpan.RecordError(err)
				logger.Ctx(compCtx).Error().Err(err).
					Str("orderId", checkoutCtx.OrderID).
					Str("sku", sku).
					Int("quantity", qty).
					Msg("CRITICAL: failed to reinstate confirmed stock during compensation")
			}
		})
	}

	span.AddEvent("All cart lines confirmed")
	return h.executeNext(checkoutCtx)
}
