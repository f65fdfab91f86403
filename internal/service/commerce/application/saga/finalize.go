package saga

import (
	"fmt"

	"atelier/internal/pkg/logger"
)

// FinalizeCheckoutHandler 做订单落库之后的收尾：
// 核销优惠码、删除已消费的预留、清空购物车、广播订单事件。
// 订单此刻已经成立，这里的任何失败只记日志，不再回滚。
type FinalizeCheckoutHandler struct {
	NextHandler
}

func (h *FinalizeCheckoutHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.FinalizeCheckout")
	defer span.End()

	fmt.Println("【Saga】=> 步骤 6: 结算收尾...")

	order := checkoutCtx.Order

	if order.PromoCode != "" {
		if err := checkoutCtx.Promotions.RecordUsage(ctx, order.PromoCode, order.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("orderId", order.ID).Str("promoCode", order.PromoCode).Msg("Failed to record promo usage")
		}
	}

	for _, item := range order.Items {
		if err := checkoutCtx.Holds.Delete(ctx, order.ShopperID, item.SKU); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("orderId", order.ID).Str("sku", item.SKU).Msg("Failed to delete consumed reservation")
		}
	}

	if err := checkoutCtx.Carts.Delete(ctx, order.ShopperID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("orderId", order.ID).Str("shopperId", order.ShopperID).Msg("Failed to clear cart after checkout")
	}

	if err := checkoutCtx.Events.OrderPlaced(ctx, order); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("orderId", order.ID).Msg("Failed to publish order placed event")
	}

	span.AddEvent("Checkout finalized")
	return h.executeNext(checkoutCtx)
}
