package saga

import (
	"fmt"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/commerce/domain/port"

	"go.opentelemetry.io/otel/attribute"
)

// ShippingQuoteHandler 询价运费。
// 报价失败不终止结算，回落到固定的默认运费。
type ShippingQuoteHandler struct {
	NextHandler
}

func (h *ShippingQuoteHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.QuoteShipping")
	defer span.End()

	fmt.Println("【Saga】=> 步骤 2: 计算运费...")

	cost, err := checkoutCtx.Quoter.Quote(ctx, port.QuoteRequest{
		Subtotal:    checkoutCtx.Cart.Subtotal(),
		ItemCount:   checkoutCtx.Cart.ItemCount(),
		Destination: checkoutCtx.ShippingAddress,
	})
	if err != nil {
		span.RecordError(err)
		span.AddEvent("quote failed, falling back to default shipping cost")
		logger.Ctx(ctx).Warn().Err(err).
			Str("orderId", checkoutCtx.OrderID).
			Str("default", checkoutCtx.DefaultShippingCost.String()).
			Msg("Shipping quote failed, using default cost")
		cost = checkoutCtx.DefaultShippingCost
	}

	checkoutCtx.ShippingCost = cost
	span.SetAttributes(attribute.String("shipping.cost", cost.String()))

	return h.executeNext(checkoutCtx)
}
