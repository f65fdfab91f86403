package saga

import (
	"context"
	"fmt"

	"atelier/internal/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PaymentCaptureHandler 向支付服务发起扣款。
// 请求携带了已完成支付的流水号时跳过扣款，直接沿用该流水号。
type PaymentCaptureHandler struct {
	NextHandler
}

func (h *PaymentCaptureHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CapturePayment")
	defer span.End()

	fmt.Println("【Saga】=> 步骤 4: 支付扣款...")

	order := checkoutCtx.Order

	if checkoutCtx.PrepaidTransactionID != "" {
		order.TransactionID = checkoutCtx.PrepaidTransactionID
		span.AddEvent("payment already captured upstream, skipping")
		return h.executeNext(checkoutCtx)
	}

	result, err := checkoutCtx.Payment.Capture(ctx, order.ID, order.Total)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Payment capture failed")
		return err
	}

	order.TransactionID = result.TransactionID
	span.SetAttributes(attribute.String("payment.transaction_id", result.TransactionID))

	// 钱已经收了，之后任何步骤失败都必须退回去。
	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.RefundPayment")
		defer compSpan.End()

		if err := checkoutCtx.Payment.Refund(compCtx, result.TransactionID, order.Total); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).
				Str("orderId", order.ID).
				Str("transactionId", result.TransactionID).
				Msg("CRITICAL: failed to refund captured payment during compensation")
		}
	})

	return h.executeNext(checkoutCtx)
}
