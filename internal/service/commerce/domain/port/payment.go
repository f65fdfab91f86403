// internal/service/commerce/domain/port/payment.go
package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// CaptureResult 是一次成功支付捕获的凭据。
type CaptureResult struct {
	TransactionID string `json:"transactionId"`
}

// PaymentService 是支付服务的出站端口。
// 支付处理本身是外部系统的职责，这里只发起捕获与退款。
type PaymentService interface {
	// Capture 对订单金额发起捕获。被拒绝时返回 ErrPaymentDeclined。
	Capture(ctx context.Context, orderID string, amount decimal.Decimal) (*CaptureResult, error)

	// Refund 按捕获凭据原路退款。
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
}
