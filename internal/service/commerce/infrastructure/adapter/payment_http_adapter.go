package adapter

import (
	"context"
	"net/http"

	"atelier/internal/pkg/constants"
	"atelier/internal/pkg/httpclient"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PaymentHTTPAdapter 是 port.PaymentService 接口的 HTTP 实现。
type PaymentHTTPAdapter struct {
	client *httpclient.Client
}

// NewPaymentHTTPAdapter 创建一个新的支付服务适配器。
func NewPaymentHTTPAdapter(client *httpclient.Client) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client}
}

type captureRequest struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

type captureResponse struct {
	TransactionID string `json:"transactionId"`
}

// Capture 发起扣款。支付服务用 402 表示拒付，翻译成 ErrPaymentDeclined。
func (a *PaymentHTTPAdapter) Capture(ctx context.Context, orderID string, amount decimal.Decimal) (*port.CaptureResult, error) {
	var resp captureResponse
	err := a.client.PostJSON(ctx, constants.PaymentService, constants.PaymentCapturePath,
		captureRequest{OrderID: orderID, Amount: amount}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusPaymentRequired {
			return nil, errors.Wrapf(domain.ErrPaymentDeclined, "order %s: %s", orderID, statusErr.Body)
		}
		return nil, err
	}
	return &port.CaptureResult{TransactionID: resp.TransactionID}, nil
}

type refundRequest struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
}

// Refund 按流水号退款。
func (a *PaymentHTTPAdapter) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	return a.client.PostJSON(ctx, constants.PaymentService, constants.PaymentRefundPath,
		refundRequest{TransactionID: transactionID, Amount: amount}, nil)
}
