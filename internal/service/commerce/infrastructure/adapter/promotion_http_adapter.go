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

// PromotionHTTPAdapter 是 port.PromotionService 接口的 HTTP 实现。
type PromotionHTTPAdapter struct {
	client *httpclient.Client
}

// NewPromotionHTTPAdapter 创建一个新的促销服务适配器。
func NewPromotionHTTPAdapter(client *httpclient.Client) *PromotionHTTPAdapter {
	return &PromotionHTTPAdapter{client: client}
}

type validatePromoRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type validatePromoResponse struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// Validate 校验优惠码并取回折扣额。
// 促销服务用 400/404/409 表示码不可用，统一翻译成 ErrPromoRejected。
func (a *PromotionHTTPAdapter) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*port.PromoResult, error) {
	var resp validatePromoResponse
	err := a.client.PostJSON(ctx, constants.PromotionService, constants.PromotionValidatePath,
		validatePromoRequest{Code: code, Subtotal: subtotal}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
				return nil, errors.Wrapf(domain.ErrPromoRejected, "code %s: %s", code, statusErr.Body)
			}
		}
		return nil, err
	}
	return &port.PromoResult{Code: resp.Code, Discount: resp.Discount}, nil
}

type recordUsageRequest struct {
	Code    string `json:"code"`
	OrderID string `json:"orderId"`
}

// RecordUsage 核销一次优惠码使用。
func (a *PromotionHTTPAdapter) RecordUsage(ctx context.Context, code, orderID string) error {
	return a.client.PostJSON(ctx, constants.PromotionService, constants.PromotionRecordUsagePath,
		recordUsageRequest{Code: code, OrderID: orderID}, nil)
}
