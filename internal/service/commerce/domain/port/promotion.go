// internal/service/commerce/domain/port/promotion.go
package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// PromoResult 是优惠码校验通过后的折扣结果。
type PromoResult struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// PromotionService 是营销服务的出站端口。
type PromotionService interface {
	// Validate 校验优惠码对给定小计是否可用，可用时返回折扣金额。
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*PromoResult, error)

	// RecordUsage 在订单创建成功后登记一次优惠码核销。
	RecordUsage(ctx context.Context, code, orderID string) error
}
