// internal/service/commerce/domain/port/shipping.go
package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteRequest 是一次运费询价的输入。
type QuoteRequest struct {
	Subtotal    decimal.Decimal
	ItemCount   int
	Destination string
}

// ShippingQuoter 是运费计算的出站端口。
// 实现可以是本地规则引擎，也可以是外部物流服务。
type ShippingQuoter interface {
	Quote(ctx context.Context, req QuoteRequest) (decimal.Decimal, error)
}
