// internal/service/commerce/domain/port/catalog.go
package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductInfo 是商品目录返回的 SKU 快照。
type ProductInfo struct {
	SKU       string          `json:"sku"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CatalogService 是商品目录服务的出站端口。
// 加购时的商品名称与单价以目录返回为准，不信任客户端。
type CatalogService interface {
	GetProduct(ctx context.Context, sku string) (*ProductInfo, error)
}
