package adapter

import (
	"context"
	"net/http"

	"atelier/internal/pkg/constants"
	"atelier/internal/pkg/httpclient"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"

	"github.com/pkg/errors"
)

// CatalogHTTPAdapter 是 port.CatalogService 接口的 HTTP 实现。
type CatalogHTTPAdapter struct {
	client *httpclient.Client
}

// NewCatalogHTTPAdapter 创建一个新的商品目录适配器。
func NewCatalogHTTPAdapter(client *httpclient.Client) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client}
}

// GetProduct 按 SKU 查询商品信息，目录里没有时返回 ErrSkuNotFound。
func (a *CatalogHTTPAdapter) GetProduct(ctx context.Context, sku string) (*port.ProductInfo, error) {
	var product port.ProductInfo
	err := a.client.GetJSON(ctx, constants.CatalogService, constants.CatalogGetProductPath+sku, nil, &product)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(domain.ErrSkuNotFound, "catalog has no product %s", sku)
		}
		return nil, err
	}
	return &product, nil
}
