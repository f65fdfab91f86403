// internal/service/commerce/domain/cart.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem 是购物车中的一行商品。单价在加购时刻从商品目录快照，
// 不信任客户端上送的价格。
type CartItem struct {
	SKU         string          `json:"sku"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Size        string          `json:"size"`
	Color       string          `json:"color"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	AddedAt     time.Time       `json:"addedAt"`
}

// Subtotal 返回该行的小计。
func (i *CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart 聚合一个买家的全部待结算商品。
type Cart struct {
	ShopperID string          `json:"shopperId"`
	Items     []CartItem      `json:"items"`
	PromoCode string          `json:"promoCode,omitempty"`
	Discount  decimal.Decimal `json:"discount"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewCart 返回一个空购物车。
func NewCart(shopperID string) *Cart {
	return &Cart{
		ShopperID: shopperID,
		Items:     []CartItem{},
		Discount:  decimal.Zero,
	}
}

// FindItem 按 SKU 查找购物车行，返回指向内部元素的指针。
func (c *Cart) FindItem(sku string) *CartItem {
	for i := range c.Items {
		if c.Items[i].SKU == sku {
			return &c.Items[i]
		}
	}
	return nil
}

// RemoveItem 删除一个购物车行，返回是否存在。
func (c *Cart) RemoveItem(sku string) bool {
	for i := range c.Items {
		if c.Items[i].SKU == sku {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// IsEmpty 判断购物车是否没有任何商品行。
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount 返回购物车中的商品总件数。
func (c *Cart) ItemCount() int {
	count := 0
	for i := range c.Items {
		count += c.Items[i].Quantity
	}
	return count
}

// Subtotal 返回所有商品行的小计之和。
func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for i := range c.Items {
		subtotal = subtotal.Add(c.Items[i].Subtotal())
	}
	return subtotal
}

// Total 返回折后金额（不含运费，运费在结算时计算），最低为零。
func (c *Cart) Total() decimal.Decimal {
	total := c.Subtotal().Sub(c.Discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// ClearPromo 移除已应用的优惠码。
func (c *Cart) ClearPromo() {
	c.PromoCode = ""
	c.Discount = decimal.Zero
}
