// internal/service/commerce/domain/order.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem 是订单中的一个商品行，数量与单价在下单时刻快照。
type OrderItem struct {
	SKU         string
	ProductID   string
	ProductName string
	Size        string
	Color       string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// Order 是订单聚合的根实体。
// 金额字段在创建时一次性定格，状态流转只改变 Status 与对应时间戳。
type Order struct {
	ID        string
	ShopperID string
	Status    Status
	Items     []OrderItem

	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
	PromoCode    string

	ShippingAddress    string
	Notes              string
	TransactionID      string // 支付捕获凭据
	TrackingNumber     string
	CancellationReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time

	Version int64 // 乐观并发控制版本号
}

// NewOrder 工厂函数：从已通过结算校验的购物车快照创建订单。
func NewOrder(id, shopperID string, cart *Cart, shippingCost decimal.Decimal, shippingAddress, notes string) (*Order, error) {
	if id == "" || shopperID == "" {
		return nil, ErrInvalidRequest
	}
	if shippingAddress == "" {
		return nil, ErrInvalidRequest
	}
	if cart == nil || cart.IsEmpty() {
		return nil, ErrCartEmpty
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for i := range cart.Items {
		ci := &cart.Items[i]
		items = append(items, OrderItem{
			SKU:         ci.SKU,
			ProductID:   ci.ProductID,
			ProductName: ci.ProductName,
			Size:        ci.Size,
			Color:       ci.Color,
			UnitPrice:   ci.UnitPrice,
			Quantity:    ci.Quantity,
		})
	}

	subtotal := cart.Subtotal()
	total := subtotal.Sub(cart.Discount).Add(shippingCost)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := time.Now()
	return &Order{
		ID:              id,
		ShopperID:       shopperID,
		Status:          StatusPending, // 初始状态
		Items:           items,
		Subtotal:        subtotal,
		Discount:        cart.Discount,
		ShippingCost:    shippingCost,
		Total:           total,
		PromoCode:       cart.PromoCode,
		ShippingAddress: shippingAddress,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ApplyTransition 应用一次已通过状态机校验的流转，并盖上对应时间戳。
// 校验本身在应用层借助 CanTransition 完成。
func (o *Order) ApplyTransition(to Status, now time.Time) {
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	}
}

// EligibleForReturn 判断订单当前是否可以发起退货申请。
// 已发货与已签收的订单都可以申请，实际退货流转只发生在签收之后。
func (o *Order) EligibleForReturn() bool {
	return o.Status == StatusShipped || o.Status == StatusDelivered
}
