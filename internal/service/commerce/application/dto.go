// internal/service/commerce/application/dto.go
package application

import (
	"time"

	"atelier/internal/service/commerce/domain"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest 是结算用例的入参。
type CreateOrderRequest struct {
	ShopperID       string `json:"shopperId"`
	ShippingAddress string `json:"shippingAddress"`
	Notes           string `json:"notes,omitempty"`
	// 上游已完成支付时携带的流水号，非空则跳过扣款。
	TransactionID string `json:"transactionId,omitempty"`
}

// TransitionMeta 携带一次订单状态流转的附加信息。
type TransitionMeta struct {
	Actor              string
	Location           string
	Notes              string
	TrackingNumber     string
	CancellationReason string
}

// CartView 是购物车的对外视图，带算好的金额汇总。
type CartView struct {
	ShopperID string            `json:"shopperId"`
	Items     []domain.CartItem `json:"items"`
	ItemCount int               `json:"itemCount"`
	PromoCode string            `json:"promoCode,omitempty"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Discount  decimal.Decimal   `json:"discount"`
	Total     decimal.Decimal   `json:"total"`
}

func NewCartView(cart *domain.Cart) *CartView {
	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return &CartView{
		ShopperID: cart.ShopperID,
		Items:     items,
		ItemCount: cart.ItemCount(),
		PromoCode: cart.PromoCode,
		Subtotal:  cart.Subtotal(),
		Discount:  cart.Discount,
		Total:     cart.Total(),
	}
}

// OrderItemView 是订单商品行的对外视图。
type OrderItemView struct {
	SKU         string          `json:"sku"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// OrderView 是订单的对外视图。
type OrderView struct {
	ID                 string          `json:"id"`
	ShopperID          string          `json:"shopperId"`
	Status             string          `json:"status"`
	Items              []OrderItemView `json:"items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	ShippingCost       decimal.Decimal `json:"shippingCost"`
	Total              decimal.Decimal `json:"total"`
	PromoCode          string          `json:"promoCode,omitempty"`
	ShippingAddress    string          `json:"shippingAddress"`
	Notes              string          `json:"notes,omitempty"`
	TransactionID      string          `json:"transactionId,omitempty"`
	TrackingNumber     string          `json:"trackingNumber,omitempty"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	ShippedAt          *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
}

func NewOrderView(order *domain.Order) *OrderView {
	items := make([]OrderItemView, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, OrderItemView{
			SKU:         it.SKU,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Size:        it.Size,
			Color:       it.Color,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			LineTotal:   it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	return &OrderView{
		ID:                 order.ID,
		ShopperID:          order.ShopperID,
		Status:             string(order.Status),
		Items:              items,
		Subtotal:           order.Subtotal,
		Discount:           order.Discount,
		ShippingCost:       order.ShippingCost,
		Total:              order.Total,
		PromoCode:          order.PromoCode,
		ShippingAddress:    order.ShippingAddress,
		Notes:              order.Notes,
		TransactionID:      order.TransactionID,
		TrackingNumber:     order.TrackingNumber,
		CancellationReason: order.CancellationReason,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
	}
}

func NewOrderViews(orders []*domain.Order) []*OrderView {
	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, NewOrderView(o))
	}
	return views
}

// TrackingEntryView 是履约轨迹记录的对外视图。
type TrackingEntryView struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Location  string    `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewTrackingViews(entries []*domain.TrackingEntry) []*TrackingEntryView {
	views := make([]*TrackingEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, &TrackingEntryView{
			ID:        e.ID,
			OrderID:   e.OrderID,
			Status:    string(e.Status),
			Location:  e.Location,
			Notes:     e.Notes,
			UpdatedBy: e.UpdatedBy,
			CreatedAt: e.CreatedAt,
		})
	}
	return views
}

// InventoryView 是库存记录的对外视图，带算好的可售量。
type InventoryView struct {
	SKU               string    `json:"sku"`
	ProductID         string    `json:"productId"`
	ProductName       string    `json:"productName"`
	Size              string    `json:"size,omitempty"`
	Color             string    `json:"color,omitempty"`
	Quantity          int       `json:"quantity"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	Available         int       `json:"available"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	IsLowStock        bool      `json:"isLowStock"`
	Lifecycle         string    `json:"lifecycle"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func NewInventoryView(record *domain.InventoryRecord) *InventoryView {
	return &InventoryView{
		SKU:               record.SKU,
		ProductID:         record.ProductID,
		ProductName:       record.ProductName,
		Size:              record.Size,
		Color:             record.Color,
		Quantity:          record.Quantity,
		ReservedQuantity:  record.ReservedQuantity,
		Available:         record.Available(),
		LowStockThreshold: record.LowStockThreshold,
		IsLowStock:        record.IsLowStock(),
		Lifecycle:         string(record.Lifecycle),
		UpdatedAt:         record.UpdatedAt,
	}
}

func NewInventoryViews(records []*domain.InventoryRecord) []*InventoryView {
	views := make([]*InventoryView, 0, len(records))
	for _, r := range records {
		views = append(views, NewInventoryView(r))
	}
	return views
}

// ReturnView 是退货申请的对外视图。
type ReturnView struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"orderId"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

func NewReturnView(req *domain.ReturnRequest) *ReturnView {
	return &ReturnView{
		ID:         req.ID,
		OrderID:    req.OrderID,
		Reason:     req.Reason,
		Status:     string(req.Status),
		ResolvedBy: req.ResolvedBy,
		CreatedAt:  req.CreatedAt,
		ResolvedAt: req.ResolvedAt,
	}
}
