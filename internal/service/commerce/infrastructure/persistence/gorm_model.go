package persistence

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItemModel 对应数据库中的 inventory_items 表
type InventoryItemModel struct {
	SKU               string `gorm:"primaryKey;size:64"`
	ProductID         string `gorm:"size:64;index"`
	ProductName       string `gorm:"size:255"`
	Size              string `gorm:"size:32"`
	Color             string `gorm:"size:32"`
	Quantity          int
	ReservedQuantity  int
	LowStockThreshold int
	Lifecycle         string `gorm:"size:16;index;default:active"`
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名
func (InventoryItemModel) TableName() string {
	return "inventory_items"
}

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID                 string          `gorm:"primaryKey;size:36"`
	ShopperID          string          `gorm:"size:64;index"`
	Status             string          `gorm:"size:20;index"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(10,2)"`
	Discount           decimal.Decimal `gorm:"type:decimal(10,2)"`
	ShippingCost       decimal.Decimal `gorm:"type:decimal(10,2)"`
	Total              decimal.Decimal `gorm:"type:decimal(10,2)"`
	PromoCode          string          `gorm:"size:64"`
	ShippingAddress    string          `gorm:"type:text"`
	Notes              string          `gorm:"type:text"`
	TransactionID      string          `gorm:"size:64"`
	TrackingNumber     string          `gorm:"size:64"`
	CancellationReason string          `gorm:"size:255"`
	CreatedAt          time.Time       `gorm:"index"`
	UpdatedAt          time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	Version            int64

	// 关联关系
	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应数据库中的 order_items 表，下单时刻的商品快照。
type OrderItemModel struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	OrderID     string          `gorm:"size:36;index"`
	SKU         string          `gorm:"size:64"`
	ProductID   string          `gorm:"size:64"`
	ProductName string          `gorm:"size:255"`
	Size        string          `gorm:"size:32"`
	Color       string          `gorm:"size:32"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2)"`
	Quantity    int
}

// TableName 指定 GORM 应该使用的表名
func (OrderItemModel) TableName() string {
	return "order_items"
}

// OrderTrackingModel 对应数据库中的 order_tracking 表，只追加不修改。
type OrderTrackingModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	OrderID   string    `gorm:"size:36;index"`
	Status    string    `gorm:"size:20"`
	Location  string    `gorm:"size:255"`
	Notes     string    `gorm:"type:text"`
	UpdatedBy string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderTrackingModel) TableName() string {
	return "order_tracking"
}

// ReturnRequestModel 对应数据库中的 return_requests 表。
// order_id 上的唯一索引保证每个订单至多一条申请。
type ReturnRequestModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	OrderID    string `gorm:"size:36;uniqueIndex"`
	Reason     string `gorm:"type:text"`
	Status     string `gorm:"size:16"`
	ResolvedBy string `gorm:"size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ReturnRequestModel) TableName() string {
	return "return_requests"
}
