// internal/service/commerce/domain/repository.go
package domain

import (
	"context"
	"time"
)

// InventoryRepository 定义了库存记录的持久化接口。
// 这是领域层与基础设施层之间的“插座”。
type InventoryRepository interface {
	// Load 读取一条库存记录。SKU 不存在时返回 ErrSkuNotFound。
	Load(ctx context.Context, sku string) (*InventoryRecord, error)

	// Save 以乐观并发控制写回记录：仅当存储中的版本等于 expectedVersion
	// 时才落库并把版本加一，否则返回 ErrVersionConflict。
	Save(ctx context.Context, record *InventoryRecord, expectedVersion int64) error

	// Create 写入一条新记录。SKU 已存在时返回 ErrSkuAlreadyExists。
	Create(ctx context.Context, record *InventoryRecord) error

	// ListLowStock 返回可售量降到阈值之下的所有记录，不含已归档 SKU。
	ListLowStock(ctx context.Context) ([]*InventoryRecord, error)
}

// ListOrdersQuery 是订单列表查询的过滤条件。
type ListOrdersQuery struct {
	ShopperID string // 为空表示不按买家过滤（管理端）
	Status    Status // 为空表示不按状态过滤
	Offset    int
	Limit     int
}

// OrderRepository 定义了订单聚合（含履约轨迹）的持久化接口。
type OrderRepository interface {
	// Create 在一个事务里持久化新订单、全部商品行和首条 pending 轨迹记录。
	Create(ctx context.Context, order *Order) error

	// Save 以乐观并发控制写回订单（仅头部字段，商品行不可变）。
	Save(ctx context.Context, order *Order, expectedVersion int64) error

	// FindByID 读取订单及其商品行。不存在时返回 ErrOrderNotFound。
	FindByID(ctx context.Context, id string) (*Order, error)

	// List 按条件分页列出订单，按创建时间倒序。
	List(ctx context.Context, query ListOrdersQuery) ([]*Order, error)

	// AppendTracking 追加一条履约轨迹记录。
	AppendTracking(ctx context.Context, entry *TrackingEntry) error

	// ListTracking 按时间正序返回订单的全部轨迹记录。
	ListTracking(ctx context.Context, orderID string) ([]*TrackingEntry, error)
}

// ReturnRepository 定义了退货申请的持久化接口。
type ReturnRepository interface {
	// Create 写入一条退货申请。该订单已有申请时返回 ErrReturnAlreadyRequested。
	Create(ctx context.Context, req *ReturnRequest) error

	// FindByID 读取一条退货申请。不存在时返回 ErrReturnNotFound。
	FindByID(ctx context.Context, id string) (*ReturnRequest, error)

	// FindByOrderID 读取订单的退货申请，不存在时返回 (nil, nil)。
	FindByOrderID(ctx context.Context, orderID string) (*ReturnRequest, error)

	// Update 写回裁决结果。
	Update(ctx context.Context, req *ReturnRequest) error
}

// ReservationStore 是带 TTL 的预留存储。
// 它从不与台账对话：过期条目由清扫器取出后交还台账。
type ReservationStore interface {
	// Put 写入或刷新一条预留（连同它的过期时间）。
	Put(ctx context.Context, res *Reservation) error

	// Get 读取一条预留，不存在时返回 (nil, nil)。已过期但尚未被清扫的
	// 条目照常返回：它在台账上仍占着份额，调用方自行判断 Expired。
	Get(ctx context.Context, shopperID, sku string) (*Reservation, error)

	// Delete 删除一条预留，幂等。
	Delete(ctx context.Context, shopperID, sku string) error

	// DeleteAll 删除一个买家的全部预留，幂等。
	DeleteAll(ctx context.Context, shopperID string) error

	// Sweep 取出并移除所有在 now 之前过期的预留。
	Sweep(ctx context.Context, now time.Time) ([]*Reservation, error)
}

// CartStore 是购物车存储。
type CartStore interface {
	// Load 读取买家的购物车，不存在时返回空购物车。
	Load(ctx context.Context, shopperID string) (*Cart, error)

	// Save 写回购物车并刷新它的 TTL。
	Save(ctx context.Context, cart *Cart) error

	// Delete 删除购物车，幂等。
	Delete(ctx context.Context, shopperID string) error
}
