// internal/service/commerce/domain/inventory.go
package domain

import (
	"time"
)

// Lifecycle 定义 SKU 的售卖生命周期。
// 下架(disabled)的 SKU 不再接受新预留，但已有预留仍可释放和扣减；
// 归档(archived)是终态，要求不存在活跃预留。
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleDisabled Lifecycle = "disabled"
	LifecycleArchived Lifecycle = "archived"
)

func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleActive, LifecycleDisabled, LifecycleArchived:
		return true
	}
	return false
}

// InventoryRecord 是库存台账中一个 SKU 的权威记录。
// 不变式：每次落库后 0 <= ReservedQuantity <= Quantity。
// 可售量是推导值，从不落库。
type InventoryRecord struct {
	SKU               string
	ProductID         string
	ProductName       string
	Size              string
	Color             string
	Quantity          int // 实际持有的库存
	ReservedQuantity  int // 活跃预留占用之和
	LowStockThreshold int
	Lifecycle         Lifecycle
	Version           int64 // 乐观并发控制版本号，每次保存递增
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available 返回可售量（持有量减去预留量）。
func (r *InventoryRecord) Available() int {
	return r.Quantity - r.ReservedQuantity
}

// IsLowStock 判断可售量是否已降到阈值之下。
func (r *InventoryRecord) IsLowStock() bool {
	return r.Available() <= r.LowStockThreshold
}

// Sellable 判断该 SKU 是否接受新预留。
func (r *InventoryRecord) Sellable() bool {
	return r.Lifecycle == LifecycleActive
}

// Reserve 为购物车占用 qty 件库存。
func (r *InventoryRecord) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !r.Sellable() {
		return ErrSkuNotSellable
	}
	if r.Available() < qty {
		return ErrInsufficientStock
	}
	r.ReservedQuantity += qty
	return nil
}

// Release 归还 qty 件预留。超量释放会被钳制到零：
// 预留过期后的二次释放是合法操作，不是错误。
func (r *InventoryRecord) Release(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	r.ReservedQuantity -= qty
	if r.ReservedQuantity < 0 {
		r.ReservedQuantity = 0
	}
	return nil
}

// ConfirmDeduction 把预留转为实际扣减：持有量与预留量同时减少。
// 两个字段都钳制在零以上。
func (r *InventoryRecord) ConfirmDeduction(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	r.Quantity -= qty
	if r.Quantity < 0 {
		r.Quantity = 0
	}
	r.ReservedQuantity -= qty
	if r.ReservedQuantity < 0 {
		r.ReservedQuantity = 0
	}
	return nil
}

// ReinstateDeduction 是 ConfirmDeduction 的精确逆操作，仅用于结算补偿：
// 持有量与预留量同时恢复，使该行回到确认前的状态。
func (r *InventoryRecord) ReinstateDeduction(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	r.Quantity += qty
	r.ReservedQuantity += qty
	return nil
}

// AdjustQuantity 人工校正持有量，delta 可正可负。
// 调整后持有量不得为负，也不得低于当前预留量。
func (r *InventoryRecord) AdjustQuantity(delta int) error {
	newQuantity := r.Quantity + delta
	if newQuantity < 0 || newQuantity < r.ReservedQuantity {
		return ErrStockUnderflow
	}
	r.Quantity = newQuantity
	return nil
}

// ChangeLifecycle 执行生命周期变更。
// active 与 disabled 可互切；archived 是终态且要求无活跃预留。
func (r *InventoryRecord) ChangeLifecycle(to Lifecycle) error {
	if !to.IsValid() {
		return ErrInvalidLifecycle
	}
	if r.Lifecycle == LifecycleArchived {
		return ErrInvalidLifecycle
	}
	if to == LifecycleArchived && r.ReservedQuantity > 0 {
		return ErrActiveHoldsRemain
	}
	r.Lifecycle = to
	return nil
}
