// internal/service/commerce/domain/tracking.go
package domain

import "time"

// TrackingEntry 是订单履约轨迹中的一条记录。
// 轨迹只追加：记录一旦写入，永不更新也永不删除。
type TrackingEntry struct {
	ID        string
	OrderID   string
	Status    Status
	Location  string
	Notes     string
	UpdatedBy string // 操作者，如 "system"、仓库账号
	CreatedAt time.Time
}
