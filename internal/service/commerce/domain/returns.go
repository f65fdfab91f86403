// internal/service/commerce/domain/returns.go
package domain

import "time"

// ReturnStatus 定义退货申请的处理状态。
type ReturnStatus string

const (
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
)

// ReturnRequest 是一次退货申请。每个订单至多存在一条申请，
// 只有已发货或已签收的订单可以发起。
type ReturnRequest struct {
	ID         string
	OrderID    string
	Reason     string
	Status     ReturnStatus
	ResolvedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// Resolve 裁决一条退货申请。已裁决的申请不允许二次裁决。
func (r *ReturnRequest) Resolve(approve bool, actor string, now time.Time) error {
	if r.Status != ReturnRequested {
		return ErrReturnNotAllowed
	}
	if approve {
		r.Status = ReturnApproved
	} else {
		r.Status = ReturnRejected
	}
	r.ResolvedBy = actor
	r.UpdatedAt = now
	r.ResolvedAt = &now
	return nil
}
