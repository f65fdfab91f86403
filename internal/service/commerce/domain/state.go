// internal/service/commerce/domain/state.go
package domain

// Status 定义了订单的履约生命周期状态。
type Status string

const (
	StatusPending    Status = "pending"    // 已创建，等待确认
	StatusConfirmed  Status = "confirmed"  // 已确认，支付完成
	StatusProcessing Status = "processing" // 拣货打包中
	StatusShipped    Status = "shipped"    // 已发货
	StatusDelivered  Status = "delivered"  // 已签收
	StatusReturned   Status = "returned"   // 已退货
	StatusRefunded   Status = "refunded"   // 已退款（终态）
	StatusCancelled  Status = "cancelled"  // 已取消（终态）
)

// validTransitions 是状态机的唯一事实来源。
// 主干单向推进，取消只允许在发货准备开始之前。
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusReturned},
	StatusReturned:   {StatusRefunded},
	StatusRefunded:   {},
	StatusCancelled:  {},
}

// IsValid 判断是否是已知状态。
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal 判断是否是终态。
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0 && s.IsValid()
}

// CanTransition 判断 from -> to 是否是合法的状态流转。
// 自环以及任何表中未声明的流转都不合法。
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses 返回某状态所有合法的下一跳，用于错误信息提示。
func NextStatuses(from Status) []Status {
	next := validTransitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ParseStatus 把外部输入解析为状态值。
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.IsValid()
}
