package saga

import (
	"context"
	"sync"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

// StockLedger 是结算链对库存台账的依赖面。
type StockLedger interface {
	Confirm(ctx context.Context, sku string, qty int) error
	Reinstate(ctx context.Context, sku string, qty int) error
}

// CheckoutContext 在结算 Saga 各步骤之间传递数据。
// 所有外部依赖都以出站端口的形式注入。
type CheckoutContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	// 入参快照
	OrderID         string
	ShopperID       string
	ShippingAddress string
	Notes           string
	// 已在上游完成支付时携带的流水号，非空则跳过扣款步骤。
	PrepaidTransactionID string

	Cart *domain.Cart

	// 链中逐步产出
	ShippingCost decimal.Decimal
	Order        *domain.Order

	// 依赖出站端口
	Ledger              StockLedger
	Quoter              port.ShippingQuoter
	Payment             port.PaymentService
	Promotions          port.PromotionService
	Orders              domain.OrderRepository
	Holds               domain.ReservationStore
	Carts               domain.CartStore
	Events              port.OrderEventPublisher
	DefaultShippingCost decimal.Decimal

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 头插补偿函数，触发时按注册的逆序执行。
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *CheckoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Str("orderId", c.OrderID).Int("count", len(c.compensations)).Msg("Executing checkout compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}
