// internal/service/commerce/application/order.go
package application

import (
	"context"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/metrics"
	"atelier/internal/service/commerce/application/saga"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultListLimit = 20
const maxListLimit = 100

// OrderService 负责订单生命周期的业务流程编排：
// 结算 Saga、状态机流转、履约轨迹与退货审批。
type OrderService struct {
	orders  domain.OrderRepository
	returns domain.ReturnRepository
	cart    *CartService
	ledger  *InventoryLedger
	holds   domain.ReservationStore
	carts   domain.CartStore

	payment    port.PaymentService
	promotions port.PromotionService
	quoter     port.ShippingQuoter
	events     port.OrderEventPublisher

	defaultShippingCost decimal.Decimal
	tracer              trace.Tracer
}

func NewOrderService(
	orders domain.OrderRepository,
	returns domain.ReturnRepository,
	cart *CartService,
	ledger *InventoryLedger,
	holds domain.ReservationStore,
	carts domain.CartStore,
	payment port.PaymentService,
	promotions port.PromotionService,
	quoter port.ShippingQuoter,
	events port.OrderEventPublisher,
	defaultShippingCost decimal.Decimal,
	tracer trace.Tracer,
) *OrderService {
	return &OrderService{
		orders: orders, returns: returns,
		cart: cart, ledger: ledger, holds: holds, carts: carts,
		payment: payment, promotions: promotions, quoter: quoter, events: events,
		defaultShippingCost: defaultShippingCost, tracer: tracer,
	}
}

// CreateOrder 执行结算 Saga：校验购物车预留、逐行确认扣减、询价运费、
// 组装订单实体、支付扣款、落库、收尾。任一步失败都按注册的逆序补偿。
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()

	timer := prometheus.NewTimer(metrics.CheckoutDuration)
	defer timer.ObserveDuration()

	if req.ShopperID == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "shopperId is required")
	}
	if req.ShippingAddress == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "shippingAddress is required")
	}
	span.SetAttributes(attribute.String("shopper.id", req.ShopperID))

	// 结算前先把每一行的预留校验一遍，丢失的预留当场补占。
	cart, err := s.cart.ConfirmForCheckout(ctx, req.ShopperID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cart confirmation failed")
		return nil, err
	}

	orderID := uuid.New().String()
	checkoutCtx := &saga.CheckoutContext{
		Ctx:    ctx,
		Tracer: s.tracer,

		OrderID:              orderID,
		ShopperID:            req.ShopperID,
		ShippingAddress:      req.ShippingAddress,
		Notes:                req.Notes,
		PrepaidTransactionID: req.TransactionID,
		Cart:                 cart,

		Ledger:              s.ledger,
		Quoter:              s.quoter,
		Payment:             s.payment,
		Promotions:          s.promotions,
		Orders:              s.orders,
		Holds:               s.holds,
		Carts:               s.carts,
		Events:              s.events,
		DefaultShippingCost: s.defaultShippingCost,
	}

	logger.Ctx(ctx).Info().
		Str("orderId", orderID).
		Str("shopperId", req.ShopperID).
		Int("lines", len(cart.Items)).
		Msg("Starting checkout saga")

	if err := s.buildCheckoutChain().Handle(checkoutCtx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("orderId", orderID).Msg("Checkout saga failed, compensation triggered")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Checkout saga failed")
		checkoutCtx.TriggerCompensation(ctx)
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	logger.Ctx(ctx).Info().
		Str("orderId", orderID).
		Str("total", checkoutCtx.Order.Total.String()).
		Msg("Order placed")
	span.AddEvent("Order placed")

	return checkoutCtx.Order, nil
}

func (s *OrderService) buildCheckoutChain() saga.Handler {
	checkoutChain := new(saga.ConfirmStockHandler)
	checkoutChain.
		SetNext(new(saga.ShippingQuoteHandler)).
		SetNext(new(saga.CreateOrderHandler)).
		SetNext(new(saga.PaymentCaptureHandler)).
		SetNext(new(saga.PersistOrderHandler)).
		SetNext(new(saga.FinalizeCheckoutHandler))

	return checkoutChain
}

// Transition 把订单推进到目标状态，非法流转直接拒绝。
// 特定状态带副作用：shipped 要求运单号、cancelled 归还库存、refunded 先退款。
func (s *OrderService) Transition(ctx context.Context, orderID string, to domain.Status, meta TransitionMeta) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.TransitionOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.target_status", string(to)))

	if !to.IsValid() {
		return nil, errors.Wrapf(domain.ErrInvalidRequest, "unknown status %q", to)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	from := order.Status

	if !domain.CanTransition(from, to) {
		err := errors.Wrapf(domain.ErrInvalidTransition, "%s -> %s (valid next: %v)", from, to, domain.NextStatuses(from))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid transition")
		return nil, err
	}

	switch to {
	case domain.StatusShipped:
		if meta.TrackingNumber == "" {
			return nil, errors.Wrap(domain.ErrInvalidRequest, "trackingNumber is required to mark an order shipped")
		}
		order.TrackingNumber = meta.TrackingNumber
	case domain.StatusCancelled:
		order.CancellationReason = meta.CancellationReason
	case domain.StatusRefunded:
		// 退款失败就不流转，订单停在 returned 等待重试。
		if err := s.payment.Refund(ctx, order.TransactionID, order.Total); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Refund failed")
			return nil, errors.Wrapf(err, "refund order %s", orderID)
		}
		span.AddEvent("payment refunded")
	}

	now := time.Now()
	order.ApplyTransition(to, now)

	if err := s.orders.Save(ctx, order, order.Version); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save order transition")
		return nil, err
	}

	// 订单已取消，把未履约的货还回台帐。还库存失败只能记日志等人工介入，
	// 状态本身已经落库。
	if to == domain.StatusCancelled {
		for _, item := range order.Items {
			if _, err := s.ledger.AdjustStock(ctxOrBackground(ctx), item.SKU, item.Quantity, "order "+orderID+" cancelled"); err != nil {
				logger.Ctx(ctx).Error().Err(err).
					Str("orderId", orderID).
					Str("sku", item.SKU).
					Int("quantity", item.Quantity).
					Msg("CRITICAL: failed to restock cancelled order line")
			}
		}
	}

	s.appendTracking(ctx, order, to, meta)
	metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()

	if err := s.events.OrderStatusChanged(ctx, order, from, actorOrSystem(meta.Actor)); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("orderId", orderID).Msg("Failed to publish order status event")
	}

	logger.Ctx(ctx).Info().
		Str("orderId", orderID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actorOrSystem(meta.Actor)).
		Msg("Order status changed")
	return order, nil
}

// CancelOrder 是 Transition 到 cancelled 的便捷入口，供买家侧调用。
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return s.Transition(ctx, orderID, domain.StatusCancelled, TransitionMeta{
		Actor:              "shopper",
		CancellationReason: reason,
	})
}

func (s *OrderService) appendTracking(ctx context.Context, order *domain.Order, to domain.Status, meta TransitionMeta) {
	entry := &domain.TrackingEntry{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		Status:    to,
		Location:  meta.Location,
		Notes:     meta.Notes,
		UpdatedBy: actorOrSystem(meta.Actor),
		CreatedAt: time.Now(),
	}
	if err := s.orders.AppendTracking(ctx, entry); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("orderId", order.ID).Msg("Failed to append tracking entry")
	}
}

// GetOrder 读取单个订单。
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return order, nil
}

// ListOrders 按条件分页列出订单。
func (s *OrderService) ListOrders(ctx context.Context, query domain.ListOrdersQuery) ([]*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListOrders")
	defer span.End()

	if query.Limit <= 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	if query.Status != "" {
		if _, ok := domain.ParseStatus(string(query.Status)); !ok {
			return nil, errors.Wrapf(domain.ErrInvalidRequest, "unknown status %q", query.Status)
		}
	}

	orders, err := s.orders.List(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(orders)))
	return orders, nil
}

// GetTracking 按时间正序返回订单的履约轨迹。
func (s *OrderService) GetTracking(ctx context.Context, orderID string) ([]*domain.TrackingEntry, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetTracking")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	// 先确认订单存在，避免给不存在的订单返回空轨迹。
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.orders.ListTracking(ctx, orderID)
}

// RequestReturn 为已发货或已签收的订单登记退货申请，每单一条。
func (s *OrderService) RequestReturn(ctx context.Context, orderID, reason string) (*domain.ReturnRequest, error) {
	ctx, span := s.tracer.Start(ctx, "app.RequestReturn")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if reason == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "return reason is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !order.EligibleForReturn() {
		err := errors.Wrapf(domain.ErrReturnNotAllowed, "order %s is %s", orderID, order.Status)
		span.RecordError(err)
		return nil, err
	}

	existing, err := s.returns.FindByOrderID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrapf(domain.ErrReturnAlreadyRequested, "order %s", orderID)
	}

	now := time.Now()
	req := &domain.ReturnRequest{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Reason:    reason,
		Status:    domain.ReturnRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.returns.Create(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create return request")
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("orderId", orderID).Str("returnId", req.ID).Msg("Return requested")
	return req, nil
}

// ResolveReturn 裁决退货申请。批准会先把订单流转到 returned，
// 流转被拒（比如订单还停在 shipped）时申请保持待裁决。
func (s *OrderService) ResolveReturn(ctx context.Context, returnID string, approve bool, actor string) (*domain.ReturnRequest, error) {
	ctx, span := s.tracer.Start(ctx, "app.ResolveReturn")
	defer span.End()
	span.SetAttributes(attribute.String("return.id", returnID), attribute.Bool("approve", approve))

	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if approve {
		if _, err := s.Transition(ctx, ret.OrderID, domain.StatusReturned, TransitionMeta{
			Actor: actorOrSystem(actor),
			Notes: "Return approved",
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Order transition to returned failed")
			return nil, err
		}
	}

	if err := ret.Resolve(approve, actorOrSystem(actor), time.Now()); err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "return %s is already %s", returnID, ret.Status)
	}
	if err := s.returns.Update(ctx, ret); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save return resolution")
		if approve {
			// 订单已流转到 returned 但裁决没写进去，数据不一致，留给人工处理。
			logger.Ctx(ctx).Error().Err(err).Str("returnId", returnID).Str("orderId", ret.OrderID).
				Msg("CRITICAL: order moved to returned but return resolution was not persisted")
		}
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("returnId", returnID).
		Str("orderId", ret.OrderID).
		Str("status", string(ret.Status)).
		Msg("Return resolved")
	return ret, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

// ctxOrBackground 保住链路信息但甩掉上游的取消信号。
// 还库存发生在订单状态落库之后，不应该被请求取消打断。
func ctxOrBackground(ctx context.Context) context.Context {
	return trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
}
