package application

import (
	"context"
	"testing"
	"time"

	"atelier/internal/pkg/keylock"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"
	"atelier/internal/service/commerce/infrastructure/persistence"
	"atelier/internal/service/commerce/infrastructure/store"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"
)

// CheckoutSuite 把结算链连同全部进程内依赖端到端跑一遍。
type CheckoutSuite struct {
	suite.Suite

	inventory *persistence.MemoryInventoryRepository
	orders    *persistence.MemoryOrderRepository
	returns   *persistence.MemoryReturnRepository
	holds     *store.MemoryReservationStore
	carts     *store.MemoryCartStore

	payment   *fakePayment
	promos    *fakePromotions
	publisher *fakePublisher

	ledger  *InventoryLedger
	cartSvc *CartService
	svc     *OrderService
}

func (s *CheckoutSuite) SetupTest() {
	s.inventory = persistence.NewMemoryInventoryRepository()
	s.orders = persistence.NewMemoryOrderRepository()
	s.returns = persistence.NewMemoryReturnRepository()
	s.holds = store.NewMemoryReservationStore()
	s.carts = store.NewMemoryCartStore()

	s.payment = &fakePayment{}
	s.promos = newFakePromotions()
	s.publisher = &fakePublisher{}

	locker := keylock.New()
	tracer := otel.Tracer("test")
	s.ledger = NewInventoryLedger(s.inventory, locker, tracer)

	catalog := newFakeCatalog(
		port.ProductInfo{SKU: "TSHIRT-M-BLUE", ProductID: "prod-1", Name: "Classic Tee", Size: "M", Color: "blue", UnitPrice: decimal.NewFromInt(25)},
		port.ProductInfo{SKU: "JEANS-32-BLACK", ProductID: "prod-2", Name: "Slim Jeans", Size: "32", Color: "black", UnitPrice: decimal.NewFromInt(60)},
	)
	s.cartSvc = NewCartService(s.ledger, s.carts, s.holds, catalog, s.promos, locker, 15*time.Minute, tracer)

	s.svc = NewOrderService(
		s.orders, s.returns, s.cartSvc, s.ledger, s.holds, s.carts,
		s.payment, s.promos, fixedQuoter{cost: decimal.NewFromInt(5)}, s.publisher,
		decimal.NewFromInt(10), tracer,
	)

	ctx := context.Background()
	s.Require().NoError(s.inventory.Create(ctx, stockRecord("TSHIRT-M-BLUE", 10)))
	s.Require().NoError(s.inventory.Create(ctx, stockRecord("JEANS-32-BLACK", 5)))
}

func (s *CheckoutSuite) fillCart() {
	ctx := context.Background()
	_, err := s.cartSvc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2)
	s.Require().NoError(err)
	_, err = s.cartSvc.AddItem(ctx, "shopper-1", "JEANS-32-BLACK", 1)
	s.Require().NoError(err)
}

func (s *CheckoutSuite) record(sku string) *domain.InventoryRecord {
	record, err := s.inventory.Load(context.Background(), sku)
	s.Require().NoError(err)
	return record
}

// placeOrder 走完整结算，返回已落库的订单。
func (s *CheckoutSuite) placeOrder() *domain.Order {
	s.fillCart()
	order, err := s.svc.CreateOrder(context.Background(), &CreateOrderRequest{
		ShopperID:       "shopper-1",
		ShippingAddress: "1 Main St, Springfield",
	})
	s.Require().NoError(err)
	return order
}

// advance 把订单推进到目标状态，途中经过所有必需的中间状态。
func (s *CheckoutSuite) advance(orderID string, to domain.Status) *domain.Order {
	ctx := context.Background()
	steps := map[domain.Status][]domain.Status{
		domain.StatusConfirmed:  {domain.StatusConfirmed},
		domain.StatusProcessing: {domain.StatusConfirmed, domain.StatusProcessing},
		domain.StatusShipped:    {domain.StatusConfirmed, domain.StatusProcessing, domain.StatusShipped},
		domain.StatusDelivered:  {domain.StatusConfirmed, domain.StatusProcessing, domain.StatusShipped, domain.StatusDelivered},
	}
	var order *domain.Order
	var err error
	for _, step := range steps[to] {
		meta := TransitionMeta{Actor: "ops"}
		if step == domain.StatusShipped {
			meta.TrackingNumber = "TRACK-123"
		}
		order, err = s.svc.Transition(ctx, orderID, step, meta)
		s.Require().NoError(err)
	}
	return order
}

func (s *CheckoutSuite) TestCheckoutHappyPath() {
	order := s.placeOrder()

	s.Equal(domain.StatusPending, order.Status)
	s.Len(order.Items, 2)
	// 2x25 + 1x60 小计 110，运费 5
	s.True(order.Subtotal.Equal(decimal.NewFromInt(110)), "subtotal %s", order.Subtotal)
	s.True(order.ShippingCost.Equal(decimal.NewFromInt(5)), "shipping %s", order.ShippingCost)
	s.True(order.Total.Equal(decimal.NewFromInt(115)), "total %s", order.Total)
	s.Equal("txn-1", order.TransactionID)

	// 库存：预留转为扣减
	tshirt := s.record("TSHIRT-M-BLUE")
	s.Equal(8, tshirt.Quantity)
	s.Equal(0, tshirt.ReservedQuantity)
	jeans := s.record("JEANS-32-BLACK")
	s.Equal(4, jeans.Quantity)
	s.Equal(0, jeans.ReservedQuantity)

	// 收尾：预留和购物车都被清掉
	ctx := context.Background()
	hold, _ := s.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	s.Nil(hold)
	cart, _ := s.carts.Load(ctx, "shopper-1")
	s.True(cart.IsEmpty())

	// 订单可回查，事件已广播
	persisted, err := s.svc.GetOrder(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, persisted.ID)
	s.Contains(s.publisher.placedOrders(), order.ID)
}

func (s *CheckoutSuite) TestCheckoutWithPromo() {
	ctx := context.Background()
	s.promos.codes["SUMMER20"] = decimal.NewFromInt(20)

	s.fillCart()
	_, err := s.cartSvc.ApplyPromo(ctx, "shopper-1", "SUMMER20")
	s.Require().NoError(err)

	order, err := s.svc.CreateOrder(ctx, &CreateOrderRequest{
		ShopperID:       "shopper-1",
		ShippingAddress: "1 Main St, Springfield",
	})
	s.Require().NoError(err)

	// 110 - 20 + 5
	s.True(order.Total.Equal(decimal.NewFromInt(95)), "total %s", order.Total)
	s.Equal("SUMMER20", order.PromoCode)

	usages := s.promos.recordedUsages()
	s.Require().Len(usages, 1)
	s.Equal("SUMMER20", usages[0].Code)
	s.Equal(order.ID, usages[0].OrderID)
}

func (s *CheckoutSuite) TestCheckoutPaymentDeclined() {
	s.payment.decline = true
	s.fillCart()

	_, err := s.svc.CreateOrder(context.Background(), &CreateOrderRequest{
		ShopperID:       "shopper-1",
		ShippingAddress: "1 Main St, Springfield",
	})
	s.Require().Error(err)
	s.True(errors.Is(err, domain.ErrPaymentDeclined), "got %v", err)

	// 补偿把扣减恢复成预留，买家可以直接重试结算
	tshirt := s.record("TSHIRT-M-BLUE")
	s.Equal(10, tshirt.Quantity)
	s.Equal(2, tshirt.ReservedQuantity)
	jeans := s.record("JEANS-32-BLACK")
	s.Equal(5, jeans.Quantity)
	s.Equal(1, jeans.ReservedQuantity)

	// 没有订单落库，购物车原样保留
	ctx := context.Background()
	orders, err := s.svc.ListOrders(ctx, domain.ListOrdersQuery{ShopperID: "shopper-1"})
	s.Require().NoError(err)
	s.Empty(orders)
	cart, _ := s.carts.Load(ctx, "shopper-1")
	s.Len(cart.Items, 2)
	s.Empty(s.publisher.placedOrders())
	s.Empty(s.payment.refunded())
}

// failingCreateOrders 让落库步骤失败，逼出“钱已收、单没落”的补偿路径。
type failingCreateOrders struct {
	domain.OrderRepository
}

func (r *failingCreateOrders) Create(ctx context.Context, order *domain.Order) error {
	return errors.New("connection reset by peer")
}

func (s *CheckoutSuite) TestCheckoutPersistFailureRefundsPayment() {
	tracer := otel.Tracer("test")
	svc := NewOrderService(
		&failingCreateOrders{OrderRepository: s.orders}, s.returns, s.cartSvc, s.ledger, s.holds, s.carts,
		s.payment, s.promos, fixedQuoter{cost: decimal.NewFromInt(5)}, s.publisher,
		decimal.NewFromInt(10), tracer,
	)
	s.fillCart()

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		ShopperID:       "shopper-1",
		ShippingAddress: "1 Main St, Springfield",
	})
	s.Require().Error(err)

	// 已扣的款退回，已确认的库存恢复为预留
	s.Equal([]string{"txn-1"}, s.payment.refunded())
	tshirt := s.record("TSHIRT-M-BLUE")
	s.Equal(10, tshirt.Quantity)
	s.Equal(2, tshirt.ReservedQuantity)
	s.Empty(s.publisher.placedOrders())
}

func (s *CheckoutSuite) TestCheckoutEmptyCart() {
	_, err := s.svc.CreateOrder(context.Background(), &CreateOrderRequest{
		ShopperID:       "shopper-1",
		ShippingAddress: "1 Main St, Springfield",
	})
	s.True(errors.Is(err, domain.ErrCartEmpty), "got %v", err)
}

func (s *CheckoutSuite) TestCheckoutValidation() {
	_, err := s.svc.CreateOrder(context.Background(), &CreateOrderRequest{ShippingAddress: "1 Main St"})
	s.True(errors.Is(err, domain.ErrInvalidRequest), "got %v", err)

	_, err = s.svc.CreateOrder(context.Background(), &CreateOrderRequest{ShopperID: "shopper-1"})
	s.True(errors.Is(err, domain.ErrInvalidRequest), "got %v", err)
}

func (s *CheckoutSuite) TestCheckoutPrepaidSkipsCapture() {
	s.fillCart()

	order, err := s.svc.CreateOrder(context.Background(), &CreateOrderRequest{
		ShopperID:       "shopper-1",
		ShippingAddress: "1 Main St, Springfield",
		TransactionID:   "txn-upstream",
	})
	s.Require().NoError(err)
	s.Equal("txn-upstream", order.TransactionID)
	s.Equal(0, s.payment.captures)
}

func (s *CheckoutSuite) TestCheckoutQuoteFallback() {
	tracer := otel.Tracer("test")
	svc := NewOrderService(
		s.orders, s.returns, s.cartSvc, s.ledger, s.holds, s.carts,
		s.payment, s.promos, fixedQuoter{err: errors.New("carrier unavailable")}, s.publisher,
		decimal.NewFromInt(10), tracer,
	)
	s.fillCart()

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		ShopperID:       "shopper-1",
		ShippingAddress: "1 Main St, Springfield",
	})
	s.Require().NoError(err)
	s.True(order.ShippingCost.Equal(decimal.NewFromInt(10)), "shipping %s", order.ShippingCost)
	s.True(order.Total.Equal(decimal.NewFromInt(120)), "total %s", order.Total)
}

func (s *CheckoutSuite) TestTransitionLifecycle() {
	ctx := context.Background()
	order := s.placeOrder()

	// 跳步被拒
	_, err := s.svc.Transition(ctx, order.ID, domain.StatusShipped, TransitionMeta{TrackingNumber: "T"})
	s.True(errors.Is(err, domain.ErrInvalidTransition), "got %v", err)

	updated, err := s.svc.Transition(ctx, order.ID, domain.StatusConfirmed, TransitionMeta{Actor: "ops"})
	s.Require().NoError(err)
	s.Equal(domain.StatusConfirmed, updated.Status)

	updated, err = s.svc.Transition(ctx, order.ID, domain.StatusProcessing, TransitionMeta{Actor: "ops"})
	s.Require().NoError(err)

	// 发货必须带运单号
	_, err = s.svc.Transition(ctx, order.ID, domain.StatusShipped, TransitionMeta{Actor: "ops"})
	s.True(errors.Is(err, domain.ErrInvalidRequest), "got %v", err)

	updated, err = s.svc.Transition(ctx, order.ID, domain.StatusShipped, TransitionMeta{Actor: "ops", TrackingNumber: "TRACK-9", Location: "Warehouse 4"})
	s.Require().NoError(err)
	s.Equal("TRACK-9", updated.TrackingNumber)
	s.NotNil(updated.ShippedAt)

	updated, err = s.svc.Transition(ctx, order.ID, domain.StatusDelivered, TransitionMeta{Actor: "courier"})
	s.Require().NoError(err)
	s.NotNil(updated.DeliveredAt)

	// 轨迹：下单 + 四次流转
	entries, err := s.svc.GetTracking(ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 5)
	s.Equal(domain.StatusPending, entries[0].Status)
	s.Equal("Order placed", entries[0].Notes)
	s.Equal(domain.StatusDelivered, entries[4].Status)
	s.Equal("Warehouse 4", entries[3].Location)

	changes := s.publisher.statusChanges()
	s.Require().Len(changes, 4)
	s.Equal(domain.StatusPending, changes[0].From)
	s.Equal(domain.StatusConfirmed, changes[0].To)
	s.Equal("courier", changes[3].Actor)
}

func (s *CheckoutSuite) TestCancelRestocks() {
	ctx := context.Background()
	order := s.placeOrder()
	s.Equal(8, s.record("TSHIRT-M-BLUE").Quantity)

	cancelled, err := s.svc.CancelOrder(ctx, order.ID, "changed my mind")
	s.Require().NoError(err)
	s.Equal(domain.StatusCancelled, cancelled.Status)
	s.Equal("changed my mind", cancelled.CancellationReason)
	s.NotNil(cancelled.CancelledAt)

	// 两件 T 恤和一条牛仔裤都回到台账
	s.Equal(10, s.record("TSHIRT-M-BLUE").Quantity)
	s.Equal(5, s.record("JEANS-32-BLACK").Quantity)
	s.Equal(0, s.record("TSHIRT-M-BLUE").ReservedQuantity)

	// 终态后不可再动
	_, err = s.svc.Transition(ctx, order.ID, domain.StatusConfirmed, TransitionMeta{})
	s.True(errors.Is(err, domain.ErrInvalidTransition), "got %v", err)
}

func (s *CheckoutSuite) TestRefundAfterReturn() {
	ctx := context.Background()
	order := s.placeOrder()
	s.advance(order.ID, domain.StatusDelivered)

	_, err := s.svc.Transition(ctx, order.ID, domain.StatusReturned, TransitionMeta{Actor: "ops"})
	s.Require().NoError(err)

	refunded, err := s.svc.Transition(ctx, order.ID, domain.StatusRefunded, TransitionMeta{Actor: "ops"})
	s.Require().NoError(err)
	s.Equal(domain.StatusRefunded, refunded.Status)
	s.Equal([]string{"txn-1"}, s.payment.refunded())
}

func (s *CheckoutSuite) TestRefundFailureKeepsOrderReturned() {
	ctx := context.Background()
	order := s.placeOrder()
	s.advance(order.ID, domain.StatusDelivered)
	_, err := s.svc.Transition(ctx, order.ID, domain.StatusReturned, TransitionMeta{Actor: "ops"})
	s.Require().NoError(err)

	s.payment.refundErr = errors.New("gateway down")
	_, err = s.svc.Transition(ctx, order.ID, domain.StatusRefunded, TransitionMeta{Actor: "ops"})
	s.Require().Error(err)

	// 退款失败，状态停在 returned 等待重试
	current, err := s.svc.GetOrder(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusReturned, current.Status)

	s.payment.refundErr = nil
	_, err = s.svc.Transition(ctx, order.ID, domain.StatusRefunded, TransitionMeta{Actor: "ops"})
	s.Require().NoError(err)
}

func (s *CheckoutSuite) TestRequestReturn() {
	ctx := context.Background()
	order := s.placeOrder()

	// 未发货不能退
	_, err := s.svc.RequestReturn(ctx, order.ID, "too small")
	s.True(errors.Is(err, domain.ErrReturnNotAllowed), "got %v", err)

	s.advance(order.ID, domain.StatusShipped)

	_, err = s.svc.RequestReturn(ctx, order.ID, "")
	s.True(errors.Is(err, domain.ErrInvalidRequest), "got %v", err)

	ret, err := s.svc.RequestReturn(ctx, order.ID, "too small")
	s.Require().NoError(err)
	s.Equal(domain.ReturnRequested, ret.Status)
	s.Equal(order.ID, ret.OrderID)

	// 每单至多一条申请
	_, err = s.svc.RequestReturn(ctx, order.ID, "still too small")
	s.True(errors.Is(err, domain.ErrReturnAlreadyRequested), "got %v", err)
}

func (s *CheckoutSuite) TestResolveReturn_Approve() {
	ctx := context.Background()
	order := s.placeOrder()
	s.advance(order.ID, domain.StatusDelivered)

	ret, err := s.svc.RequestReturn(ctx, order.ID, "wrong color")
	s.Require().NoError(err)

	resolved, err := s.svc.ResolveReturn(ctx, ret.ID, true, "ops")
	s.Require().NoError(err)
	s.Equal(domain.ReturnApproved, resolved.Status)
	s.Equal("ops", resolved.ResolvedBy)
	s.NotNil(resolved.ResolvedAt)

	current, err := s.svc.GetOrder(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusReturned, current.Status)
}

func (s *CheckoutSuite) TestResolveReturn_Reject() {
	ctx := context.Background()
	order := s.placeOrder()
	s.advance(order.ID, domain.StatusDelivered)

	ret, err := s.svc.RequestReturn(ctx, order.ID, "wrong color")
	s.Require().NoError(err)

	resolved, err := s.svc.ResolveReturn(ctx, ret.ID, false, "ops")
	s.Require().NoError(err)
	s.Equal(domain.ReturnRejected, resolved.Status)

	// 拒绝不动订单状态
	current, err := s.svc.GetOrder(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusDelivered, current.Status)

	// 已裁决的申请不可二次裁决
	_, err = s.svc.ResolveReturn(ctx, ret.ID, true, "ops")
	s.True(errors.Is(err, domain.ErrReturnNotAllowed), "got %v", err)
}

func (s *CheckoutSuite) TestResolveReturn_ApproveBeforeDelivery() {
	ctx := context.Background()
	order := s.placeOrder()
	s.advance(order.ID, domain.StatusShipped)

	ret, err := s.svc.RequestReturn(ctx, order.ID, "never arrived")
	s.Require().NoError(err)

	// shipped -> returned 不是合法流转，批准被拒，申请保持待裁决
	_, err = s.svc.ResolveReturn(ctx, ret.ID, true, "ops")
	s.True(errors.Is(err, domain.ErrInvalidTransition), "got %v", err)

	pending, err := s.returns.FindByID(ctx, ret.ID)
	s.Require().NoError(err)
	s.Equal(domain.ReturnRequested, pending.Status)
}

func (s *CheckoutSuite) TestListOrders() {
	ctx := context.Background()
	first := s.placeOrder()

	_, err := s.cartSvc.AddItem(ctx, "shopper-2", "TSHIRT-M-BLUE", 1)
	s.Require().NoError(err)
	second, err := s.svc.CreateOrder(ctx, &CreateOrderRequest{ShopperID: "shopper-2", ShippingAddress: "2 Oak Ave"})
	s.Require().NoError(err)

	mine, err := s.svc.ListOrders(ctx, domain.ListOrdersQuery{ShopperID: "shopper-1"})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(first.ID, mine[0].ID)

	pending, err := s.svc.ListOrders(ctx, domain.ListOrdersQuery{Status: domain.StatusPending})
	s.Require().NoError(err)
	s.Len(pending, 2)

	_, err = s.svc.CancelOrder(ctx, second.ID, "test")
	s.Require().NoError(err)
	pending, err = s.svc.ListOrders(ctx, domain.ListOrdersQuery{Status: domain.StatusPending})
	s.Require().NoError(err)
	s.Len(pending, 1)

	_, err = s.svc.ListOrders(ctx, domain.ListOrdersQuery{Status: domain.Status("bogus")})
	s.True(errors.Is(err, domain.ErrInvalidRequest), "got %v", err)
}

func (s *CheckoutSuite) TestGetTracking_UnknownOrder() {
	_, err := s.svc.GetTracking(context.Background(), "no-such-order")
	s.True(errors.Is(err, domain.ErrOrderNotFound), "got %v", err)
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}
