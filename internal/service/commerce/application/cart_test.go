package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atelier/internal/pkg/keylock"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"
	"atelier/internal/service/commerce/infrastructure/persistence"
	"atelier/internal/service/commerce/infrastructure/store"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

type cartFixture struct {
	svc    *CartService
	ledger *InventoryLedger
	holds  *store.MemoryReservationStore
	carts  *store.MemoryCartStore
	promos *fakePromotions
}

func newCartFixture(t *testing.T, records ...*domain.InventoryRecord) *cartFixture {
	t.Helper()
	repo := persistence.NewMemoryInventoryRepository()
	products := make([]port.ProductInfo, 0, len(records))
	for _, r := range records {
		if err := repo.Create(context.Background(), r); err != nil {
			t.Fatalf("Expected no error seeding %s, got: %v", r.SKU, err)
		}
		products = append(products, port.ProductInfo{
			SKU:       r.SKU,
			ProductID: r.ProductID,
			Name:      r.ProductName,
			Size:      r.Size,
			Color:     r.Color,
			UnitPrice: decimal.NewFromInt(25),
		})
	}

	locker := keylock.New()
	tracer := otel.Tracer("test")
	ledger := NewInventoryLedger(repo, locker, tracer)
	holds := store.NewMemoryReservationStore()
	carts := store.NewMemoryCartStore()
	promos := newFakePromotions()

	svc := NewCartService(ledger, carts, holds, newFakeCatalog(products...), promos, locker, 15*time.Minute, tracer)
	return &cartFixture{svc: svc, ledger: ledger, holds: holds, carts: carts, promos: promos}
}

func (f *cartFixture) reserved(t *testing.T, sku string) int {
	t.Helper()
	record, err := f.ledger.GetRecord(context.Background(), sku)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return record.ReservedQuantity
}

// sweep 模拟清扫器跑过一轮：删掉过期预留并把数量还回台账。
func (f *cartFixture) sweep(t *testing.T, now time.Time) {
	t.Helper()
	ctx := context.Background()
	expired, err := f.holds.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, hold := range expired {
		if err := f.ledger.Release(ctx, hold.SKU, hold.Quantity); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}
}

func TestCartService_AddItem(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	cart, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	line := cart.FindItem("TSHIRT-M-BLUE")
	if line == nil {
		t.Fatal("Expected the line to be in the cart")
	}
	if line.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", line.Quantity)
	}
	if line.ProductName != "Test Product" {
		t.Errorf("Expected product name snapshotted from catalog, got %q", line.ProductName)
	}
	if !line.UnitPrice.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Expected unit price snapshotted from catalog, got %s", line.UnitPrice)
	}

	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 2 {
		t.Errorf("Expected ledger reserved 2, got %d", got)
	}
	hold, _ := f.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if hold == nil || hold.Quantity != 2 {
		t.Fatalf("Expected a hold for 2, got %+v", hold)
	}
	if hold.Expired(time.Now()) {
		t.Error("Expected a fresh hold")
	}
}

func TestCartService_AddItem_AccumulatesQuantity(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	cart, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 3)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("Expected one merged line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Errorf("Expected merged quantity 5, got %d", cart.Items[0].Quantity)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 5 {
		t.Errorf("Expected ledger reserved 5, got %d", got)
	}
	hold, _ := f.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if hold == nil || hold.Quantity != 5 {
		t.Fatalf("Expected hold refreshed to 5, got %+v", hold)
	}
}

func TestCartService_AddItem_InsufficientStock(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 3))
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 4)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got: %v", err)
	}

	cart, _ := f.svc.GetCart(ctx, "shopper-1")
	if !cart.IsEmpty() {
		t.Error("Failed add must not leave a cart line")
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 0 {
		t.Errorf("Failed add must not leave a hold, got %d", got)
	}
}

func TestCartService_AddItem_UnknownSku(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 3))

	if _, err := f.svc.AddItem(context.Background(), "shopper-1", "HAT-OS-RED", 1); !errors.Is(err, domain.ErrSkuNotFound) {
		t.Fatalf("Expected ErrSkuNotFound from catalog, got: %v", err)
	}
}

func TestCartService_UpdateQuantity(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cart, err := f.svc.UpdateQuantity(ctx, "shopper-1", "TSHIRT-M-BLUE", 6)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cart.Items[0].Quantity != 6 {
		t.Errorf("Expected quantity 6, got %d", cart.Items[0].Quantity)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 6 {
		t.Errorf("Expected ledger reserved 6 after increase, got %d", got)
	}

	cart, err = f.svc.UpdateQuantity(ctx, "shopper-1", "TSHIRT-M-BLUE", 1)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cart.Items[0].Quantity != 1 {
		t.Errorf("Expected quantity 1, got %d", cart.Items[0].Quantity)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 1 {
		t.Errorf("Expected ledger reserved 1 after decrease, got %d", got)
	}

	// 调到 0 等价于移除
	cart, err = f.svc.UpdateQuantity(ctx, "shopper-1", "TSHIRT-M-BLUE", 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !cart.IsEmpty() {
		t.Error("Expected the line to be removed at quantity 0")
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 0 {
		t.Errorf("Expected ledger reserved 0, got %d", got)
	}
}

func TestCartService_UpdateQuantity_NotInCart(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))

	_, err := f.svc.UpdateQuantity(context.Background(), "shopper-1", "TSHIRT-M-BLUE", 2)
	if !errors.Is(err, domain.ErrItemNotInCart) {
		t.Fatalf("Expected ErrItemNotInCart, got: %v", err)
	}
}

func TestCartService_UpdateQuantity_InsufficientForIncrease(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 3))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := f.svc.UpdateQuantity(ctx, "shopper-1", "TSHIRT-M-BLUE", 5); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got: %v", err)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 2 {
		t.Errorf("Failed increase must keep the old hold, got %d", got)
	}
}

func TestCartService_RemoveItem(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10), stockRecord("JEANS-32-BLACK", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := f.svc.AddItem(ctx, "shopper-1", "JEANS-32-BLACK", 1); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cart, err := f.svc.RemoveItem(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].SKU != "JEANS-32-BLACK" {
		t.Fatalf("Expected only the jeans to remain, got %+v", cart.Items)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 0 {
		t.Errorf("Expected released reservation, got %d", got)
	}
	hold, _ := f.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if hold != nil {
		t.Error("Expected the hold to be deleted")
	}
}

func TestCartService_ClearCart(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10), stockRecord("JEANS-32-BLACK", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := f.svc.AddItem(ctx, "shopper-1", "JEANS-32-BLACK", 3); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := f.svc.ClearCart(ctx, "shopper-1"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cart, _ := f.svc.GetCart(ctx, "shopper-1")
	if !cart.IsEmpty() {
		t.Error("Expected an empty cart after clearing")
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 0 {
		t.Errorf("Expected all reservations released, got %d", got)
	}
	if got := f.reserved(t, "JEANS-32-BLACK"); got != 0 {
		t.Errorf("Expected all reservations released, got %d", got)
	}
}

func TestCartService_ApplyPromo(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()
	f.promos.codes["SUMMER10"] = decimal.NewFromInt(10)

	if _, err := f.svc.ApplyPromo(ctx, "shopper-1", "SUMMER10"); !errors.Is(err, domain.ErrCartEmpty) {
		t.Fatalf("Expected ErrCartEmpty, got: %v", err)
	}

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cart, err := f.svc.ApplyPromo(ctx, "shopper-1", "SUMMER10")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cart.PromoCode != "SUMMER10" {
		t.Errorf("Expected promo code on cart, got %q", cart.PromoCode)
	}
	if !cart.Discount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected discount 10, got %s", cart.Discount)
	}

	if _, err := f.svc.ApplyPromo(ctx, "shopper-1", "BOGUS"); !errors.Is(err, domain.ErrPromoRejected) {
		t.Fatalf("Expected ErrPromoRejected, got: %v", err)
	}
}

func TestCartService_ConfirmForCheckout_HoldsIntact(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cart, err := f.svc.ConfirmForCheckout(ctx, "shopper-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("Expected the cart snapshot, got %+v", cart.Items)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 2 {
		t.Errorf("Intact holds must not grow the reservation, got %d", got)
	}
}

func TestCartService_ConfirmForCheckout_ReacquiresSweptHold(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 3); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// 清扫器跑过：预留被删掉并还回台账。
	f.sweep(t, time.Now().Add(16*time.Minute))
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 0 {
		t.Fatalf("Expected sweep to release the hold, got %d", got)
	}

	if _, err := f.svc.ConfirmForCheckout(ctx, "shopper-1"); err != nil {
		t.Fatalf("Expected re-reserve to succeed, got: %v", err)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 3 {
		t.Errorf("Expected the full line re-reserved, got %d", got)
	}
	hold, _ := f.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if hold == nil || hold.Quantity != 3 || hold.Expired(time.Now()) {
		t.Fatalf("Expected a fresh hold for 3, got %+v", hold)
	}
}

// 预留已过期但清扫器还没跑到：旧的占用必须先还回去再补占，
// 否则台账会永久多算一份预留。
func TestCartService_ConfirmForCheckout_LapsedHoldKeepsLedgerConserved(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 4); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// 把预留改成已过期，但不触发清扫。
	now := time.Now()
	if err := f.holds.Put(ctx, &domain.Reservation{
		ShopperID: "shopper-1",
		SKU:       "TSHIRT-M-BLUE",
		Quantity:  4,
		CreatedAt: now.Add(-20 * time.Minute),
		ExpiresAt: now.Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := f.svc.ConfirmForCheckout(ctx, "shopper-1"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 4 {
		t.Errorf("Expected reserved to stay at 4, got %d", got)
	}
	hold, _ := f.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if hold == nil || hold.Expired(time.Now()) {
		t.Fatalf("Expected the hold to be refreshed, got %+v", hold)
	}
}

func TestCartService_ConfirmForCheckout_StockGone(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 3))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 3); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// 预留过期被清扫，随后另一个买家把剩余库存占走。
	f.sweep(t, time.Now().Add(16*time.Minute))
	if _, err := f.svc.AddItem(ctx, "shopper-2", "TSHIRT-M-BLUE", 3); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err := f.svc.ConfirmForCheckout(ctx, "shopper-1")
	if !errors.Is(err, domain.ErrReservationMissing) {
		t.Fatalf("Expected ErrReservationMissing, got: %v", err)
	}
}

func TestCartService_ConfirmForCheckout_EmptyCart(t *testing.T) {
	f := newCartFixture(t)

	if _, err := f.svc.ConfirmForCheckout(context.Background(), "shopper-1"); !errors.Is(err, domain.ErrCartEmpty) {
		t.Fatalf("Expected ErrCartEmpty, got: %v", err)
	}
}

// 预留被清扫后移除该行：份额已经还回台账，不能二次释放，
// 否则会吃掉别的买家占着的预留。
func TestCartService_RemoveItem_AfterSweepKeepsOtherHolds(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 4); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	f.sweep(t, time.Now().Add(16*time.Minute))
	if _, err := f.svc.AddItem(ctx, "shopper-2", "TSHIRT-M-BLUE", 5); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := f.svc.RemoveItem(ctx, "shopper-1", "TSHIRT-M-BLUE"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 5 {
		t.Errorf("Expected the other shopper's hold untouched, got %d", got)
	}
}

func TestCartService_ClearCart_AfterSweepKeepsOtherHolds(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 4); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	f.sweep(t, time.Now().Add(16*time.Minute))
	if _, err := f.svc.AddItem(ctx, "shopper-2", "TSHIRT-M-BLUE", 5); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := f.svc.ClearCart(ctx, "shopper-1"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 5 {
		t.Errorf("Expected the other shopper's hold untouched, got %d", got)
	}
}

// 预留被清扫后再改数量：差额按台账上真正占着的份额算，整份补占。
func TestCartService_UpdateQuantity_AfterSweepRechargesFully(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 5); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	f.sweep(t, time.Now().Add(16*time.Minute))

	cart, err := f.svc.UpdateQuantity(ctx, "shopper-1", "TSHIRT-M-BLUE", 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cart.Items[0].Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", cart.Items[0].Quantity)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 2 {
		t.Errorf("Expected the new quantity fully re-reserved, got %d", got)
	}
	hold, _ := f.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if hold == nil || hold.Quantity != 2 || hold.Expired(time.Now()) {
		t.Fatalf("Expected a fresh hold for 2, got %+v", hold)
	}
}

func TestCartService_AddItem_AfterSweepRechargesFully(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 10))
	ctx := context.Background()

	if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 3); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	f.sweep(t, time.Now().Add(16*time.Minute))

	cart, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cart.Items[0].Quantity != 5 {
		t.Errorf("Expected merged quantity 5, got %d", cart.Items[0].Quantity)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != 5 {
		t.Errorf("Expected the whole line re-reserved, got %d", got)
	}
}

// 连点加购必须串行化：购物车行数、预留、持有三者对得上，不能漏占也不能多占。
func TestCartService_AddItem_ConcurrentDoubleClick(t *testing.T) {
	f := newCartFixture(t, stockRecord("TSHIRT-M-BLUE", 50))
	ctx := context.Background()

	const clicks = 20
	var wg sync.WaitGroup
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.AddItem(ctx, "shopper-1", "TSHIRT-M-BLUE", 1); err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		}()
	}
	wg.Wait()

	cart, err := f.svc.GetCart(ctx, "shopper-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	line := cart.FindItem("TSHIRT-M-BLUE")
	if line == nil || line.Quantity != clicks {
		t.Fatalf("Expected a single line with quantity %d, got: %+v", clicks, cart.Items)
	}
	if got := f.reserved(t, "TSHIRT-M-BLUE"); got != clicks {
		t.Errorf("Expected %d reserved, got %d", clicks, got)
	}
	hold, err := f.holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if hold == nil || hold.Quantity != clicks {
		t.Errorf("Expected a hold covering %d units, got: %+v", clicks, hold)
	}
}
