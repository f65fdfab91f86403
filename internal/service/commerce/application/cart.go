// internal/service/commerce/application/cart.go
package application

import (
	"context"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CartService 管理购物车及其背后的库存预留。
// 不变式：购物车里的每一行都对应一条同数量的预留（直到预留过期）。
// 同一买家的并发操作用锁串行化，防止连点把预留和行数量打岔。
type CartService struct {
	ledger  *InventoryLedger
	carts   domain.CartStore
	holds   domain.ReservationStore
	catalog port.CatalogService
	promos  port.PromotionService
	locker  port.ResourceLocker

	holdTTL time.Duration
	tracer  trace.Tracer
}

func NewCartService(
	ledger *InventoryLedger,
	carts domain.CartStore,
	holds domain.ReservationStore,
	catalog port.CatalogService,
	promos port.PromotionService,
	locker port.ResourceLocker,
	holdTTL time.Duration,
	tracer trace.Tracer,
) *CartService {
	return &CartService{
		ledger: ledger, carts: carts, holds: holds,
		catalog: catalog, promos: promos, locker: locker,
		holdTTL: holdTTL, tracer: tracer,
	}
}

func (s *CartService) lockCart(ctx context.Context, shopperID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockWaitTimeout)
	defer cancel()
	release, err := s.locker.Acquire(lockCtx, "cart:"+shopperID)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrLockTimeout, "cart %s", shopperID)
	}
	return release, nil
}

// AddItem 把 SKU 加入购物车并同步预留库存。
// 商品已在车里时数量累加，预留续期并更新到新总量。
func (s *CartService) AddItem(ctx context.Context, shopperID, sku string, qty int) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem")
	defer span.End()
	span.SetAttributes(attribute.String("shopper.id", shopperID), attribute.String("sku", sku), attribute.Int("quantity", qty))

	if shopperID == "" || sku == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "shopperId and sku are required")
	}
	if qty <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidQuantity, "quantity %d", qty)
	}

	release, err := s.lockCart(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	defer release()

	// 商品信息来自目录服务，购物车里存的是下单时刻的快照。
	product, err := s.catalog.GetProduct(ctx, sku)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cart, err := s.carts.Load(ctx, shopperID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 台账上真正占着的份额以持有记录为准。该行的预留可能已经被清扫
	// 还回台账，这时要按新总量整份补占，只占增量会让后续扣减吃掉
	// 别的买家的预留。
	hold, err := s.holds.Get(ctx, shopperID, sku)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	charged := 0
	if hold != nil {
		charged = hold.Quantity
	}
	newTotal := qty
	if line := cart.FindItem(sku); line != nil {
		newTotal = line.Quantity + qty
	}

	need := newTotal - charged
	if need > 0 {
		if err := s.ledger.Reserve(ctx, sku, need); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Reserve failed")
			return nil, err
		}
	}

	now := time.Now()
	line := cart.FindItem(sku)
	if line == nil {
		cart.Items = append(cart.Items, domain.CartItem{
			SKU:         product.SKU,
			ProductID:   product.ProductID,
			ProductName: product.Name,
			Size:        product.Size,
			Color:       product.Color,
			UnitPrice:   product.UnitPrice,
			Quantity:    qty,
			AddedAt:     now,
		})
		line = cart.FindItem(sku)
	} else {
		line.Quantity += qty
	}

	if err := s.syncHoldAndSave(ctx, cart, line.SKU, line.Quantity, now); err != nil {
		// 预留已经占上，车却没存进去，把刚占的份额还回去。
		if need > 0 {
			if relErr := s.ledger.Release(ctx, sku, need); relErr != nil {
				logger.Ctx(ctx).Error().Err(relErr).Str("sku", sku).Int("quantity", need).
					Msg("CRITICAL: failed to release reservation after cart save failure")
			}
		}
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("shopperId", shopperID).
		Str("sku", sku).
		Int("quantity", line.Quantity).
		Msg("Item added to cart")
	return cart, nil
}

// UpdateQuantity 把购物车行调到新数量，预留差额同步补占或释放。
// newQty 为 0 等价于移除该行。
func (s *CartService) UpdateQuantity(ctx context.Context, shopperID, sku string, newQty int) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.UpdateQuantity")
	defer span.End()
	span.SetAttributes(attribute.String("shopper.id", shopperID), attribute.String("sku", sku), attribute.Int("quantity", newQty))

	if newQty < 0 {
		return nil, errors.Wrapf(domain.ErrInvalidQuantity, "quantity %d", newQty)
	}
	if newQty == 0 {
		return s.RemoveItem(ctx, shopperID, sku)
	}

	release, err := s.lockCart(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.carts.Load(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	line := cart.FindItem(sku)
	if line == nil {
		return nil, errors.Wrapf(domain.ErrItemNotInCart, "sku %s", sku)
	}

	// 差额按台账上真正占着的份额算，预留被清扫过的行要整份补占。
	hold, err := s.holds.Get(ctx, shopperID, sku)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	charged := 0
	if hold != nil {
		charged = hold.Quantity
	}

	delta := newQty - charged
	switch {
	case delta > 0:
		if err := s.ledger.Reserve(ctx, sku, delta); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Reserve failed")
			return nil, err
		}
	case delta < 0:
		if err := s.ledger.Release(ctx, sku, -delta); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	oldQty := line.Quantity
	line.Quantity = newQty
	now := time.Now()
	if err := s.syncHoldAndSave(ctx, cart, sku, newQty, now); err != nil {
		// 台账上的差额已经动过，尽力还原。
		if delta > 0 {
			if relErr := s.ledger.Release(ctx, sku, delta); relErr != nil {
				logger.Ctx(ctx).Error().Err(relErr).Str("sku", sku).Msg("CRITICAL: failed to revert reservation delta after cart save failure")
			}
		} else if delta < 0 {
			if resErr := s.ledger.Reserve(ctx, sku, -delta); resErr != nil {
				logger.Ctx(ctx).Error().Err(resErr).Str("sku", sku).Msg("CRITICAL: failed to revert release delta after cart save failure")
			}
		}
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("shopperId", shopperID).
		Str("sku", sku).
		Int("from", oldQty).
		Int("to", newQty).
		Msg("Cart quantity updated")
	return cart, nil
}

// RemoveItem 移除购物车行并释放它的预留。
func (s *CartService) RemoveItem(ctx context.Context, shopperID, sku string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem")
	defer span.End()
	span.SetAttributes(attribute.String("shopper.id", shopperID), attribute.String("sku", sku))

	release, err := s.lockCart(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.carts.Load(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	line := cart.FindItem(sku)
	if line == nil {
		return nil, errors.Wrapf(domain.ErrItemNotInCart, "sku %s", sku)
	}

	// 只释放台账上真正占着的份额。预留被清扫过的行不能再释放，
	// 那份占用已经还回台账，二次释放会吃掉别的买家的预留。
	hold, err := s.holds.Get(ctx, shopperID, sku)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if hold != nil {
		if err := s.ledger.Release(ctx, sku, hold.Quantity); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("sku", sku).Msg("Failed to release reservation while removing cart line")
		}
		if err := s.holds.Delete(ctx, shopperID, sku); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("sku", sku).Msg("Failed to delete reservation while removing cart line")
		}
	}

	cart.RemoveItem(sku)
	cart.UpdatedAt = time.Now()
	if err := s.saveOrDelete(ctx, cart); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("shopperId", shopperID).Str("sku", sku).Msg("Item removed from cart")
	return cart, nil
}

// GetCart 读取购物车，从未建车的买家得到一辆空车。
func (s *CartService) GetCart(ctx context.Context, shopperID string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.GetCart")
	defer span.End()
	span.SetAttributes(attribute.String("shopper.id", shopperID))

	return s.carts.Load(ctx, shopperID)
}

// ClearCart 清空购物车，释放全部预留。
func (s *CartService) ClearCart(ctx context.Context, shopperID string) error {
	ctx, span := s.tracer.Start(ctx, "cart.ClearCart")
	defer span.End()
	span.SetAttributes(attribute.String("shopper.id", shopperID))

	release, err := s.lockCart(ctx, shopperID)
	if err != nil {
		return err
	}
	defer release()

	cart, err := s.carts.Load(ctx, shopperID)
	if err != nil {
		return err
	}

	for _, item := range cart.Items {
		hold, err := s.holds.Get(ctx, shopperID, item.SKU)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("sku", item.SKU).Msg("Failed to read reservation while clearing cart")
			continue
		}
		if hold == nil {
			// 已被清扫，份额早就还回台账了。
			continue
		}
		if err := s.ledger.Release(ctx, item.SKU, hold.Quantity); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("sku", item.SKU).Msg("Failed to release reservation while clearing cart")
		}
	}
	if err := s.holds.DeleteAll(ctx, shopperID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("shopperId", shopperID).Msg("Failed to delete reservations while clearing cart")
	}
	if err := s.carts.Delete(ctx, shopperID); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Ctx(ctx).Info().Str("shopperId", shopperID).Int("lines", len(cart.Items)).Msg("Cart cleared")
	return nil
}

// ApplyPromo 校验优惠码并把折扣记到购物车上。
func (s *CartService) ApplyPromo(ctx context.Context, shopperID, code string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.ApplyPromo")
	defer span.End()
	span.SetAttributes(attribute.String("shopper.id", shopperID), attribute.String("promo.code", code))

	if code == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "promo code is required")
	}

	release, err := s.lockCart(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.carts.Load(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, errors.Wrap(domain.ErrCartEmpty, "cannot apply promo to an empty cart")
	}

	result, err := s.promos.Validate(ctx, code, cart.Subtotal())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Promo validation failed")
		return nil, err
	}

	cart.PromoCode = result.Code
	cart.Discount = result.Discount
	cart.UpdatedAt = time.Now()
	if err := s.carts.Save(ctx, cart); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("shopperId", shopperID).
		Str("promoCode", result.Code).
		Str("discount", result.Discount.String()).
		Msg("Promo applied to cart")
	return cart, nil
}

// ConfirmForCheckout 在结算前核对每一行的预留。
// 预留已过期或被清扫掉的行会当场尝试补占，补不上的行让结算失败，
// 买家会被明确告知哪个商品已经卖完。
func (s *CartService) ConfirmForCheckout(ctx context.Context, shopperID string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.ConfirmForCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("shopper.id", shopperID))

	release, err := s.lockCart(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.carts.Load(ctx, shopperID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, errors.Wrap(domain.ErrCartEmpty, "nothing to check out")
	}

	now := time.Now()
	for i := range cart.Items {
		line := &cart.Items[i]

		hold, err := s.holds.Get(ctx, shopperID, line.SKU)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		held := 0
		if hold != nil && !hold.Expired(now) {
			held = hold.Quantity
		}
		if hold != nil && held == 0 {
			// 过期但还没被清扫的预留仍占着台账，先还回去再补占，台账才守恒。
			if err := s.ledger.Release(ctx, line.SKU, hold.Quantity); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("sku", line.SKU).Msg("Failed to release lapsed reservation before re-reserving")
			}
		}
		missing := line.Quantity - held
		if missing <= 0 {
			continue
		}

		// 机会式补占：预留丢了但库存还够，买家无感知。
		if err := s.ledger.Reserve(ctx, line.SKU, missing); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Re-reserve failed")
			if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrSkuNotSellable) || errors.Is(err, domain.ErrSkuNotFound) {
				return nil, errors.Wrapf(domain.ErrReservationMissing, "product %q (%s)", line.ProductName, line.SKU)
			}
			return nil, err
		}
		if err := s.holds.Put(ctx, &domain.Reservation{
			ShopperID: shopperID,
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			CreatedAt: now,
			ExpiresAt: now.Add(s.holdTTL),
		}); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("sku", line.SKU).Msg("Failed to refresh reservation during checkout confirm")
		}
		logger.Ctx(ctx).Info().
			Str("shopperId", shopperID).
			Str("sku", line.SKU).
			Int("missing", missing).
			Msg("Expired reservation re-acquired during checkout")
	}

	span.AddEvent("All cart lines hold valid reservations")
	return cart, nil
}

// syncHoldAndSave 把某行的预留刷新到给定数量并保存购物车。
func (s *CartService) syncHoldAndSave(ctx context.Context, cart *domain.Cart, sku string, qty int, now time.Time) error {
	if err := s.holds.Put(ctx, &domain.Reservation{
		ShopperID: cart.ShopperID,
		SKU:       sku,
		Quantity:  qty,
		CreatedAt: now,
		ExpiresAt: now.Add(s.holdTTL),
	}); err != nil {
		return errors.Wrapf(err, "put reservation %s/%s", cart.ShopperID, sku)
	}
	cart.UpdatedAt = now
	if err := s.carts.Save(ctx, cart); err != nil {
		return errors.Wrapf(err, "save cart %s", cart.ShopperID)
	}
	return nil
}

// saveOrDelete 空车直接删键，别让空壳占着存储。
func (s *CartService) saveOrDelete(ctx context.Context, cart *domain.Cart) error {
	if cart.IsEmpty() {
		return s.carts.Delete(ctx, cart.ShopperID)
	}
	return s.carts.Save(ctx, cart)
}
