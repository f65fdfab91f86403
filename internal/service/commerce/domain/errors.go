// internal/service/commerce/domain/errors.go
package domain

import "errors"

// 领域哨兵错误。基础设施层用 errors.Wrap 附加上下文，
// 接口层用 errors.Is 映射为 HTTP 状态码。
var (
	// 库存台账
	ErrSkuNotFound       = errors.New("sku not found")
	ErrSkuAlreadyExists  = errors.New("sku already exists")
	ErrSkuNotSellable    = errors.New("sku is not sellable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockUnderflow    = errors.New("adjustment would make stock negative or below reserved")
	ErrActiveHoldsRemain = errors.New("sku still has active reservations")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidLifecycle  = errors.New("invalid lifecycle change")

	// 并发控制
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrLockTimeout     = errors.New("could not acquire lock in time")

	// 购物车
	ErrItemNotInCart      = errors.New("item is not in the cart")
	ErrCartEmpty          = errors.New("cart is empty")
	ErrReservationMissing = errors.New("product is no longer available")
	ErrPromoRejected      = errors.New("promo code was rejected")

	// 订单
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentDeclined   = errors.New("payment was declined")
	ErrInvalidRequest    = errors.New("invalid request")

	// 退货
	ErrReturnNotFound         = errors.New("return request not found")
	ErrReturnAlreadyRequested = errors.New("a return request already exists for this order")
	ErrReturnNotAllowed       = errors.New("order is not eligible for return")
)
