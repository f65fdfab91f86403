// internal/service/commerce/domain/reservation.go
package domain

import "time"

// Reservation 是一条带 TTL 的库存预留，按 (买家, SKU) 唯一。
// 它只是台账之外的一份占用凭据：台账上的 ReservedQuantity 才是权威数字。
type Reservation struct {
	ShopperID string    `json:"shopperId"`
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired 判断预留在 now 时刻是否已过期。
func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
