package store

import (
	"context"
	"sync"
	"time"

	"atelier/internal/service/commerce/domain"
)

// MemoryReservationStore 是 ReservationStore 的进程内实现，
// 本地开发与测试用。过期判定交给调用方和 Sweep，和 Redis 实现一致。
type MemoryReservationStore struct {
	mu    sync.RWMutex
	holds map[string]map[string]*domain.Reservation
}

func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{holds: make(map[string]map[string]*domain.Reservation)}
}

func (s *MemoryReservationStore) Put(ctx context.Context, res *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byShopper, ok := s.holds[res.ShopperID]
	if !ok {
		byShopper = make(map[string]*domain.Reservation)
		s.holds[res.ShopperID] = byShopper
	}
	clone := *res
	byShopper[res.SKU] = &clone
	return nil
}

func (s *MemoryReservationStore) Get(ctx context.Context, shopperID, sku string) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.holds[shopperID][sku]
	if !ok {
		return nil, nil
	}
	clone := *res
	return &clone, nil
}

func (s *MemoryReservationStore) Delete(ctx context.Context, shopperID, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holds[shopperID], sku)
	return nil
}

func (s *MemoryReservationStore) DeleteAll(ctx context.Context, shopperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holds, shopperID)
	return nil
}

func (s *MemoryReservationStore) Sweep(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*domain.Reservation
	for shopperID, byShopper := range s.holds {
		for sku, res := range byShopper {
			if res.Expired(now) {
				clone := *res
				expired = append(expired, &clone)
				delete(byShopper, sku)
			}
		}
		if len(byShopper) == 0 {
			delete(s.holds, shopperID)
		}
	}
	return expired, nil
}

// MemoryCartStore 是 CartStore 的进程内实现。
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]*domain.Cart)}
}

func cloneCart(c *domain.Cart) *domain.Cart {
	clone := *c
	clone.Items = append([]domain.CartItem(nil), c.Items...)
	return &clone
}

func (s *MemoryCartStore) Load(ctx context.Context, shopperID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[shopperID]
	if !ok {
		return domain.NewCart(shopperID), nil
	}
	return cloneCart(cart), nil
}

func (s *MemoryCartStore) Save(ctx context.Context, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.ShopperID] = cloneCart(cart)
	return nil
}

func (s *MemoryCartStore) Delete(ctx context.Context, shopperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, shopperID)
	return nil
}
