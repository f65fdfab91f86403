package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"atelier/internal/service/commerce/domain"

	"github.com/google/uuid"
)

// MemoryInventoryRepository 是 InventoryRepository 的进程内实现，
// 本地开发与测试用，版本语义和 GORM 实现保持一致。
type MemoryInventoryRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.InventoryRecord
}

func NewMemoryInventoryRepository() *MemoryInventoryRepository {
	return &MemoryInventoryRepository{records: make(map[string]*domain.InventoryRecord)}
}

func (r *MemoryInventoryRepository) Load(ctx context.Context, sku string) (*domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[sku]
	if !ok {
		return nil, domain.ErrSkuNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *MemoryInventoryRepository) Save(ctx context.Context, record *domain.InventoryRecord, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.records[record.SKU]
	if !ok {
		return domain.ErrSkuNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	clone := *record
	clone.Version = expectedVersion + 1
	clone.UpdatedAt = time.Now()
	r.records[record.SKU] = &clone
	record.Version = clone.Version
	record.UpdatedAt = clone.UpdatedAt
	return nil
}

func (r *MemoryInventoryRepository) Create(ctx context.Context, record *domain.InventoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.SKU]; exists {
		return domain.ErrSkuAlreadyExists
	}
	clone := *record
	r.records[record.SKU] = &clone
	return nil
}

func (r *MemoryInventoryRepository) ListLowStock(ctx context.Context) ([]*domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.InventoryRecord
	for _, record := range r.records {
		if record.Lifecycle == domain.LifecycleArchived {
			continue
		}
		if record.IsLowStock() {
			clone := *record
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	return result, nil
}

// MemoryOrderRepository 是 OrderRepository 的进程内实现。
type MemoryOrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	tracking map[string][]*domain.TrackingEntry
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:   make(map[string]*domain.Order),
		tracking: make(map[string][]*domain.TrackingEntry),
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	clone := *o
	clone.Items = append([]domain.OrderItem(nil), o.Items...)
	return &clone
}

func (r *MemoryOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	initial := &domain.TrackingEntry{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		Status:    order.Status,
		Notes:     "Order placed",
		UpdatedBy: "system",
		CreatedAt: order.CreatedAt,
	}
	r.tracking[order.ID] = append(r.tracking[order.ID], initial)
	return nil
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	clone := cloneOrder(order)
	clone.Version = expectedVersion + 1
	clone.UpdatedAt = time.Now()
	r.orders[order.ID] = clone
	order.Version = clone.Version
	order.UpdatedAt = clone.UpdatedAt
	return nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *MemoryOrderRepository) List(ctx context.Context, query domain.ListOrdersQuery) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*domain.Order
	for _, order := range r.orders {
		if query.ShopperID != "" && order.ShopperID != query.ShopperID {
			continue
		}
		if query.Status != "" && order.Status != query.Status {
			continue
		}
		all = append(all, cloneOrder(order))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if query.Offset >= len(all) {
		return []*domain.Order{}, nil
	}
	all = all[query.Offset:]
	if query.Limit > 0 && query.Limit < len(all) {
		all = all[:query.Limit]
	}
	return all, nil
}

func (r *MemoryOrderRepository) AppendTracking(ctx context.Context, entry *domain.TrackingEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *entry
	r.tracking[entry.OrderID] = append(r.tracking[entry.OrderID], &clone)
	return nil
}

func (r *MemoryOrderRepository) ListTracking(ctx context.Context, orderID string) ([]*domain.TrackingEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.tracking[orderID]
	result := make([]*domain.TrackingEntry, 0, len(entries))
	for _, e := range entries {
		clone := *e
		result = append(result, &clone)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// MemoryReturnRepository 是 ReturnRepository 的进程内实现。
type MemoryReturnRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.ReturnRequest
	byOrder map[string]string
}

func NewMemoryReturnRepository() *MemoryReturnRepository {
	return &MemoryReturnRepository{
		byID:    make(map[string]*domain.ReturnRequest),
		byOrder: make(map[string]string),
	}
}

func (r *MemoryReturnRepository) Create(ctx context.Context, req *domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOrder[req.OrderID]; exists {
		return domain.ErrReturnAlreadyRequested
	}
	clone := *req
	r.byID[req.ID] = &clone
	r.byOrder[req.OrderID] = req.ID
	return nil
}

func (r *MemoryReturnRepository) FindByID(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrReturnNotFound
	}
	clone := *req
	return &clone, nil
}

func (r *MemoryReturnRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.ReturnRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, nil
	}
	clone := *r.byID[id]
	return &clone, nil
}

func (r *MemoryReturnRepository) Update(ctx context.Context, req *domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[req.ID]; !ok {
		return domain.ErrReturnNotFound
	}
	clone := *req
	r.byID[req.ID] = &clone
	return nil
}
