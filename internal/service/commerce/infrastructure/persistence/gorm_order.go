package persistence

import (
	"context"
	"errors"
	"time"

	"atelier/internal/service/commerce/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 在一个事务里写入订单头、商品行和首条轨迹记录。
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(FromDomainOrder(order)).Error; err != nil {
			return err
		}
		initial := &OrderTrackingModel{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			Status:    string(order.Status),
			Notes:     "Order placed",
			UpdatedBy: "system",
			CreatedAt: order.CreatedAt,
		}
		return tx.Create(initial).Error
	})
}

// Save 带版本条件写回订单头。商品行在下单后不可变，不参与更新。
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	now := time.Now()
	updateData := map[string]interface{}{
		"status":              string(order.Status),
		"transaction_id":      order.TransactionID,
		"tracking_number":     order.TrackingNumber,
		"cancellation_reason": order.CancellationReason,
		"shipped_at":          order.ShippedAt,
		"delivered_at":        order.DeliveredAt,
		"cancelled_at":        order.CancelledAt,
		"version":             expectedVersion + 1,
		"updated_at":          now,
	}
	res := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ? AND version = ?", order.ID, expectedVersion).
		Updates(updateData)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	order.Version = expectedVersion + 1
	order.UpdatedAt = now
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return ToDomainOrder(&model), nil
}

func (r *GormOrderRepository) List(ctx context.Context, query domain.ListOrdersQuery) ([]*domain.Order, error) {
	tx := r.db.WithContext(ctx).Model(&OrderModel{}).Preload("Items")
	if query.ShopperID != "" {
		tx = tx.Where("shopper_id = ?", query.ShopperID)
	}
	if query.Status != "" {
		tx = tx.Where("status = ?", string(query.Status))
	}

	var models []OrderModel
	err := tx.Order("created_at DESC").
		Offset(query.Offset).
		Limit(query.Limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, ToDomainOrder(&models[i]))
	}
	return orders, nil
}

func (r *GormOrderRepository) AppendTracking(ctx context.Context, entry *domain.TrackingEntry) error {
	return r.db.WithContext(ctx).Create(FromDomainTracking(entry)).Error
}

func (r *GormOrderRepository) ListTracking(ctx context.Context, orderID string) ([]*domain.TrackingEntry, error) {
	var models []OrderTrackingModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	entries := make([]*domain.TrackingEntry, 0, len(models))
	for i := range models {
		entries = append(entries, ToDomainTracking(&models[i]))
	}
	return entries, nil
}
