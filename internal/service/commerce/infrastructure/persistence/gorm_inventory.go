package persistence

import (
	"context"
	"errors"
	"time"

	"atelier/internal/service/commerce/domain"

	"gorm.io/gorm"
)

// GormInventoryRepository 是 InventoryRepository 的 GORM 实现
type GormInventoryRepository struct {
	db *gorm.DB
}

// NewGormInventoryRepository 创建一个新的 GORM 仓储实例
func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

func (r *GormInventoryRepository) Load(ctx context.Context, sku string) (*domain.InventoryRecord, error) {
	var model InventoryItemModel
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSkuNotFound
		}
		return nil, err
	}
	return ToDomainInventory(&model), nil
}

// Save 带版本条件写回。WHERE 里的 version 没匹配上任何行就说明
// 加载之后有别的写入方动过这条记录。
func (r *GormInventoryRepository) Save(ctx context.Context, record *domain.InventoryRecord, expectedVersion int64) error {
	now := time.Now()
	updateData := map[string]interface{}{
		"product_name":        record.ProductName,
		"quantity":            record.Quantity,
		"reserved_quantity":   record.ReservedQuantity,
		"low_stock_threshold": record.LowStockThreshold,
		"lifecycle":           string(record.Lifecycle),
		"version":             expectedVersion + 1,
		"updated_at":          now,
	}
	res := r.db.WithContext(ctx).
		Model(&InventoryItemModel{}).
		Where("sku = ? AND version = ?", record.SKU, expectedVersion).
		Updates(updateData)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	record.Version = expectedVersion + 1
	record.UpdatedAt = now
	return nil
}

func (r *GormInventoryRepository) Create(ctx context.Context, record *domain.InventoryRecord) error {
	err := r.db.WithContext(ctx).Create(FromDomainInventory(record)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrSkuAlreadyExists
		}
		return err
	}
	return nil
}

func (r *GormInventoryRepository) ListLowStock(ctx context.Context) ([]*domain.InventoryRecord, error) {
	var models []InventoryItemModel
	err := r.db.WithContext(ctx).
		Where("lifecycle <> ?", string(domain.LifecycleArchived)).
		Where("quantity - reserved_quantity <= low_stock_threshold").
		Order("sku ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	records := make([]*domain.InventoryRecord, 0, len(models))
	for i := range models {
		records = append(records, ToDomainInventory(&models[i]))
	}
	return records, nil
}
