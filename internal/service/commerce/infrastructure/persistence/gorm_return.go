package persistence

import (
	"context"
	"errors"

	"atelier/internal/service/commerce/domain"

	"gorm.io/gorm"
)

// GormReturnRepository 是 ReturnRepository 的 GORM 实现
type GormReturnRepository struct {
	db *gorm.DB
}

// NewGormReturnRepository 创建一个新的 GORM 仓储实例
func NewGormReturnRepository(db *gorm.DB) *GormReturnRepository {
	return &GormReturnRepository{db: db}
}

// Create 写入退货申请。order_id 的唯一索引兜住并发重复申请。
func (r *GormReturnRepository) Create(ctx context.Context, req *domain.ReturnRequest) error {
	err := r.db.WithContext(ctx).Create(FromDomainReturn(req)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrReturnAlreadyRequested
		}
		return err
	}
	return nil
}

func (r *GormReturnRepository) FindByID(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	var model ReturnRequestModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReturnNotFound
		}
		return nil, err
	}
	return ToDomainReturn(&model), nil
}

// FindByOrderID 按订单查申请，没有时返回 (nil, nil)。
func (r *GormReturnRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.ReturnRequest, error) {
	var model ReturnRequestModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ToDomainReturn(&model), nil
}

func (r *GormReturnRepository) Update(ctx context.Context, req *domain.ReturnRequest) error {
	updateData := map[string]interface{}{
		"status":      string(req.Status),
		"resolved_by": req.ResolvedBy,
		"updated_at":  req.UpdatedAt,
		"resolved_at": req.ResolvedAt,
	}
	return r.db.WithContext(ctx).
		Model(&ReturnRequestModel{}).
		Where("id = ?", req.ID).
		Updates(updateData).Error
}
