// internal/service/commerce/application/ledger.go
package application

import (
	"context"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/metrics"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// 同一 SKU 上版本冲突的最大重试次数，超过后以 ErrLockTimeout 上抛。
	saveAttempts = 3
	// 获取 SKU 锁的等待上限。
	lockWaitTimeout = 5 * time.Second
)

// InventoryLedger 是库存数字的唯一权威。
// 所有变更按 SKU 串行化：先拿 SKU 锁，再走加载-修改-带版本保存。
// 锁挡住同进程（或配 ZooKeeper 后跨实例）的并发写，
// 版本号挡住绕过锁的其他写入方。
type InventoryLedger struct {
	repo   domain.InventoryRepository
	locker port.ResourceLocker
	tracer trace.Tracer
}

func NewInventoryLedger(repo domain.InventoryRepository, locker port.ResourceLocker, tracer trace.Tracer) *InventoryLedger {
	return &InventoryLedger{repo: repo, locker: locker, tracer: tracer}
}

// mutate 在 SKU 锁内执行一次加载-修改-保存，版本冲突时重试。
func (l *InventoryLedger) mutate(ctx context.Context, sku string, apply func(*domain.InventoryRecord) error) (*domain.InventoryRecord, error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockWaitTimeout)
	defer cancel()

	release, err := l.locker.Acquire(lockCtx, "sku:"+sku)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrLockTimeout, "sku %s", sku)
	}
	defer release()

	for attempt := 0; attempt < saveAttempts; attempt++ {
		record, err := l.repo.Load(ctx, sku)
		if err != nil {
			return nil, err
		}
		if err := apply(record); err != nil {
			return nil, err
		}

		err = l.repo.Save(ctx, record, record.Version)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		logger.Ctx(ctx).Warn().Str("sku", sku).Int("attempt", attempt+1).Msg("Version conflict on inventory save, retrying")
	}
	return nil, errors.Wrapf(domain.ErrLockTimeout, "sku %s: gave up after %d version conflicts", sku, saveAttempts)
}

// Reserve 为购物车预留 qty 件库存。
// 可售量不足时拒绝，这是防超卖的唯一关口。
func (l *InventoryLedger) Reserve(ctx context.Context, sku string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku), attribute.Int("quantity", qty))

	record, err := l.mutate(ctx, sku, func(r *domain.InventoryRecord) error {
		if err := r.Reserve(qty); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				return errors.Wrapf(err, "sku %s: requested %d, available %d", sku, qty, r.Available())
			}
			return errors.Wrapf(err, "sku %s", sku)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			metrics.OversellRejectionsTotal.Inc()
			metrics.ReservationsTotal.WithLabelValues("rejected").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return err
	}

	metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	logger.Ctx(ctx).Info().Str("sku", sku).Int("quantity", qty).Int("available", record.Available()).Msg("Stock reserved")
	return nil
}

// Release 归还 qty 件预留。超量释放被钳制到零：
// 预留过期后的清扫和结算可能对同一预留各释放一次，这不是错误。
func (l *InventoryLedger) Release(ctx context.Context, sku string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Release")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku), attribute.Int("quantity", qty))

	_, err := l.mutate(ctx, sku, func(r *domain.InventoryRecord) error {
		return r.Release(qty)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return errors.Wrapf(err, "release sku %s", sku)
	}

	metrics.ReservationsTotal.WithLabelValues("released").Inc()
	logger.Ctx(ctx).Info().Str("sku", sku).Int("quantity", qty).Msg("Reservation released")
	return nil
}

// Confirm 在结算时把预留转为实际扣减。
func (l *InventoryLedger) Confirm(ctx context.Context, sku string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku), attribute.Int("quantity", qty))

	record, err := l.mutate(ctx, sku, func(r *domain.InventoryRecord) error {
		return r.ConfirmDeduction(qty)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return errors.Wrapf(err, "confirm sku %s", sku)
	}

	metrics.ReservationsTotal.WithLabelValues("confirmed").Inc()
	logger.Ctx(ctx).Info().Str("sku", sku).Int("quantity", qty).Int("remaining", record.Quantity).Msg("Reservation confirmed, stock deducted")
	if record.IsLowStock() {
		logger.Ctx(ctx).Warn().Str("sku", sku).Int("available", record.Available()).Int("threshold", record.LowStockThreshold).Msg("SKU is low on stock")
		span.AddEvent("low stock after confirm")
	}
	return nil
}

// Reinstate 是 Confirm 的精确逆操作，仅由结算补偿调用：
// 把一个已确认的行恢复为确认前的预留状态。
func (l *InventoryLedger) Reinstate(ctx context.Context, sku string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Reinstate")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku), attribute.Int("quantity", qty))

	_, err := l.mutate(ctx, sku, func(r *domain.InventoryRecord) error {
		return r.ReinstateDeduction(qty)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reinstate failed")
		return errors.Wrapf(err, "reinstate sku %s", sku)
	}

	logger.Ctx(ctx).Info().Str("sku", sku).Int("quantity", qty).Msg("Confirmed deduction reinstated")
	return nil
}

// AdjustStock 人工校正持有量。delta 可正可负，reason 必填并留审计日志。
func (l *InventoryLedger) AdjustStock(ctx context.Context, sku string, delta int, reason string) (*domain.InventoryRecord, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.AdjustStock")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku), attribute.Int("delta", delta), attribute.String("reason", reason))

	if reason == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "adjustment reason is required")
	}

	record, err := l.mutate(ctx, sku, func(r *domain.InventoryRecord) error {
		if err := r.AdjustQuantity(delta); err != nil {
			return errors.Wrapf(err, "sku %s: quantity %d, reserved %d, delta %d", sku, r.Quantity, r.ReservedQuantity, delta)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "adjust failed")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("sku", sku).
		Int("delta", delta).
		Int("quantity", record.Quantity).
		Str("reason", reason).
		Msg("Stock adjusted")
	span.AddEvent("stock adjusted")
	return record, nil
}

// GetRecord 读取单条库存记录。
func (l *InventoryLedger) GetRecord(ctx context.Context, sku string) (*domain.InventoryRecord, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.GetRecord")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku))

	record, err := l.repo.Load(ctx, sku)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return record, nil
}

// GetLowStock 返回可售量已降到阈值之下的全部 SKU。
func (l *InventoryLedger) GetLowStock(ctx context.Context) ([]*domain.InventoryRecord, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.GetLowStock")
	defer span.End()

	records, err := l.repo.ListLowStock(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(records)))
	return records, nil
}

// CreateRecord 管理端入库一个新 SKU。
func (l *InventoryLedger) CreateRecord(ctx context.Context, record *domain.InventoryRecord) error {
	ctx, span := l.tracer.Start(ctx, "ledger.CreateRecord")
	defer span.End()
	span.SetAttributes(attribute.String("sku", record.SKU))

	if record.SKU == "" || record.ProductID == "" {
		return errors.Wrap(domain.ErrInvalidRequest, "sku and productId are required")
	}
	if record.Quantity < 0 {
		return errors.Wrap(domain.ErrInvalidRequest, "initial quantity must not be negative")
	}
	if record.LowStockThreshold <= 0 {
		record.LowStockThreshold = 10
	}
	record.ReservedQuantity = 0
	record.Lifecycle = domain.LifecycleActive
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := l.repo.Create(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return err
	}

	logger.Ctx(ctx).Info().Str("sku", record.SKU).Int("quantity", record.Quantity).Msg("Inventory record created")
	return nil
}

// SetLifecycle 变更 SKU 的售卖生命周期。
func (l *InventoryLedger) SetLifecycle(ctx context.Context, sku string, to domain.Lifecycle) (*domain.InventoryRecord, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.SetLifecycle")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku), attribute.String("lifecycle", string(to)))

	record, err := l.mutate(ctx, sku, func(r *domain.InventoryRecord) error {
		if err := r.ChangeLifecycle(to); err != nil {
			return errors.Wrapf(err, "sku %s: %s -> %s", sku, r.Lifecycle, to)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lifecycle change failed")
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("sku", sku).Str("lifecycle", string(to)).Msg("SKU lifecycle changed")
	return record, nil
}
