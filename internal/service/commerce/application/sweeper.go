// internal/service/commerce/application/sweeper.go
package application

import (
	"context"
	"sync"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/metrics"
	"atelier/internal/service/commerce/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// 单轮清扫里并发归还库存的上限。
const sweepConcurrency = 4

// ReservationSweeper 周期性找出已过期的预留，把占用的份额还给台账。
// 预留主键可能早被存储淘汰，过期索引才是清扫的事实来源。
type ReservationSweeper struct {
	holds    domain.ReservationStore
	ledger   *InventoryLedger
	interval time.Duration
	tracer   trace.Tracer

	wg sync.WaitGroup
}

func NewReservationSweeper(holds domain.ReservationStore, ledger *InventoryLedger, interval time.Duration, tracer trace.Tracer) *ReservationSweeper {
	return &ReservationSweeper{holds: holds, ledger: ledger, interval: interval, tracer: tracer}
}

// Start 启动后台清扫循环，ctx 取消即退出。
func (s *ReservationSweeper) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("Reservation sweeper started")
		for {
			select {
			case <-ctx.Done():
				logger.Ctx(ctx).Info().Msg("Reservation sweeper stopped")
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
	return nil
}

// Stop 等待清扫循环退出。
func (s *ReservationSweeper) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Ctx(ctx).Warn().Msg("Reservation sweeper did not stop in time")
	}
}

func (s *ReservationSweeper) sweepOnce(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "sweeper.Sweep")
	defer span.End()

	expired, err := s.holds.Sweep(ctx, time.Now())
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("Reservation sweep failed")
		return
	}
	if len(expired) == 0 {
		return
	}
	span.SetAttributes(attribute.Int("expired", len(expired)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, hold := range expired {
		hold := hold
		g.Go(func() error {
			if err := s.ledger.Release(gctx, hold.SKU, hold.Quantity); err != nil {
				// 单条失败不拖垮整轮，下一轮清扫不会再看到它，
				// 真丢了份额靠人工盘点找回。
				logger.Ctx(gctx).Warn().Err(err).
					Str("shopperId", hold.ShopperID).
					Str("sku", hold.SKU).
					Int("quantity", hold.Quantity).
					Msg("Failed to release expired reservation")
				return nil
			}
			metrics.SweeperReleasedTotal.Inc()
			return nil
		})
	}
	_ = g.Wait()

	logger.Ctx(ctx).Info().Int("count", len(expired)).Msg("Expired reservations swept")
}
