package application

import (
	"context"
	"testing"
	"time"

	"atelier/internal/pkg/keylock"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/infrastructure/persistence"
	"atelier/internal/service/commerce/infrastructure/store"

	"go.opentelemetry.io/otel"
)

func TestReservationSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewMemoryInventoryRepository()
	if err := repo.Create(ctx, stockRecord("TSHIRT-M-BLUE", 10)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	ledger := NewInventoryLedger(repo, keylock.New(), otel.Tracer("test"))
	holds := store.NewMemoryReservationStore()

	now := time.Now()
	// 一条已过期、一条还活着的预留，各自在台账上有对应的占用。
	if err := ledger.Reserve(ctx, "TSHIRT-M-BLUE", 3); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := holds.Put(ctx, &domain.Reservation{
		ShopperID: "shopper-1", SKU: "TSHIRT-M-BLUE", Quantity: 3,
		CreatedAt: now.Add(-30 * time.Minute), ExpiresAt: now.Add(-15 * time.Minute),
	}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := ledger.Reserve(ctx, "TSHIRT-M-BLUE", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := holds.Put(ctx, &domain.Reservation{
		ShopperID: "shopper-2", SKU: "TSHIRT-M-BLUE", Quantity: 2,
		CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sweeper := NewReservationSweeper(holds, ledger, time.Minute, otel.Tracer("test"))
	sweeper.sweepOnce(ctx)

	record, err := repo.Load(ctx, "TSHIRT-M-BLUE")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if record.ReservedQuantity != 2 {
		t.Errorf("Expected only the live hold to remain reserved, got %d", record.ReservedQuantity)
	}

	if gone, _ := holds.Get(ctx, "shopper-1", "TSHIRT-M-BLUE"); gone != nil {
		t.Error("Expected the expired hold to be deleted")
	}
	if live, _ := holds.Get(ctx, "shopper-2", "TSHIRT-M-BLUE"); live == nil {
		t.Error("Expected the live hold to survive the sweep")
	}
}

func TestReservationSweeper_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := persistence.NewMemoryInventoryRepository()
	if err := repo.Create(ctx, stockRecord("TSHIRT-M-BLUE", 10)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	ledger := NewInventoryLedger(repo, keylock.New(), otel.Tracer("test"))
	holds := store.NewMemoryReservationStore()

	now := time.Now()
	if err := ledger.Reserve(ctx, "TSHIRT-M-BLUE", 4); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := holds.Put(ctx, &domain.Reservation{
		ShopperID: "shopper-1", SKU: "TSHIRT-M-BLUE", Quantity: 4,
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sweeper := NewReservationSweeper(holds, ledger, 10*time.Millisecond, otel.Tracer("test"))
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		record, err := repo.Load(context.Background(), "TSHIRT-M-BLUE")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if record.ReservedQuantity == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Sweeper did not release the expired hold in time, reserved %d", record.ReservedQuantity)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	sweeper.Stop(stopCtx)
}
