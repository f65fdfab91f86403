package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := New()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "sku:TSHIRT-M-BLUE")
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
				return
			}
			defer release()
			// 无锁的话这段读改写会互相覆盖
			v := counter
			time.Sleep(100 * time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("Expected counter 50, got %d", counter)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := New()
	ctx := context.Background()

	releaseA, err := m.Acquire(ctx, "sku:A")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer releaseA()

	// 另一个 key 不被挡住
	done := make(chan struct{})
	go func() {
		releaseB, err := m.Acquire(ctx, "sku:B")
		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
			return
		}
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire on an independent key must not block")
	}
}

func TestKeyedMutex_AcquireCancelled(t *testing.T) {
	m := New()

	release, err := m.Acquire(context.Background(), "sku:A")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := m.Acquire(ctx, "sku:A"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestKeyedMutex_ReleaseHandsOver(t *testing.T) {
	m := New()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "sku:A")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release2, err := m.Acquire(ctx, "sku:A")
		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
			return
		}
		release2()
		close(acquired)
	}()

	// 等第二个调用者排上队再放锁
	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Waiter did not get the lock after release")
	}
}

// 条目回收后再次获取同一 key 仍然要工作。
func TestKeyedMutex_ReusableAfterIdle(t *testing.T) {
	m := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		release, err := m.Acquire(ctx, "sku:A")
		if err != nil {
			t.Fatalf("Expected no error on round %d, got: %v", i, err)
		}
		release()
	}

	m.mu.Lock()
	remaining := len(m.locks)
	m.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Expected idle entries to be reclaimed, got %d", remaining)
	}
}
