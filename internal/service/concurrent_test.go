package service_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

// TestConcurrentBalanceDeduction simulates 50 goroutines simultaneously
// reserving a fixed amount against a shared balance — protected by a mutex.
// This test verifies our concurrency guard pattern compiles and passes -race.
//
// In UserRepository.Lock, the DB row-level FOR UPDATE lock provides this
// guarantee. Here we replicate the same guard with sync primitives so the
// race detector can confirm the pattern is sound.
func TestConcurrentBalanceDeduction(t *testing.T) {
	const workers = 50
	const amountEach = 10 // PRC per order

	balance := decimal.NewFromInt(int64(workers * amountEach)) // exact total
	var mu sync.Mutex
	var failedReservations int64 // reservations rejected for insufficient balance (zero expected)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			amount := decimal.NewFromInt(amountEach)

			mu.Lock()
			defer mu.Unlock()

			if balance.LessThan(amount) {
				atomic.AddInt64(&failedReservations, 1)
				return
			}
			balance = balance.Sub(amount)
		}(i)
	}
	wg.Wait()

	// All reservations should succeed: no failures expected.
	if failedReservations > 0 {
		t.Errorf("expected 0 failed reservations, got %d", failedReservations)
	}
	// Balance should be exactly 0 after exactly 50 × 10 deductions.
	if !balance.IsZero() {
		t.Errorf("final balance should be 0, got %s", balance)
	}
}

// TestConcurrentIdempotencyGuard verifies that double-spend protection works
// under concurrent access: only one of N goroutines succeeds at settling an order.
func TestConcurrentIdempotencyGuard(t *testing.T) {
	const workers = 20
	type orderState struct {
		mu       sync.Mutex
		settled  bool
	}

	var (
		o      orderState
		wins   int64
		losses int64
		wg     sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			o.mu.Lock()
			defer o.mu.Unlock()

			if o.settled {
				// Second+ call: should be rejected
				atomic.AddInt64(&losses, 1)
				return
			}
			o.settled = true
			atomic.AddInt64(&wins, 1)
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("exactly 1 goroutine should have settled the order, got %d", wins)
	}
	if losses != workers-1 {
		t.Errorf("expected %d rejections, got %d", workers-1, losses)
	}
}
