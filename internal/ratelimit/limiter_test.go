package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestNewRejectsBadWindows(t *testing.T) {
	cases := []struct {
		name    string
		windows []Window
	}{
		{"no windows", nil},
		{"zero size", []Window{{Size: 0, Capacity: 5}}},
		{"zero capacity", []Window{{Size: time.Second, Capacity: 0}}},
		{"negative reserve", []Window{{Size: time.Second, Capacity: 5, Reserve: -1}}},
		{"reserve equals capacity", []Window{{Size: time.Second, Capacity: 5, Reserve: 5}}},
		{"reserve above capacity", []Window{{Size: time.Second, Capacity: 5, Reserve: 6}}},
	}
	for _, tc := range cases {
		if _, err := New("test", tc.windows...); err == nil {
			t.Errorf("%s: expected construction error, got nil", tc.name)
		}
	}
}

func TestAcquireUnderBudgetDoesNotBlock(t *testing.T) {
	l, err := New("test", Window{Size: time.Second, Capacity: 10, Reserve: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Now()
	for i := 0; i < 8; i++ {
		l.Acquire(1)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("acquires within budget took %v, expected no blocking", elapsed)
	}
}

func TestAcquireBlocksAtReserveBoundary(t *testing.T) {
	// capacity 3, reserve 1: only 2 bookings may live in the window.
	l, err := New("test", Window{Size: 400 * time.Millisecond, Capacity: 3, Reserve: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Acquire(1)
	l.Acquire(1)

	start := time.Now()
	l.Acquire(1)
	elapsed := time.Since(start)
	if elapsed < 300*time.Millisecond {
		t.Errorf("third acquire returned after %v, expected to block until the oldest booking expired", elapsed)
	}
}

func TestThirdAcquireWaitsForSecondWindow(t *testing.T) {
	l, err := New("test",
		Window{Size: time.Second, Capacity: 2, Reserve: 0},
		Window{Size: time.Minute, Capacity: 100, Reserve: 0},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	l.Acquire(1)
	l.Acquire(1)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("first two acquires took %v, expected no blocking", elapsed)
	}

	l.Acquire(1)
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("third acquire returned after %v, expected to wait about a second", elapsed)
	}
}

func TestAcquireBooksCostAtomically(t *testing.T) {
	l, err := New("test",
		Window{Size: time.Second, Capacity: 10, Reserve: 0},
		Window{Size: time.Minute, Capacity: 100, Reserve: 0},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Acquire(3)

	stats := l.Stats()
	if len(stats.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(stats.Windows))
	}
	for _, w := range stats.Windows {
		if w.Used != 3 {
			t.Errorf("window %v used = %d, want 3", w.Size, w.Used)
		}
	}
}

func TestAcquireCapsImpossibleCost(t *testing.T) {
	l, err := New("test", Window{Size: 200 * time.Millisecond, Capacity: 3, Reserve: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan struct{})
	go func() {
		l.Acquire(10) // exceeds allowed=2, must be capped rather than blocking forever
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire with impossible cost never returned")
	}
	stats := l.Stats()
	if used := stats.Windows[0].Used; used > 2 {
		t.Errorf("used = %d, capped cost must not exceed allowed budget 2", used)
	}
}

func TestConcurrentAcquiresNeverExceedBudget(t *testing.T) {
	const allowed = 5
	l, err := New("test", Window{Size: 300 * time.Millisecond, Capacity: allowed, Reserve: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire(1)
			stats := l.Stats()
			if used := stats.Windows[0].Used; used > allowed {
				t.Errorf("window used = %d, exceeds allowed %d", used, allowed)
			}
		}()
	}
	wg.Wait()
}

func TestStatsReportsHeadroom(t *testing.T) {
	l, err := New("finnhub",
		Window{Size: time.Second, Capacity: 30, Reserve: 2},
		Window{Size: time.Minute, Capacity: 60, Reserve: 2},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Acquire(1)
	l.Acquire(1)

	stats := l.Stats()
	if stats.Name != "finnhub" {
		t.Errorf("name = %q, want finnhub", stats.Name)
	}
	if stats.Reserve != 2 {
		t.Errorf("reserve = %d, want 2", stats.Reserve)
	}
	sec := stats.Windows[0]
	if sec.Allowed != 28 || sec.Used != 2 || sec.Headroom != 26 {
		t.Errorf("second window = %+v, want allowed 28 used 2 headroom 26", sec)
	}
}
