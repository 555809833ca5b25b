package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"quoteflow/logger"
	"quoteflow/models"
)

// maxSleepSlice bounds each sleep between headroom re-checks so concurrent
// callers contend on the lock fairly instead of one goroutine camping on a
// long computed wait.
const maxSleepSlice = 250 * time.Millisecond

// Window declares one rolling budget: at most Capacity-Reserve bookings may
// exist inside any interval of length Size.
type Window struct {
	Size     time.Duration
	Capacity int
	Reserve  int
}

type window struct {
	size     time.Duration
	capacity int
	reserve  int
	stamps   []time.Time // FIFO booking times, oldest first
}

func (w *window) allowed() int { return w.capacity - w.reserve }

// Limiter enforces every configured window at once. Acquire never fails, it
// only blocks; a configuration that could never admit a call is rejected at
// construction instead.
type Limiter struct {
	name string
	log  *logger.Log

	mu      sync.Mutex
	windows []*window
}

// New builds a limiter over the given windows. A window with
// reserve >= capacity leaves no usable budget and is a configuration error.
func New(name string, windows ...Window) (*Limiter, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("limiter %q: at least one window required", name)
	}
	l := &Limiter{name: name, log: logger.GetLogger()}
	for _, w := range windows {
		if w.Size <= 0 {
			return nil, fmt.Errorf("limiter %q: window size %v must be positive", name, w.Size)
		}
		if w.Capacity <= 0 {
			return nil, fmt.Errorf("limiter %q: window capacity %d must be positive", name, w.Capacity)
		}
		if w.Reserve < 0 {
			return nil, fmt.Errorf("limiter %q: window reserve %d must not be negative", name, w.Reserve)
		}
		if w.Reserve >= w.Capacity {
			return nil, fmt.Errorf("limiter %q: reserve %d >= capacity %d for %v window", name, w.Reserve, w.Capacity, w.Size)
		}
		l.windows = append(l.windows, &window{size: w.Size, capacity: w.Capacity, reserve: w.Reserve})
	}
	return l, nil
}

// Name returns the identifier the limiter was built with.
func (l *Limiter) Name() string { return l.name }

// Acquire blocks until booking cost tokens would keep every window at or
// under capacity-reserve, then books cost timestamps in each window under one
// critical section. Blocking here is backpressure, not an error; callers that
// need a hard timeout wrap the call externally.
func (l *Limiter) Acquire(cost int) {
	if cost < 1 {
		cost = 1
	}
	// A cost no window can ever admit would block forever; cap it at the
	// tightest usable budget and note the misconfigured policy.
	for _, w := range l.windows {
		if cost > w.allowed() {
			l.log.WithComponent("ratelimit").WithFields(logger.Fields{
				"limiter": l.name,
				"cost":    cost,
				"allowed": w.allowed(),
			}).Warn("acquire cost exceeds window budget, capping")
			cost = w.allowed()
		}
	}

	blocked := false
	for {
		now := time.Now()
		l.mu.Lock()
		l.prune(now)
		wait := l.earliestSafe(now, cost)
		if wait <= 0 {
			for _, w := range l.windows {
				for i := 0; i < cost; i++ {
					w.stamps = append(w.stamps, now)
				}
			}
			l.mu.Unlock()
			if blocked {
				l.log.WithComponent("ratelimit").WithFields(logger.Fields{
					"limiter": l.name,
					"cost":    cost,
				}).Debug("acquired after blocking")
			}
			return
		}
		l.mu.Unlock()

		blocked = true
		if wait > maxSleepSlice {
			wait = maxSleepSlice
		}
		// Sleep outside the lock so other callers can book or re-check.
		time.Sleep(wait)
	}
}

// prune drops bookings older than each window's size. Callers must hold mu.
func (l *Limiter) prune(now time.Time) {
	for _, w := range l.windows {
		i := 0
		for i < len(w.stamps) && now.Sub(w.stamps[i]) > w.size {
			i++
		}
		if i > 0 {
			w.stamps = append(w.stamps[:0], w.stamps[i:]...)
		}
	}
}

// earliestSafe returns how long until every window can absorb cost more
// bookings, or zero when there is room now. For a window that is short on
// room, enough of its oldest entries must expire first; the wait is driven by
// the (used+cost-allowed)-th oldest booking. Callers must hold mu.
func (l *Limiter) earliestSafe(now time.Time, cost int) time.Duration {
	var wait time.Duration
	for _, w := range l.windows {
		used := len(w.stamps)
		if used+cost <= w.allowed() {
			continue
		}
		need := used + cost - w.allowed()
		if need > used {
			need = used
		}
		until := w.stamps[need-1].Add(w.size).Sub(now)
		if until < time.Millisecond {
			until = time.Millisecond
		}
		if until > wait {
			wait = until
		}
	}
	return wait
}

// Stats snapshots current usage per window.
func (l *Limiter) Stats() models.LimiterStats {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)

	out := models.LimiterStats{Name: l.name}
	for _, w := range l.windows {
		if w.reserve > out.Reserve {
			out.Reserve = w.reserve
		}
		out.Windows = append(out.Windows, models.WindowStats{
			Size:     w.size,
			Capacity: w.capacity,
			Used:     len(w.stamps),
			Allowed:  w.allowed(),
			Headroom: w.allowed() - len(w.stamps),
		})
	}
	return out
}
