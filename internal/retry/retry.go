// Package retry wraps a single blocking call with bounded exponential
// backoff. It retries on any error; callers that want to fail fast on
// specific errors filter before returning them.
package retry

import (
	"math/rand"
	"time"
)

// Options bounds one retried call.
type Options struct {
	Attempts int           // total tries, minimum 1
	Base     time.Duration // first backoff delay
	MaxSleep time.Duration // cap for any single sleep
	Jitter   time.Duration // uniform [0, Jitter) added to each sleep
}

// Defaults mirrors the fetcher configuration fallbacks.
func Defaults() Options {
	return Options{
		Attempts: 3,
		Base:     250 * time.Millisecond,
		MaxSleep: 4 * time.Second,
		Jitter:   250 * time.Millisecond,
	}
}

// Do runs fn immediately, then up to opts.Attempts-1 more times on error,
// sleeping min(MaxSleep, Base*2^i + jitter) between tries. The last error is
// returned once attempts are exhausted.
func Do(fn func() error, opts Options) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.Base
	if delay < 0 {
		delay = 0
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		sleep := delay
		if opts.Jitter > 0 {
			sleep += time.Duration(rand.Int63n(int64(opts.Jitter)))
		}
		if opts.MaxSleep > 0 && sleep > opts.MaxSleep {
			sleep = opts.MaxSleep
		}
		time.Sleep(sleep)
		delay *= 2
		if opts.MaxSleep > 0 && delay > opts.MaxSleep {
			delay = opts.MaxSleep
		}
	}
	return lastErr
}
