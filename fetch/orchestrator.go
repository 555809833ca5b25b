// Package fetch drives the per-symbol acquisition loop: limiter, retry,
// validation and fallback across the provider chain, with a write-once memo
// so a symbol costs at most one chain walk per process lifetime.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	appconfig "quoteflow/config"
	"quoteflow/internal/retry"
	"quoteflow/logger"
	"quoteflow/models"
	"quoteflow/provider"
)

// outcome is the memoized result of one chain walk. A nil payload is the
// absence sentinel: the chain was exhausted and must not be walked again.
type outcome struct {
	payload Payload
}

// Fetcher is the orchestrator. Safe for concurrent use by many per-symbol
// workers sharing one registry.
type Fetcher struct {
	reg      *provider.Registry
	log      *logger.Log
	retry    retry.Options
	policies map[string]Policy

	memo  sync.Map // "factor|SYMBOL" -> outcome
	group singleflight.Group

	mu    sync.Mutex
	pulls []models.PullLogEntry
}

// NewFetcher builds the orchestrator over a registry. Retry timing comes
// from the fetcher configuration; per-policy retry counts bound attempts.
func NewFetcher(reg *provider.Registry, cfg *appconfig.Config) *Fetcher {
	opts := retry.Defaults()
	if cfg != nil {
		if cfg.Fetcher.Retry.MaxAttempts > 0 {
			opts.Attempts = cfg.Fetcher.Retry.MaxAttempts
		}
		if cfg.Fetcher.Retry.BaseDelay > 0 {
			opts.Base = cfg.Fetcher.Retry.BaseDelay
		}
		if cfg.Fetcher.Retry.MaxDelay > 0 {
			opts.MaxSleep = cfg.Fetcher.Retry.MaxDelay
		}
		if cfg.Fetcher.Retry.Jitter >= 0 {
			opts.Jitter = cfg.Fetcher.Retry.Jitter
		}
	}
	return &Fetcher{
		reg:      reg,
		log:      logger.GetLogger(),
		retry:    opts,
		policies: defaultPolicies(),
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(symbol), "$"))
}

// Fetch resolves one factor for one symbol. The first call per symbol walks
// the provider chain; every later call returns the memoized outcome with
// zero provider calls. A nil payload with nil error means the chain was
// exhausted: absence is an expected outcome, not an error.
func (f *Fetcher) Fetch(ctx context.Context, symbol, factor string) (Payload, error) {
	pol, ok := f.policies[factor]
	if !ok {
		return nil, fmt.Errorf("unknown factor kind %q", factor)
	}

	sym := normalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	key := factor + "|" + sym

	if v, ok := f.memo.Load(key); ok {
		return v.(outcome).payload, nil
	}

	// Single-flight per key: concurrent first accesses share one chain walk
	// instead of stampeding the providers.
	v, _, _ := f.group.Do(key, func() (interface{}, error) {
		if v, ok := f.memo.Load(key); ok {
			return v.(outcome), nil
		}
		out := f.pull(ctx, sym, factor, pol)
		f.memo.Store(key, out)
		return out, nil
	})
	return v.(outcome).payload, nil
}

// pull walks the resolved provider chain once. Failure of any kind advances
// to the next provider; the first validator-accepted payload wins and no
// later provider is consulted.
func (f *Fetcher) pull(ctx context.Context, sym, factor string, pol Policy) outcome {
	log := f.log.WithComponent("fetch").WithFields(logger.Fields{
		"symbol": sym,
		"factor": factor,
	})

	for _, name := range resolveProviders(factor, pol.Providers) {
		entry, ok := f.reg.Get(name)
		if !ok {
			continue
		}

		// Blocks until the budget has room. Waiting here is backpressure
		// and is never recorded as a provider failure.
		entry.Limiter.Acquire(pol.Cost)

		opts := f.retry
		if pol.Retries > 0 {
			opts.Attempts = pol.Retries
		}

		start := time.Now()
		var payload Payload
		err := retry.Do(func() error {
			p, callErr := pol.Call(ctx, entry, sym)
			if callErr != nil {
				return callErr
			}
			payload = p
			return nil
		}, opts)
		latency := time.Since(start)

		if err != nil {
			f.record(sym, name, false, latency, err.Error())
			log.WithFields(logger.Fields{"provider": name, "latency": latency}).
				WithError(err).Debug("provider failed, advancing chain")
			continue
		}
		if payload == nil || !payload.IsValid() {
			f.record(sym, name, false, latency, "payload rejected by validation")
			log.WithFields(logger.Fields{"provider": name, "latency": latency}).
				Debug("payload rejected by validation, advancing chain")
			continue
		}

		f.record(sym, name, true, latency, "")
		log.WithFields(logger.Fields{"provider": name, "latency": latency}).Debug("pull succeeded")
		return outcome{payload: payload}
	}

	// In offline mode the chain is empty by construction; the cached JSON
	// fixture stands in for the quote venues.
	if f.reg.Offline() && factor == "quote" {
		if q, ok := f.reg.FixtureQuote(sym); ok {
			f.record(sym, "fixture", true, 0, "")
			log.WithFields(logger.Fields{"provider": "fixture"}).Debug("served from offline fixture")
			return outcome{payload: q}
		}
	}

	log.Debug("provider chain exhausted, memoizing absence")
	return outcome{}
}

func (f *Fetcher) record(sym, providerName string, ok bool, latency time.Duration, note string) {
	f.mu.Lock()
	f.pulls = append(f.pulls, models.PullLogEntry{
		Symbol:   sym,
		Provider: providerName,
		OK:       ok,
		Latency:  latency,
		Note:     note,
	})
	f.mu.Unlock()
	logger.IncrementPull(providerName, ok)
}

// Quote is the typed convenience for the quote factor. The second return is
// false when the record is absent.
func (f *Fetcher) Quote(ctx context.Context, symbol string) (models.QuoteRecord, bool) {
	p, err := f.Fetch(ctx, symbol, "quote")
	if err != nil || p == nil {
		return models.QuoteRecord{}, false
	}
	q, ok := p.(models.QuoteRecord)
	return q, ok
}

// Profile is the typed convenience for the profile factor.
func (f *Fetcher) Profile(ctx context.Context, symbol string) (models.ProfileRecord, bool) {
	p, err := f.Fetch(ctx, symbol, "profile")
	if err != nil || p == nil {
		return models.ProfileRecord{}, false
	}
	rec, ok := p.(models.ProfileRecord)
	return rec, ok
}

// PercentChangeToday returns (close/open - 1) * 100 for the memoized or
// freshly fetched quote. Zero is the documented neutral default for absent
// records or a non-positive open; callers must treat it as "unknown", not as
// a negative signal.
func (f *Fetcher) PercentChangeToday(ctx context.Context, symbol string) float64 {
	q, ok := f.Quote(ctx, symbol)
	if !ok || q.Open <= 0 {
		return 0
	}
	return (q.Close/q.Open - 1) * 100
}

// PullLog returns a copy of the append-only attempt log in arrival order.
func (f *Fetcher) PullLog() []models.PullLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PullLogEntry, len(f.pulls))
	copy(out, f.pulls)
	return out
}

// Reset clears the memo and the pull log. Test-scoped; production runs keep
// both for the process lifetime.
func (f *Fetcher) Reset() {
	f.memo.Range(func(k, _ any) bool {
		f.memo.Delete(k)
		return true
	})
	f.mu.Lock()
	f.pulls = nil
	f.mu.Unlock()
}
