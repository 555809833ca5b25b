package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	appconfig "quoteflow/config"
	"quoteflow/internal/httpx"
	"quoteflow/internal/ratelimit"
	"quoteflow/logger"
	"quoteflow/models"
	"quoteflow/provider/binance"
	"quoteflow/provider/finnhub"
	"quoteflow/provider/stooq"
	"quoteflow/provider/yahoo"
)

const defaultFixturePath = "fixtures/mock_prices.json"

// Entry bundles one provider's connectivity and accounting. The registry
// owns exactly one Entry per provider for the process lifetime.
type Entry struct {
	Name     string
	Limiter  *ratelimit.Limiter
	Quotes   Provider
	Profiles ProfileProvider // nil unless the venue serves profiles
}

// fixtureQuote is one row of the offline fixture: uppercase symbol mapped to
// a single OHLCV object. Either "last" or "close" names the closing price.
type fixtureQuote struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Last   float64 `json:"last"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (f fixtureQuote) closing() float64 {
	if f.Last != 0 {
		return f.Last
	}
	return f.Close
}

// Registry is the single source of truth for provider connectivity. Limiters
// and clients are created once at construction and live for the process.
type Registry struct {
	log     *logger.Log
	offline bool

	fixturePath string
	fixtureOnce sync.Once
	fixture     map[string]fixtureQuote

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry wires every known provider with its limiter and HTTP client.
// In offline mode no network adapter is registered at all; GetPrices serves
// the fixture and the fetch layer sees an empty provider set.
func NewRegistry(cfg *appconfig.Config) (*Registry, error) {
	log := logger.GetLogger()

	r := &Registry{
		log:         log,
		offline:     cfg.Offline.Enabled,
		fixturePath: cfg.Offline.FixturePath,
		entries:     make(map[string]*Entry),
	}
	if r.fixturePath == "" {
		r.fixturePath = defaultFixturePath
	}

	if r.offline {
		log.WithComponent("registry").WithFields(logger.Fields{
			"fixture": r.fixturePath,
		}).Info("offline mode enabled, skipping network providers")
		return r, nil
	}

	newLimiter := func(name string) (*ratelimit.Limiter, error) {
		lim := cfg.LimitFor(name)
		return ratelimit.New(name,
			ratelimit.Window{Size: time.Second, Capacity: lim.PerSecond, Reserve: lim.Reserve},
			ratelimit.Window{Size: time.Minute, Capacity: lim.PerMinute, Reserve: lim.Reserve},
		)
	}
	newHTTP := func() *httpx.Client {
		return httpx.New(cfg.Fetcher.Timeout, cfg.Fetcher.Pool, cfg.Fetcher.Pacing)
	}

	yahooClient := yahoo.New(newHTTP(), cfg.LimitFor("yahoo").BaseURL)
	yahooLim, err := newLimiter("yahoo")
	if err != nil {
		return nil, err
	}
	r.Register(&Entry{Name: "yahoo", Limiter: yahooLim, Quotes: yahooClient})

	fhKey := os.Getenv("FINNHUB_API_KEY")
	if fhKey == "" && appconfig.IsProductionLike(appconfig.AppEnvironment()) {
		return nil, fmt.Errorf("FINNHUB_API_KEY is required in %s", appconfig.AppEnvironment())
	}
	fhClient := finnhub.New(newHTTP(), cfg.LimitFor("finnhub").BaseURL, fhKey)
	fhLim, err := newLimiter("finnhub")
	if err != nil {
		return nil, err
	}
	r.Register(&Entry{Name: "finnhub", Limiter: fhLim, Quotes: fhClient, Profiles: fhClient})

	stooqClient := stooq.New(newHTTP(), cfg.LimitFor("stooq").BaseURL)
	stooqLim, err := newLimiter("stooq")
	if err != nil {
		return nil, err
	}
	r.Register(&Entry{Name: "stooq", Limiter: stooqLim, Quotes: stooqClient})

	bnClient := binance.New(newHTTP().HTTP, cfg.LimitFor("binance").BaseURL)
	bnLim, err := newLimiter("binance")
	if err != nil {
		return nil, err
	}
	r.Register(&Entry{Name: "binance", Limiter: bnLim, Quotes: bnClient})

	return r, nil
}

// Register adds or replaces a provider entry. Exposed so tests can install
// fakes behind real limiters.
func (r *Registry) Register(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Name] = e
}

// Get returns the entry for a provider name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Offline reports whether the registry was built in offline mode.
func (r *Registry) Offline() bool { return r.offline }

// loadFixture reads and caches the offline fixture. A broken or missing
// fixture degrades to an empty map rather than failing the run.
func (r *Registry) loadFixture() map[string]fixtureQuote {
	r.fixtureOnce.Do(func() {
		r.fixture = map[string]fixtureQuote{}
		data, err := os.ReadFile(r.fixturePath)
		if err != nil {
			r.log.WithComponent("registry").WithError(err).Warn("failed to read offline fixture")
			return
		}
		if err := json.Unmarshal(data, &r.fixture); err != nil {
			r.log.WithComponent("registry").WithError(err).Warn("failed to parse offline fixture")
			r.fixture = map[string]fixtureQuote{}
		}
	})
	return r.fixture
}

// FixtureQuote serves one symbol from the offline fixture.
func (r *Registry) FixtureQuote(symbol string) (models.QuoteRecord, bool) {
	fq, ok := r.loadFixture()[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return models.QuoteRecord{}, false
	}
	return models.QuoteRecord{
		Open:   fq.Open,
		High:   fq.High,
		Low:    fq.Low,
		Close:  fq.closing(),
		Volume: fq.Volume,
		Source: "fixture",
	}, true
}

// GetPrices returns per-symbol price history. Offline mode serves the cached
// fixture so CI stays deterministic; online it walks the yahoo provider
// under its limiter.
func (r *Registry) GetPrices(symbols []string) map[string][]models.ClosePoint {
	out := make(map[string][]models.ClosePoint)
	cleaned := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return out
	}

	if r.offline {
		today := time.Now().Format("2006-01-02")
		for _, sym := range cleaned {
			out[sym] = nil
			if fq, ok := r.loadFixture()[sym]; ok {
				out[sym] = []models.ClosePoint{{Date: today, Close: fq.closing()}}
			}
		}
		return out
	}

	entry, ok := r.Get("yahoo")
	if !ok {
		for _, sym := range cleaned {
			out[sym] = nil
		}
		return out
	}
	today := time.Now().Format("2006-01-02")
	for _, sym := range cleaned {
		entry.Limiter.Acquire(1)
		q, err := entry.Quotes.Quote(context.Background(), sym)
		if err != nil {
			out[sym] = nil
			continue
		}
		out[sym] = []models.ClosePoint{{Date: today, Close: q.Close}}
	}
	return out
}

// Stats aggregates every limiter's snapshot for external observability.
func (r *Registry) Stats() []models.LimiterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LimiterStats, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Limiter != nil {
			out = append(out, e.Limiter.Stats())
		}
	}
	return out
}

// Names returns the registered provider names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}
