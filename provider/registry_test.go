package provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "quoteflow/config"
	"quoteflow/internal/ratelimit"
)

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mock_prices.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func offlineConfig(t *testing.T, fixture string) *appconfig.Config {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Offline.Enabled = true
	cfg.Offline.FixturePath = fixture
	return cfg
}

const fixtureBody = `{
  "AAPL": {"open": 230.1, "high": 233.4, "low": 229.5, "last": 232.8, "volume": 51234400},
  "MSFT": {"open": 421.0, "high": 425.6, "low": 419.2, "close": 424.1, "volume": 18873200}
}`

func TestOfflineRegistryHasNoNetworkProviders(t *testing.T) {
	reg, err := NewRegistry(offlineConfig(t, writeFixture(t, fixtureBody)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if !reg.Offline() {
		t.Error("registry should report offline mode")
	}
	if names := reg.Names(); len(names) != 0 {
		t.Errorf("offline registry registered providers %v, want none", names)
	}
}

func TestFixtureQuote(t *testing.T) {
	reg, err := NewRegistry(offlineConfig(t, writeFixture(t, fixtureBody)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	q, ok := reg.FixtureQuote("aapl")
	if !ok {
		t.Fatal("expected a fixture quote for AAPL")
	}
	if q.Close != 232.8 {
		t.Errorf("close = %v, want the fixture's last price", q.Close)
	}
	if q.Source != "fixture" {
		t.Errorf("source = %q, want fixture", q.Source)
	}

	// "close" names the closing price when "last" is absent.
	q, ok = reg.FixtureQuote("MSFT")
	if !ok || q.Close != 424.1 {
		t.Errorf("MSFT close = (%v, %v), want 424.1 from the close key", q.Close, ok)
	}

	if _, ok := reg.FixtureQuote("NOPE"); ok {
		t.Error("unknown symbol should not resolve from the fixture")
	}
}

func TestFixtureMissingFileDegrades(t *testing.T) {
	reg, err := NewRegistry(offlineConfig(t, filepath.Join(t.TempDir(), "absent.json")))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, ok := reg.FixtureQuote("AAPL"); ok {
		t.Error("missing fixture file should yield no quotes, not an error")
	}
}

func TestGetPricesOffline(t *testing.T) {
	reg, err := NewRegistry(offlineConfig(t, writeFixture(t, fixtureBody)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	prices := reg.GetPrices([]string{" aapl ", "MSFT", "NOPE", ""})
	if len(prices) != 3 {
		t.Fatalf("got %d symbols, want 3 (blank dropped)", len(prices))
	}
	if pts := prices["AAPL"]; len(pts) != 1 || pts[0].Close != 232.8 {
		t.Errorf("AAPL history = %+v, want one close point at 232.8", pts)
	}
	if pts := prices["NOPE"]; pts != nil {
		t.Errorf("NOPE history = %+v, want nil for a symbol outside the fixture", pts)
	}
}

func TestProductionRequiresFinnhubKey(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("FINNHUB_API_KEY", "")
	if _, err := NewRegistry(&appconfig.Config{}); err == nil {
		t.Fatal("expected an error for a missing Finnhub key in production")
	}

	t.Setenv("FINNHUB_API_KEY", "test-key")
	reg, err := NewRegistry(&appconfig.Config{})
	if err != nil {
		t.Fatalf("NewRegistry with key: %v", err)
	}
	if _, ok := reg.Get("finnhub"); !ok {
		t.Error("finnhub not registered")
	}
}

func TestDevelopmentAllowsMissingFinnhubKey(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("FINNHUB_API_KEY", "")
	if _, err := NewRegistry(&appconfig.Config{}); err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
}

func TestRegisterAndStats(t *testing.T) {
	reg, err := NewRegistry(offlineConfig(t, writeFixture(t, fixtureBody)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	lim, err := ratelimit.New("fake", ratelimit.Window{Size: time.Second, Capacity: 5, Reserve: 1})
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	reg.Register(&Entry{Name: "fake", Limiter: lim})

	e, ok := reg.Get("fake")
	if !ok || e.Name != "fake" {
		t.Fatal("registered entry not retrievable")
	}
	e.Limiter.Acquire(1)

	stats := reg.Stats()
	if len(stats) != 1 || stats[0].Name != "fake" {
		t.Fatalf("stats = %+v, want one limiter snapshot", stats)
	}
	if stats[0].Windows[0].Used != 1 {
		t.Errorf("used = %d, want 1", stats[0].Windows[0].Used)
	}
}
