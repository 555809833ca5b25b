package fetch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"quoteflow/provider"
)

// Payload is what a provider call produces for one factor kind. Quote
// factors yield models.QuoteRecord, profile factors models.ProfileRecord;
// both know how to sanity-check themselves.
type Payload interface {
	IsValid() bool
}

// Policy describes how one factor kind is acquired: the default provider
// order, the token cost booked per attempt, and the per-provider retry
// budget.
type Policy struct {
	Providers []string
	Cost      int
	Retries   int
	Call      func(ctx context.Context, e *provider.Entry, symbol string) (Payload, error)
}

func callQuote(ctx context.Context, e *provider.Entry, symbol string) (Payload, error) {
	q, err := e.Quotes.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func callProfile(ctx context.Context, e *provider.Entry, symbol string) (Payload, error) {
	if e.Profiles == nil {
		return nil, fmt.Errorf("provider %s does not serve profiles", e.Name)
	}
	p, err := e.Profiles.Profile(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// defaultPolicies holds the built-in provider chains. Yahoo leads the quote
// chain for coverage, Finnhub falls back behind its tighter budget, Stooq is
// the keyless last resort for equities and Binance catches crypto symbols.
func defaultPolicies() map[string]Policy {
	return map[string]Policy{
		"quote": {
			Providers: []string{"yahoo", "finnhub", "stooq", "binance"},
			Cost:      1,
			Retries:   3,
			Call:      callQuote,
		},
		"profile": {
			Providers: []string{"finnhub"},
			Cost:      1,
			Retries:   3,
			Call:      callProfile,
		},
	}
}

// resolveProviders applies the environment override for one factor kind.
// QF_<FACTOR>_PROVIDERS takes precedence, then QF_PROVIDERS, then the
// built-in default. Names outside the default set are dropped; when
// filtering empties the list the default order is used unchanged.
func resolveProviders(factor string, def []string) []string {
	key := "QF_" + strings.ToUpper(factor) + "_PROVIDERS"
	order := strings.TrimSpace(os.Getenv(key))
	if order == "" {
		order = strings.TrimSpace(os.Getenv("QF_PROVIDERS"))
	}
	if order == "" {
		return def
	}

	known := make(map[string]bool, len(def))
	for _, name := range def {
		known[name] = true
	}

	var out []string
	for _, raw := range strings.Split(order, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name != "" && known[name] {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
