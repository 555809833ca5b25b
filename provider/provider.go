// Package provider defines the adapter contract shared by every quote venue
// and the registry that owns per-provider connectivity and accounting.
package provider

import (
	"context"

	"quoteflow/models"
)

// Provider is implemented by every quote venue adapter. Quote either returns
// a populated record or an error; an empty payload is an error, never a
// zero-valued record.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (models.QuoteRecord, error)
}

// ProfileProvider is implemented by venues that can also serve company
// profiles for sector mapping.
type ProfileProvider interface {
	Name() string
	Profile(ctx context.Context, symbol string) (models.ProfileRecord, error)
}
