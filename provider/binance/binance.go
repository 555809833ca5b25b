// Package binance adapts the Binance spot REST SDK to the provider
// contract. It sits at the tail of the quote chain so crypto symbols still
// resolve when the equity venues return nothing for them.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	sdk "github.com/adshao/go-binance/v2"

	"quoteflow/models"
)

type Client struct {
	api *sdk.Client
}

// New builds the adapter. The SDK allows a custom HTTP client, so the shared
// pool settings carry over; keys stay empty because kline data is public.
func New(httpClient *http.Client, baseURL string) *Client {
	api := sdk.NewClient("", "")
	if httpClient != nil {
		api.HTTPClient = httpClient
	}
	if baseURL != "" {
		api.BaseURL = baseURL
	}
	return &Client{api: api}
}

func (c *Client) Name() string { return "binance" }

// Quote maps the most recent daily kline onto a QuoteRecord.
func (c *Client) Quote(ctx context.Context, symbol string) (models.QuoteRecord, error) {
	klines, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval("1d").
		Limit(1).
		Do(ctx)
	if err != nil {
		return models.QuoteRecord{}, fmt.Errorf("binance: klines failed for %s: %w", symbol, err)
	}
	if len(klines) == 0 {
		return models.QuoteRecord{}, fmt.Errorf("binance: no klines for %s", symbol)
	}

	k := klines[len(klines)-1]
	rec := models.QuoteRecord{Source: "binance"}
	for _, f := range []struct {
		raw string
		dst *float64
	}{
		{k.Open, &rec.Open},
		{k.High, &rec.High},
		{k.Low, &rec.Low},
		{k.Close, &rec.Close},
		{k.Volume, &rec.Volume},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return models.QuoteRecord{}, fmt.Errorf("binance: parse kline field for %s: %w", symbol, err)
		}
		*f.dst = v
	}
	return rec, nil
}
