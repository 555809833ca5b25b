// Package yahoo fetches daily OHLCV candles from the Yahoo Finance v8 chart
// endpoint. The endpoint needs no crumb or API key, only a browser-grade
// User-Agent, which the shared HTTP client already sets.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"quoteflow/internal/httpx"
	"quoteflow/models"
)

const DefaultBaseURL = "https://query2.finance.yahoo.com/v8/finance/chart"

type Client struct {
	http *httpx.Client
	base string
}

func New(http *httpx.Client, base string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{http: http, base: base}
}

func (c *Client) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote returns the last complete daily candle within the past five days.
func (c *Client) Quote(ctx context.Context, symbol string) (models.QuoteRecord, error) {
	params := url.Values{}
	params.Set("range", "5d")
	params.Set("interval", "1d")
	params.Set("includePrePost", "false")
	params.Set("events", "div,splits")

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s?%s", c.base, url.PathEscape(symbol), params.Encode()), nil)
	if err != nil {
		return models.QuoteRecord{}, fmt.Errorf("yahoo: build request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return models.QuoteRecord{}, fmt.Errorf("yahoo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.QuoteRecord{}, fmt.Errorf("yahoo: unexpected status %d for %s", resp.StatusCode, symbol)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.QuoteRecord{}, fmt.Errorf("yahoo: decode response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return models.QuoteRecord{}, fmt.Errorf("yahoo: %s: %s", parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return models.QuoteRecord{}, fmt.Errorf("yahoo: empty chart result for %s", symbol)
	}

	q := parsed.Chart.Result[0].Indicators.Quote[0]
	// Walk backwards to the last candle with all four prices present;
	// the newest slot is often a partial session.
	for i := len(q.Close) - 1; i >= 0; i-- {
		if q.Close[i] == nil || i >= len(q.Open) || q.Open[i] == nil ||
			i >= len(q.High) || q.High[i] == nil || i >= len(q.Low) || q.Low[i] == nil {
			continue
		}
		rec := models.QuoteRecord{
			Open:   *q.Open[i],
			High:   *q.High[i],
			Low:    *q.Low[i],
			Close:  *q.Close[i],
			Source: "yahoo",
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			rec.Volume = *q.Volume[i]
		}
		return rec, nil
	}

	return models.QuoteRecord{}, fmt.Errorf("yahoo: no complete candle for %s", symbol)
}
