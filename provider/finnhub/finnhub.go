// Package finnhub fetches quotes and company profiles from the Finnhub REST
// API. All calls carry the API key as a query token; 429 and 5xx responses
// surface as errors so the retry helper can back off.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"quoteflow/internal/httpx"
	"quoteflow/models"
)

const DefaultBaseURL = "https://finnhub.io/api/v1"

type Client struct {
	http *httpx.Client
	base string
	key  string
}

func New(http *httpx.Client, base, key string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{http: http, base: base, key: key}
}

func (c *Client) Name() string { return "finnhub" }

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("token", c.key)
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s?%s", c.base, path, params.Encode()), nil)
	if err != nil {
		return fmt.Errorf("finnhub: build request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("finnhub: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("finnhub: unexpected status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("finnhub: decode response: %w", err)
	}
	return nil
}

type quoteResponse struct {
	Current  float64 `json:"c"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Open     float64 `json:"o"`
	PrevCl   float64 `json:"pc"`
	Unixtime int64   `json:"t"`
}

// Quote maps Finnhub's c/h/l/o fields onto a QuoteRecord. The endpoint does
// not report volume; the validator does not require it.
func (c *Client) Quote(ctx context.Context, symbol string) (models.QuoteRecord, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var q quoteResponse
	if err := c.get(ctx, "/quote", params, &q); err != nil {
		return models.QuoteRecord{}, err
	}
	if q.Current == 0 && q.Open == 0 {
		return models.QuoteRecord{}, fmt.Errorf("finnhub: empty quote for %s", symbol)
	}

	return models.QuoteRecord{
		Open:   q.Open,
		High:   q.High,
		Low:    q.Low,
		Close:  q.Current,
		Source: "finnhub",
	}, nil
}

type profileResponse struct {
	Name     string `json:"name"`
	Industry string `json:"finnhubIndustry"`
	Country  string `json:"country"`
	Ticker   string `json:"ticker"`
}

// Profile fetches the company profile used for sector mapping.
func (c *Client) Profile(ctx context.Context, symbol string) (models.ProfileRecord, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var p profileResponse
	if err := c.get(ctx, "/stock/profile2", params, &p); err != nil {
		return models.ProfileRecord{}, err
	}
	if p.Name == "" && p.Industry == "" {
		return models.ProfileRecord{}, fmt.Errorf("finnhub: empty profile for %s", symbol)
	}

	return models.ProfileRecord{
		Symbol:   symbol,
		Name:     p.Name,
		Sector:   p.Industry,
		Industry: p.Industry,
		Source:   "finnhub",
	}, nil
}
