// Package stooq fetches daily candles from Stooq's CSV download endpoint.
// Stooq is keyless and slow-moving, which makes it a useful last-resort
// fallback when the primary venues are throttling.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"quoteflow/internal/httpx"
	"quoteflow/models"
)

const DefaultBaseURL = "https://stooq.com/q/d/l/"

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

func (c *Client) Name() string { return "stooq" }

// stooqSymbol maps plain US tickers onto Stooq's venue-suffixed form.
func stooqSymbol(symbol string) string {
	s := strings.ToLower(symbol)
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}

// Quote downloads the daily CSV history and returns the last row.
func (c *Client) Quote(ctx context.Context, symbol string) (models.QuoteRecord, error) {
	params := url.Values{}
	params.Set("s", stooqSymbol(symbol))
	params.Set("i", "d")

	req, err := http.NewRequest(http.MethodGet, c.base+"?"+params.Encode(), nil)
	if err != nil {
		return models.QuoteRecord{}, fmt.Errorf("stooq: build request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return models.QuoteRecord{}, fmt.Errorf("stooq: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.QuoteRecord{}, fmt.Errorf("stooq: unexpected status %d for %s", resp.StatusCode, symbol)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return models.QuoteRecord{}, fmt.Errorf("stooq: read header: %w", err)
	}
	if len(header) < 5 || !strings.EqualFold(header[0], "Date") {
		return models.QuoteRecord{}, fmt.Errorf("stooq: no data for %s", symbol)
	}

	var last []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.QuoteRecord{}, fmt.Errorf("stooq: read rows: %w", err)
		}
		if len(row) >= 5 {
			last = row
		}
	}
	if last == nil {
		return models.QuoteRecord{}, fmt.Errorf("stooq: empty history for %s", symbol)
	}

	rec := models.QuoteRecord{Source: "stooq"}
	fields := []*float64{nil, &rec.Open, &rec.High, &rec.Low, &rec.Close}
	for i := 1; i <= 4; i++ {
		v, err := strconv.ParseFloat(last[i], 64)
		if err != nil {
			return models.QuoteRecord{}, fmt.Errorf("stooq: parse %s row for %s: %w", header[i], symbol, err)
		}
		*fields[i] = v
	}
	if len(last) > 5 {
		if v, err := strconv.ParseFloat(last[5], 64); err == nil {
			rec.Volume = v
		}
	}
	return rec, nil
}
