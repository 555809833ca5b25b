package stooq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quoteflow/config"
	"quoteflow/internal/httpx"
)

func testClient(base string) *Client {
	return New(httpx.New(5*time.Second, config.ConnectionPool{}, config.PacingConfig{}), base)
}

func TestStooqSymbol(t *testing.T) {
	cases := map[string]string{
		"AAPL":    "aapl.us",
		"msft":    "msft.us",
		"BMW.DE":  "bmw.de",
		"spy":     "spy.us",
		"WIG20.F": "wig20.f",
	}
	for in, want := range cases {
		if got := stooqSymbol(in); got != want {
			t.Errorf("stooqSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuoteReturnsLastRow(t *testing.T) {
	body := "Date,Open,High,Low,Close,Volume\n" +
		"2026-08-22,228.0,230.1,227.5,229.9,40120000\n" +
		"2026-08-25,230.1,233.4,229.5,232.8,51234400\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("s"); got != "aapl.us" {
			t.Errorf("s = %q, want aapl.us", got)
		}
		if got := r.URL.Query().Get("i"); got != "d" {
			t.Errorf("i = %q, want d", got)
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	q, err := testClient(srv.URL).Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Open != 230.1 || q.High != 233.4 || q.Low != 229.5 || q.Close != 232.8 || q.Volume != 51234400 {
		t.Errorf("got %+v, want the newest row", q)
	}
	if q.Source != "stooq" {
		t.Errorf("source = %q, want stooq", q.Source)
	}
}

func TestQuoteNoData(t *testing.T) {
	// Stooq answers unknown symbols with a plain message, not a CSV table.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("No data\n"))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Quote(context.Background(), "NOPE"); err == nil {
		t.Error("expected an error for a no-data response")
	}
}

func TestQuoteEmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Date,Open,High,Low,Close,Volume\n"))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Quote(context.Background(), "AAPL"); err == nil {
		t.Error("expected an error for header-only history")
	}
}
