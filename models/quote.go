package models

// maxIntradayRange rejects candles whose high-low span exceeds 20% of the
// open. Real equities rarely move that much in a day; payloads that do are
// almost always unit mixups or partial candles from the venue.
const maxIntradayRange = 0.2

// QuoteRecord is the normalized daily OHLCV payload returned by every
// provider adapter. Source carries the adapter name that produced it.
type QuoteRecord struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Source string  `json:"source,omitempty"`
}

// IsValid reports whether the record is structurally plausible. This is the
// sole gate between "provider returned something" and "provider succeeded";
// a rejected record counts as a provider failure upstream.
func (q QuoteRecord) IsValid() bool {
	if q.Open <= 0 || q.High <= 0 || q.Low <= 0 || q.Close <= 0 {
		return false
	}
	if q.Low > q.High {
		return false
	}
	return (q.High-q.Low)/q.Open < maxIntradayRange
}

// ClosePoint is one element of a per-symbol price history as served by the
// registry's GetPrices (fixture-backed in offline mode).
type ClosePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}
