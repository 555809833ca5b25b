package writer

import (
	"encoding/csv"
	"fmt"
	"strconv"

	"quoteflow/models"
)

// QuoteRow pairs one symbol's fetched record with its derived day change.
// Absent symbols appear with Found=false and a neutral zero change.
type QuoteRow struct {
	Symbol    string
	Found     bool
	Quote     models.QuoteRecord
	PctChange float64
}

// WriteQuotesCSV writes the per-symbol quote results.
func WriteQuotesCSV(path string, rows []QuoteRow) error {
	f, err := createWithDir(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"symbol", "found", "open", "high", "low", "close", "volume", "source", "pct_change"}); err != nil {
		return fmt.Errorf("write quotes header: %w", err)
	}
	for _, r := range rows {
		// A cancelled run leaves unprocessed slots zero-valued; they carry
		// no symbol and are not results.
		if r.Symbol == "" {
			continue
		}
		row := []string{
			r.Symbol,
			strconv.FormatBool(r.Found),
			formatPrice(r.Quote.Open),
			formatPrice(r.Quote.High),
			formatPrice(r.Quote.Low),
			formatPrice(r.Quote.Close),
			strconv.FormatFloat(r.Quote.Volume, 'f', 0, 64),
			r.Quote.Source,
			strconv.FormatFloat(r.PctChange, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write quotes row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
