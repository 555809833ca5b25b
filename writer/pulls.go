// Package writer persists run outputs: the pull log and limiter telemetry
// as CSV for downstream reporting, a Parquet archive of the pull log, and an
// optional S3 upload of any of them.
package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"quoteflow/models"
)

// WritePullsCSV writes the pull log in arrival order. Latency is reported
// in milliseconds to match the downstream report tooling.
func WritePullsCSV(path string, entries []models.PullLogEntry) error {
	f, err := createWithDir(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"symbol", "provider", "ok", "latency_ms", "note"}); err != nil {
		return fmt.Errorf("write pulls header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.Symbol,
			e.Provider,
			strconv.FormatBool(e.OK),
			strconv.FormatFloat(float64(e.Latency.Nanoseconds())/1e6, 'f', 3, 64),
			e.Note,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write pulls row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteTelemetryCSV writes one row per limiter window.
func WriteTelemetryCSV(path string, stats []models.LimiterStats) error {
	f, err := createWithDir(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"provider", "reserve", "window_seconds", "capacity", "used", "allowed", "headroom"}); err != nil {
		return fmt.Errorf("write telemetry header: %w", err)
	}
	for _, s := range stats {
		for _, win := range s.Windows {
			row := []string{
				s.Name,
				strconv.Itoa(s.Reserve),
				strconv.FormatFloat(win.Size.Seconds(), 'f', 0, 64),
				strconv.Itoa(win.Capacity),
				strconv.Itoa(win.Used),
				strconv.Itoa(win.Allowed),
				strconv.Itoa(win.Headroom),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("write telemetry row: %w", err)
			}
		}
	}
	w.Flush()
	return w.Error()
}

func createWithDir(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}
