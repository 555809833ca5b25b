package models

import "time"

// PullLogEntry records one provider attempt for one symbol. The log is
// strictly additive telemetry for downstream writers; nothing in the fetch
// path reads it back for control decisions.
type PullLogEntry struct {
	Symbol   string        `json:"symbol"`
	Provider string        `json:"provider"`
	OK       bool          `json:"ok"`
	Latency  time.Duration `json:"latency"`
	Note     string        `json:"note,omitempty"`
}

// WindowStats is a point-in-time snapshot of one rate window.
type WindowStats struct {
	Size     time.Duration `json:"size"`
	Capacity int           `json:"capacity"`
	Used     int           `json:"used"`
	Allowed  int           `json:"allowed"`
	Headroom int           `json:"headroom"`
}

// LimiterStats aggregates the window snapshots of one provider's limiter,
// exported for dashboards and the telemetry CSV.
type LimiterStats struct {
	Name    string        `json:"name"`
	Reserve int           `json:"reserve"`
	Windows []WindowStats `json:"windows"`
}
