package store

import (
	"context"
	"time"

	"codeberg.org/mutker/hbsc/heartbeat"
)

// Recorder persists completed heartbeat windows.
type Recorder interface {
	Record(ctx context.Context, w *Window) error
	Close() error
}

// Repository defines the interface for window storage
type Repository interface {
	Record(w *Window) error
	// Windows returns the stored windows of a run in recording order.
	// Buffered rows are written first.
	Windows(ctx context.Context, runID string) ([]Window, error)
	Close() error
}

// Window is the state of a heartbeat context at the moment its window
// buffer filled.
type Window struct {
	RunID      string
	Variant    string
	Index      uint64
	Heartbeats uint64
	Timestamp  time.Time

	Perf         heartbeat.Rates
	AccuracyRate heartbeat.Rates
	Power        heartbeat.Rates

	LatencyP50 time.Duration
	LatencyP99 time.Duration
}

// NewWindow captures stats as a window row for runID.
func NewWindow(runID string, stats heartbeat.Stats, at time.Time) *Window {
	return &Window{
		RunID:        runID,
		Variant:      stats.Kind.String(),
		Index:        stats.Windows,
		Heartbeats:   stats.Heartbeats,
		Timestamp:    at,
		Perf:         stats.Perf,
		AccuracyRate: stats.AccuracyRate,
		Power:        stats.Power,
		LatencyP50:   stats.Latency.P50,
		LatencyP99:   stats.Latency.P99,
	}
}
