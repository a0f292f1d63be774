package heartbeat

import "time"

// Measurement is one completed interval as submitted by a session.
// Times are nanoseconds, energies microjoules.
type Measurement struct {
	Tag         uint64
	Work        uint64
	StartTime   uint64
	EndTime     uint64
	Accuracy    uint64
	StartEnergy uint64
	EndEnergy   uint64
}

// Rates holds a quantity over the whole run, the current window and the
// last interval.
type Rates struct {
	Global  float64
	Window  float64
	Instant float64
}

// Record is one slot of the window buffer.
type Record struct {
	ID        uint64
	UserTag   uint64
	Work      uint64
	StartTime uint64
	EndTime   uint64
	Perf      Rates

	Accuracy     uint64
	AccuracyRate Rates

	StartEnergy uint64
	EndEnergy   uint64
	Power       Rates
}

// Elapsed returns the interval covered by the record.
func (r Record) Elapsed() uint64 {
	return delta(r.StartTime, r.EndTime)
}

// Energy returns the energy consumed during the interval.
func (r Record) Energy() uint64 {
	return delta(r.StartEnergy, r.EndEnergy)
}

// LatencyStats summarises heartbeat interval lengths since Init.
type LatencyStats struct {
	Min  time.Duration
	Mean time.Duration
	P50  time.Duration
	P90  time.Duration
	P99  time.Duration
	Max  time.Duration
}

// Stats is a snapshot of a context after its latest heartbeat.
type Stats struct {
	Kind         Kind
	Heartbeats   uint64
	WindowSize   uint64
	Windows      uint64
	Perf         Rates
	AccuracyRate Rates
	Power        Rates
	Latency      LatencyStats
}

func delta(start, end uint64) uint64 {
	if end < start {
		return 0
	}
	return end - start
}
