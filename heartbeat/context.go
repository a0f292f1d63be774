package heartbeat

import (
	"io"
	"time"

	"codeberg.org/mutker/hbsc/internal/errors"
	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	nanosPerSecond = 1e9
	// µJ/ns to W
	microjoulesPerNanoToWatts = 1e3

	// Interval histogram range in microseconds: 1µs to 1h, 3 significant figures
	latencyMin     = 1
	latencyMax     = 3_600_000_000
	latencySigFigs = 3
)

// WindowCompleteFunc is called every time the window buffer fills.
type WindowCompleteFunc func(*Context)

// Option configures a Context
type Option func(*Context)

// WithWindowCompleteHook registers fn to run whenever the window fills,
// before the full window is written to the log.
func WithWindowCompleteHook(fn WindowCompleteFunc) Option {
	return func(c *Context) {
		c.hook = fn
	}
}

// Context maintains a sliding window of heartbeat records and derives
// global, windowed and instant rates from it. It is not safe for
// concurrent use.
type Context struct {
	kind Kind
	hook WindowCompleteFunc

	window      []Record
	log         io.Writer
	initialized bool

	bufferIndex  uint64
	flushedIndex uint64
	counter      uint64
	windows      uint64

	firstStart uint64
	lastEnd    uint64

	totalWork     uint64
	totalAccuracy uint64
	totalEnergy   uint64

	windowWork     uint64
	windowTime     uint64
	windowAccuracy uint64
	windowEnergy   uint64

	latency *hdrhistogram.Histogram
	logErr  error
}

// New returns an uninitialized context for kind.
func New(kind Kind, opts ...Option) *Context {
	c := &Context{kind: kind}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) Kind() Kind {
	return c.kind
}

// WriteLogHeader writes the column header for the context's kind to w.
func (c *Context) WriteLogHeader(w io.Writer) error {
	return WriteHeader(w, c.kind)
}

// Init attaches the window buffer and an optional log target. The buffer
// is owned by the caller and must outlive the context.
func (c *Context) Init(window []Record, log io.Writer) error {
	errFactory := errors.New()

	if !c.kind.Valid() {
		return errFactory.WithData(ErrInit, "invalid kind")
	}
	if len(window) == 0 {
		return errFactory.WithData(ErrInit, "empty window buffer")
	}
	if c.initialized {
		return errFactory.WithData(ErrInit, "already initialized")
	}

	clear(window)
	c.window = window
	c.log = log
	c.latency = hdrhistogram.New(latencyMin, latencyMax, latencySigFigs)
	c.initialized = true

	return nil
}

// Record adds m to the window. Once Init has succeeded it never fails;
// log write errors from a full window are reported by the next FlushWindow.
func (c *Context) Record(m Measurement) {
	capacity := uint64(len(c.window))
	slot := &c.window[c.bufferIndex]

	if c.counter >= capacity {
		c.windowWork -= slot.Work
		c.windowTime -= slot.Elapsed()
		c.windowAccuracy -= slot.Accuracy
		c.windowEnergy -= slot.Energy()
	}

	if c.counter == 0 {
		c.firstStart = m.StartTime
	}
	c.lastEnd = m.EndTime

	elapsed := delta(m.StartTime, m.EndTime)
	globalTime := delta(c.firstStart, c.lastEnd)

	c.totalWork += m.Work
	c.windowWork += m.Work
	c.windowTime += elapsed

	*slot = Record{
		ID:        c.counter,
		UserTag:   m.Tag,
		Work:      m.Work,
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		Perf: Rates{
			Global:  rate(c.totalWork, globalTime),
			Window:  rate(c.windowWork, c.windowTime),
			Instant: rate(m.Work, elapsed),
		},
	}

	if c.kind.TracksAccuracy() {
		c.totalAccuracy += m.Accuracy
		c.windowAccuracy += m.Accuracy
		slot.Accuracy = m.Accuracy
		slot.AccuracyRate = Rates{
			Global:  rate(c.totalAccuracy, globalTime),
			Window:  rate(c.windowAccuracy, c.windowTime),
			Instant: rate(m.Accuracy, elapsed),
		}
	}

	if c.kind.TracksEnergy() {
		energy := delta(m.StartEnergy, m.EndEnergy)
		c.totalEnergy += energy
		c.windowEnergy += energy
		slot.StartEnergy = m.StartEnergy
		slot.EndEnergy = m.EndEnergy
		slot.Power = Rates{
			Global:  power(c.totalEnergy, globalTime),
			Window:  power(c.windowEnergy, c.windowTime),
			Instant: power(energy, elapsed),
		}
	}

	c.recordLatency(elapsed)

	c.counter++
	c.bufferIndex++
	if c.bufferIndex == capacity {
		c.windows++
		if c.hook != nil {
			c.hook(c)
		}
		if c.log != nil {
			if err := writeRecords(c.log, c.kind, c.window[c.flushedIndex:]); err != nil && c.logErr == nil {
				c.logErr = err
			}
		}
		c.bufferIndex = 0
		c.flushedIndex = 0
	}
}

// FlushWindow writes records not yet logged to w.
func (c *Context) FlushWindow(w io.Writer) error {
	errFactory := errors.New()

	if w == nil {
		return errFactory.New(ErrNoLog)
	}

	var pending error
	pending, c.logErr = c.logErr, nil

	var err error
	if c.flushedIndex < c.bufferIndex {
		err = writeRecords(w, c.kind, c.window[c.flushedIndex:c.bufferIndex])
		if err == nil {
			c.flushedIndex = c.bufferIndex
		}
	}

	return errFactory.Join(ErrLogWrite, pending, err)
}

// Count returns the number of heartbeats recorded since Init.
func (c *Context) Count() uint64 {
	return c.counter
}

// Last returns the most recent record.
func (c *Context) Last() (Record, bool) {
	if c.counter == 0 {
		return Record{}, false
	}
	capacity := uint64(len(c.window))
	return c.window[(c.bufferIndex+capacity-1)%capacity], true
}

// Window returns the records currently in the sliding window, oldest first.
func (c *Context) Window() []Record {
	capacity := uint64(len(c.window))
	if c.counter < capacity {
		return append([]Record(nil), c.window[:c.counter]...)
	}

	out := make([]Record, 0, capacity)
	out = append(out, c.window[c.bufferIndex:]...)
	return append(out, c.window[:c.bufferIndex]...)
}

// Stats returns a snapshot of the context.
func (c *Context) Stats() Stats {
	s := Stats{
		Kind:       c.kind,
		Heartbeats: c.counter,
		WindowSize: uint64(len(c.window)),
		Windows:    c.windows,
	}

	if last, ok := c.Last(); ok {
		s.Perf = last.Perf
		s.AccuracyRate = last.AccuracyRate
		s.Power = last.Power
	}

	if c.latency != nil && c.latency.TotalCount() > 0 {
		s.Latency = LatencyStats{
			Min:  micros(c.latency.Min()),
			Mean: time.Duration(c.latency.Mean() * float64(time.Microsecond)),
			P50:  micros(c.latency.ValueAtQuantile(50)),
			P90:  micros(c.latency.ValueAtQuantile(90)),
			P99:  micros(c.latency.ValueAtQuantile(99)),
			Max:  micros(c.latency.Max()),
		}
	}

	return s
}

func (c *Context) recordLatency(elapsedNanos uint64) {
	us := int64(elapsedNanos / uint64(time.Microsecond))
	if us < latencyMin {
		us = latencyMin
	}
	if us > latencyMax {
		us = latencyMax
	}
	// in range by construction
	_ = c.latency.RecordValue(us)
}

func rate(units, nanos uint64) float64 {
	if nanos == 0 {
		return 0
	}
	return float64(units) * nanosPerSecond / float64(nanos)
}

func power(microjoules, nanos uint64) float64 {
	if nanos == 0 {
		return 0
	}
	return float64(microjoules) * microjoulesPerNanoToWatts / float64(nanos)
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
