package hbsc_test

import (
	stderrors "errors"
	"io"

	"codeberg.org/mutker/hbsc/energy"
	"codeberg.org/mutker/hbsc/hbsc"
	"codeberg.org/mutker/hbsc/heartbeat"
)

var errInjected = stderrors.New("injected failure")

// journal records release events in order across collaborators.
type journal struct {
	events []string
}

func (j *journal) add(event string) {
	if j != nil {
		j.events = append(j.events, event)
	}
}

type countingAllocator struct {
	journal *journal
	fail    bool
	short   bool
	allocs  int
	frees   int
}

func (a *countingAllocator) Alloc(n uint64) ([]heartbeat.Record, error) {
	if a.fail {
		return nil, errInjected
	}
	a.allocs++
	if a.short {
		n--
	}
	return make([]heartbeat.Record, n), nil
}

func (a *countingAllocator) Free([]heartbeat.Record) {
	a.frees++
	a.journal.add("free window")
}

func (a *countingAllocator) outstanding() int {
	return a.allocs - a.frees
}

type fakeFile struct {
	journal   *journal
	failWrite bool
	failClose bool
	data      []byte
	closes    int
}

func (f *fakeFile) Write(p []byte) (int, error) {
	if f.failWrite {
		return 0, errInjected
	}
	f.data = append(f.data, p...)
	return len(p), nil
}

func (f *fakeFile) Close() error {
	f.closes++
	f.journal.add("close log")
	if f.failClose {
		return errInjected
	}
	return nil
}

type fakeOpener struct {
	fail   bool
	file   *fakeFile
	opened []string
}

func (o *fakeOpener) open(path string) (io.WriteCloser, error) {
	if o.fail {
		return nil, errInjected
	}
	o.opened = append(o.opened, path)
	return o.file, nil
}

func (o *fakeOpener) openFiles() int {
	if len(o.opened) == 0 {
		return 0
	}
	return len(o.opened) - o.file.closes
}

type fakeMeter struct {
	journal   *journal
	readings  []uint64
	failReads map[int]bool
	initErr   error
	finishErr error
	reads     int
	inits     int
	finishes  int
}

func (m *fakeMeter) Init() error {
	m.inits++
	return m.initErr
}

func (m *fakeMeter) Read() (uint64, error) {
	call := m.reads
	m.reads++
	if m.failReads[call] {
		return 0, errInjected
	}
	v := m.readings[0]
	m.readings = m.readings[1:]
	return v, nil
}

func (m *fakeMeter) Finish() error {
	m.finishes++
	m.journal.add("finish meter")
	return m.finishErr
}

func (*fakeMeter) Source() string {
	return "fake"
}

func (m *fakeMeter) factory() energy.Factory {
	return func() (energy.Meter, error) { return m, nil }
}

// recordingAggregator captures measurements instead of computing stats.
type recordingAggregator struct {
	initErr     error
	headerErr   error
	flushErr    error
	measured    []heartbeat.Measurement
	headers     int
	flushes     int
	initWindow  int
	initWithLog bool
}

func (a *recordingAggregator) WriteLogHeader(io.Writer) error {
	a.headers++
	return a.headerErr
}

func (a *recordingAggregator) Init(window []heartbeat.Record, log io.Writer) error {
	a.initWindow = len(window)
	a.initWithLog = log != nil
	return a.initErr
}

func (a *recordingAggregator) Record(m heartbeat.Measurement) {
	a.measured = append(a.measured, m)
}

func (a *recordingAggregator) FlushWindow(io.Writer) error {
	a.flushes++
	return a.flushErr
}

func (a *recordingAggregator) factory() hbsc.AggregatorFactory {
	return func(hbsc.Variant) hbsc.Aggregator { return a }
}

// stepClock returns step, 2*step, 3*step, ...
func stepClock(step uint64) hbsc.Clock {
	var now uint64
	return hbsc.ClockFunc(func() uint64 {
		now += step
		return now
	})
}

func beat(s *hbsc.Session, tag, work, accuracy uint64) error {
	if s.Variant().TracksAccuracy() {
		return s.HeartbeatAccuracy(tag, work, accuracy)
	}
	return s.Heartbeat(tag, work)
}
