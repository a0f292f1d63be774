// Package hbsc records heartbeats into a windowed aggregator, deriving each
// interval from the previous call, with optional accuracy and energy
// tracking and an optional log file.
package hbsc

import (
	"io"

	"codeberg.org/mutker/hbsc/energy"
	"codeberg.org/mutker/hbsc/heartbeat"
	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
)

// Variant selects whether a session tracks accuracy and/or energy.
type Variant = heartbeat.Kind

const (
	Base          = heartbeat.Base
	Accuracy      = heartbeat.Accuracy
	Power         = heartbeat.Power
	AccuracyPower = heartbeat.AccuracyPower
)

// Aggregator is the windowed statistics engine a session feeds.
type Aggregator interface {
	WriteLogHeader(w io.Writer) error
	Init(window []heartbeat.Record, log io.Writer) error
	// Record must not fail once Init has succeeded
	Record(m heartbeat.Measurement)
	FlushWindow(w io.Writer) error
}

// Session is a single heartbeat measurement session. It is not safe for
// concurrent use.
type Session struct {
	variant  Variant
	capacity uint64

	window    []heartbeat.Record
	logTarget io.WriteCloser
	agg       Aggregator
	meter     energy.Meter
	clock     Clock
	res       *resources
	log       logger.Logger

	startTime   uint64
	startEnergy uint64
	closed      bool
}

// Open acquires the window buffer, the optional log file and, for energy
// variants, the energy meter, then initializes the aggregator. On failure
// everything acquired so far is released before returning.
func Open(variant Variant, windowCapacity uint64, opts ...Option) (*Session, error) {
	errFactory := errors.New()

	if !variant.Valid() {
		return nil, errFactory.WithData(ErrInvalidArgument, "unknown variant")
	}
	if windowCapacity == 0 {
		return nil, errFactory.WithData(ErrInvalidArgument, "window capacity must be positive")
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	agg := o.newAggregator(variant)
	if agg == nil {
		return nil, errFactory.WithData(ErrInvalidArgument, "aggregator factory returned nil")
	}

	res := &resources{}
	opened := false
	defer func() {
		if opened {
			return
		}
		for kind, err := range res.unwind() {
			o.logger.Warn().Err(err).Str("resource", kind.String()).Msg("Failed to release resource during rollback")
		}
	}()

	window, err := o.allocator.Alloc(windowCapacity)
	if err != nil {
		return nil, errFactory.Wrap(ErrOutOfMemory, err)
	}
	res.acquire(resWindow, func() error {
		o.allocator.Free(window)
		return nil
	})
	if uint64(len(window)) < windowCapacity {
		return nil, errFactory.WithData(ErrOutOfMemory, "allocator returned a short window")
	}

	s := &Session{
		variant:  variant,
		capacity: windowCapacity,
		window:   window,
		clock:    o.clock,
		res:      res,
		log:      o.logger,
	}

	if o.logPath != "" {
		f, err := o.openLog(o.logPath)
		if err != nil {
			return nil, errFactory.Wrap(ErrIO, err)
		}
		res.acquire(resLog, f.Close)
		s.logTarget = f

		if err := agg.WriteLogHeader(f); err != nil {
			return nil, errFactory.Wrap(ErrIO, err)
		}
	}

	if variant.TracksEnergy() {
		m, err := newMeter(o.meterFactory)
		if err != nil {
			return nil, err
		}
		res.acquire(resMeter, m.Finish)
		s.meter = m
		s.startEnergy = 0
	}

	var logTarget io.Writer
	if s.logTarget != nil {
		logTarget = s.logTarget
	}
	if err := agg.Init(window[:windowCapacity], logTarget); err != nil {
		return nil, errFactory.Wrap(ErrInit, err)
	}
	s.agg = agg
	s.startTime = 0
	opened = true

	s.log.Debug().
		Str("variant", variant.String()).
		Uint64("window", windowCapacity).
		Str("log_path", o.logPath).
		Msg("Heartbeat session opened")

	return s, nil
}

func newMeter(factory energy.Factory) (energy.Meter, error) {
	errFactory := errors.New()

	if factory == nil {
		return nil, errFactory.WithData(ErrMeterInit, "no energy meter configured")
	}

	m, err := factory()
	if err != nil {
		return nil, errFactory.Wrap(ErrMeterInit, err)
	}
	if m == nil {
		return nil, errFactory.WithData(ErrMeterInit, "energy meter factory returned nil")
	}
	if err := m.Init(); err != nil {
		return nil, errFactory.Wrap(ErrMeterInit, err)
	}

	return m, nil
}

// Heartbeat marks the end of one unit of work for variants without
// accuracy tracking. The first call after Open only sets the baseline.
func (s *Session) Heartbeat(tag, work uint64) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.variant.TracksAccuracy() {
		return errors.New().WithData(ErrInvalidArgument, "accuracy session requires HeartbeatAccuracy")
	}
	return s.beat(tag, work, 0)
}

// HeartbeatAccuracy is Heartbeat for variants that track accuracy.
func (s *Session) HeartbeatAccuracy(tag, work, accuracy uint64) error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.variant.TracksAccuracy() {
		return errors.New().WithData(ErrInvalidArgument, "session does not track accuracy")
	}
	return s.beat(tag, work, accuracy)
}

func (s *Session) check() error {
	if s == nil {
		return errors.New().WithData(ErrInvalidSession, "nil session")
	}
	if s.closed {
		return errors.New().WithData(ErrInvalidSession, "session closed")
	}
	return nil
}

// beat pairs the previous call's end values with fresh ones. Energy is
// sampled before time; a failed read leaves both baselines untouched.
func (s *Session) beat(tag, work, accuracy uint64) error {
	var startEnergy, endEnergy uint64
	if s.meter != nil {
		startEnergy = s.startEnergy
		e, err := s.meter.Read()
		if err != nil {
			return errors.New().Wrap(ErrMeterRead, err)
		}
		endEnergy = e
	}

	startTime := s.startTime
	endTime := s.clock.Now()

	if startTime > 0 {
		s.agg.Record(heartbeat.Measurement{
			Tag:         tag,
			Work:        work,
			StartTime:   startTime,
			EndTime:     endTime,
			Accuracy:    accuracy,
			StartEnergy: startEnergy,
			EndEnergy:   endEnergy,
		})
	}

	s.startTime = endTime
	s.startEnergy = endEnergy

	return nil
}

// Close flushes unwritten window records to the log, closes it, releases
// the window buffer and finishes the energy meter. Every step is attempted;
// failures are joined into one ErrTeardown error. The session cannot be
// used afterwards.
func (s *Session) Close() error {
	errFactory := errors.New()

	if err := s.check(); err != nil {
		return err
	}
	s.closed = true

	var failures []error
	if s.logTarget != nil {
		if err := s.agg.FlushWindow(s.logTarget); err != nil {
			failures = append(failures, errFactory.Wrap(ErrLogFlush, err))
		}
		if err := s.res.release(resLog); err != nil {
			failures = append(failures, errFactory.Wrap(ErrIO, err))
		}
	}

	// never fails
	_ = s.res.release(resWindow)

	if s.res.holds(resMeter) {
		if err := s.res.release(resMeter); err != nil {
			failures = append(failures, errFactory.Wrap(ErrMeterFinish, err))
		}
	}

	s.window = nil
	s.logTarget = nil
	s.meter = nil

	if err := errFactory.Join(ErrTeardown, failures...); err != nil {
		s.log.Warn().Err(err).Msg("Heartbeat session closed with errors")
		return err
	}

	s.log.Debug().Str("variant", s.variant.String()).Msg("Heartbeat session closed")
	return nil
}

func (s *Session) Variant() Variant {
	return s.variant
}

func (s *Session) WindowCapacity() uint64 {
	return s.capacity
}

// Aggregator returns the aggregator fed by the session. It stays readable
// after Close.
func (s *Session) Aggregator() Aggregator {
	return s.agg
}

// Stats returns the aggregator's statistics when it is a heartbeat.Context.
func (s *Session) Stats() (heartbeat.Stats, bool) {
	ctx, ok := s.agg.(*heartbeat.Context)
	if !ok {
		return heartbeat.Stats{}, false
	}
	return ctx.Stats(), true
}
