package hbsc

import (
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"codeberg.org/mutker/hbsc/energy"
	"codeberg.org/mutker/hbsc/heartbeat"
	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
)

const (
	logFilePerm    = 0o644
	maxWindowBytes = 1 << 30
)

// Clock returns nanosecond timestamps. Zero is reserved for "no baseline".
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

func (f ClockFunc) Now() uint64 {
	return f()
}

// monotonicClock reports wall-clock nanoseconds advanced by the monotonic
// reading taken at construction.
type monotonicClock struct {
	base      time.Time
	baseNanos uint64
}

func newMonotonicClock() monotonicClock {
	now := time.Now()
	return monotonicClock{base: now, baseNanos: uint64(now.UnixNano())}
}

func (c monotonicClock) Now() uint64 {
	return c.baseNanos + uint64(time.Since(c.base))
}

// Allocator provides the window buffer handed to the aggregator.
type Allocator interface {
	Alloc(n uint64) ([]heartbeat.Record, error)
	Free(window []heartbeat.Record)
}

type heapAllocator struct{}

func (heapAllocator) Alloc(n uint64) (window []heartbeat.Record, err error) {
	errFactory := errors.New()

	if n > maxWindowBytes/uint64(unsafe.Sizeof(heartbeat.Record{})) {
		return nil, errFactory.WithData(ErrOutOfMemory, fmt.Sprintf("window of %d records exceeds %d bytes", n, maxWindowBytes))
	}

	defer func() {
		if r := recover(); r != nil {
			window = nil
			err = errFactory.WithData(ErrOutOfMemory, r)
		}
	}()

	return make([]heartbeat.Record, n), nil
}

// Free drops nothing explicitly; the buffer is garbage once the session
// and aggregator stop referencing it.
func (heapAllocator) Free([]heartbeat.Record) {}

// LogOpener opens the log target for path.
type LogOpener func(path string) (io.WriteCloser, error)

func openLogFile(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, logFilePerm)
}

// AggregatorFactory returns an uninitialized aggregator for variant.
type AggregatorFactory func(variant Variant) Aggregator

// Option configures Open
type Option func(*options) error

type options struct {
	logPath       string
	meterFactory  energy.Factory
	clock         Clock
	allocator     Allocator
	openLog       LogOpener
	newAggregator AggregatorFactory
	hook          heartbeat.WindowCompleteFunc
	logger        logger.Logger
}

func defaultOptions() *options {
	o := &options{
		clock:     newMonotonicClock(),
		allocator: heapAllocator{},
		openLog:   openLogFile,
		logger:    logger.Default().With("hbsc"),
	}
	o.newAggregator = func(variant Variant) Aggregator {
		var opts []heartbeat.Option
		if o.hook != nil {
			opts = append(opts, heartbeat.WithWindowCompleteHook(o.hook))
		}
		return heartbeat.New(variant, opts...)
	}
	return o
}

// WithLogPath enables logging to path. The file is created or truncated.
func WithLogPath(path string) Option {
	return func(o *options) error {
		if path == "" {
			return errors.New().WithData(ErrInvalidArgument, "empty log path")
		}
		o.logPath = path
		return nil
	}
}

// WithMeterFactory sets how energy variants obtain their meter.
func WithMeterFactory(factory energy.Factory) Option {
	return func(o *options) error {
		if factory == nil {
			return errors.New().WithData(ErrInvalidArgument, "nil meter factory")
		}
		o.meterFactory = factory
		return nil
	}
}

// WithClock replaces the monotonic nanosecond clock.
func WithClock(clock Clock) Option {
	return func(o *options) error {
		if clock == nil {
			return errors.New().WithData(ErrInvalidArgument, "nil clock")
		}
		o.clock = clock
		return nil
	}
}

// WithAllocator replaces the heap window allocator.
func WithAllocator(allocator Allocator) Option {
	return func(o *options) error {
		if allocator == nil {
			return errors.New().WithData(ErrInvalidArgument, "nil allocator")
		}
		o.allocator = allocator
		return nil
	}
}

// WithLogOpener replaces os.OpenFile for the log target.
func WithLogOpener(open LogOpener) Option {
	return func(o *options) error {
		if open == nil {
			return errors.New().WithData(ErrInvalidArgument, "nil log opener")
		}
		o.openLog = open
		return nil
	}
}

// WithAggregator replaces the heartbeat.Context aggregator. Hooks set with
// WithWindowCompleteHook only apply to the default aggregator.
func WithAggregator(factory AggregatorFactory) Option {
	return func(o *options) error {
		if factory == nil {
			return errors.New().WithData(ErrInvalidArgument, "nil aggregator factory")
		}
		o.newAggregator = factory
		return nil
	}
}

// WithWindowCompleteHook runs fn each time the window buffer fills.
func WithWindowCompleteHook(fn heartbeat.WindowCompleteFunc) Option {
	return func(o *options) error {
		o.hook = fn
		return nil
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log logger.Logger) Option {
	return func(o *options) error {
		if log == nil {
			return errors.New().WithData(ErrInvalidArgument, "nil logger")
		}
		o.logger = log
		return nil
	}
}
