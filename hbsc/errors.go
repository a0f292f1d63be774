package hbsc

import "codeberg.org/mutker/hbsc/internal/errors"

// ErrorCode identifies the failure behind an error returned by this package.
type ErrorCode = errors.ErrorCode

const (
	ErrInvalidArgument = errors.ErrInvalidArgument
	ErrInvalidSession  = ErrorCode("hbsc_invalid_session")
	ErrOutOfMemory     = ErrorCode("hbsc_out_of_memory")
	ErrIO              = ErrorCode("hbsc_io_failed")
	ErrLogFlush        = ErrorCode("hbsc_log_flush_failed")
	ErrMeterInit       = ErrorCode("hbsc_meter_init_failed")
	ErrMeterRead       = ErrorCode("hbsc_meter_read_failed")
	ErrMeterFinish     = ErrorCode("hbsc_meter_finish_failed")
	ErrInit            = ErrorCode("hbsc_init_failed")
	ErrTeardown        = ErrorCode("hbsc_teardown_failed")
)

// CodeOf returns the outermost error code in err's chain.
func CodeOf(err error) ErrorCode {
	return errors.CodeOf(err)
}

// HasCode reports whether err, or any error it wraps or joins, carries code.
// Use it to find the individual steps of a teardown failure.
func HasCode(err error, code ErrorCode) bool {
	return errors.HasCode(err, code)
}
