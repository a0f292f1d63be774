package heartbeat

import "codeberg.org/mutker/hbsc/internal/errors"

const (
	ErrInvalidKind = errors.ErrorCode("heartbeat_invalid_kind")
	ErrInit        = errors.ErrorCode("heartbeat_init_failed")
	ErrLogWrite    = errors.ErrorCode("heartbeat_log_write_failed")
	ErrNoLog       = errors.ErrorCode("heartbeat_no_log_target")
)
