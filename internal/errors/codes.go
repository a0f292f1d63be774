package errors

// Common error codes
const (
	// System errors
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrBindFlags     ErrorCode = "bind_flags_failed"
	ErrParseFlags    ErrorCode = "parse_flags_failed"
	ErrReadConfig    ErrorCode = "read_config_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Application errors
	ErrInitApp    ErrorCode = "init_app_failed"
	ErrRunVariant ErrorCode = "run_variant_failed"

	// Operation errors
	ErrTimeout ErrorCode = "operation_timeout"

	// Window store errors
	ErrInitStore    ErrorCode = "init_store_failed"
	ErrRecordWindow ErrorCode = "record_window_failed"
	ErrCloseStore   ErrorCode = "close_store_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInvalidArgument: "Invalid argument provided",
	ErrInvalidConfig:   "Invalid configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrParseFlags:      "Failed to parse flags",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitApp:         "Failed to initialize application",
	ErrRunVariant:      "Failed to run heartbeat variant",
	ErrTimeout:         "Operation timed out",
	ErrInitStore:       "Failed to initialize window store",
	ErrRecordWindow:    "Failed to record window",
	ErrCloseStore:      "Failed to close window store",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
