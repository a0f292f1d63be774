package config

import "time"

// Provider exposes the loaded configuration to the harness.
type Provider interface {
	// GetWindow returns the sliding window capacity in heartbeats
	GetWindow() uint64

	// GetIterations returns the number of heartbeats issued per variant
	GetIterations() uint64

	GetWork() uint64
	GetAccuracy() uint64

	// GetLogDir returns the directory for per-variant heartbeat logs, or ""
	GetLogDir() string

	// GetVariants returns the variant names to run, in order
	GetVariants() []string

	// GetMeter returns the energy meter back-end name
	GetMeter() string
	GetRAPLRoot() string

	// GetLogLevel returns the configured logging level
	GetLogLevel() LogLevel

	// IsMetricsEnabled returns whether completed windows are persisted
	IsMetricsEnabled() bool

	// GetMetricsDBPath returns the path to the metrics database
	GetMetricsDBPath() string
	GetBatchSize() int
	GetBatchTimeout() time.Duration
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
	args       []string
	argsSet    bool
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "HBSC"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithArgs replaces os.Args[1:] as the command line to parse
func WithArgs(args []string) Option {
	return func(o *options) error {
		o.args = args
		o.argsSet = true
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
