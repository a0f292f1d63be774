package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"codeberg.org/mutker/hbsc/energy"
	"codeberg.org/mutker/hbsc/heartbeat"
	"codeberg.org/mutker/hbsc/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultWindow       = 20
	DefaultIterations   = 100
	DefaultWork         = 1
	DefaultAccuracy     = 1
	DefaultMeter        = energy.MeterDummy
	DefaultRAPLRoot     = "/sys"
	DefaultLogLevel     = LogLevelWarning
	DefaultMetricsDB    = "hbsc.db"
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 5 * time.Second

	defaultEnvPrefix  = "HBSC"
	defaultConfigName = "hbsc"
)

// ErrHelp is returned by Load when usage was requested
var ErrHelp = pflag.ErrHelp

type Config struct {
	Window       uint64        `mapstructure:"window"`
	Iterations   uint64        `mapstructure:"iterations"`
	Work         uint64        `mapstructure:"work"`
	Accuracy     uint64        `mapstructure:"accuracy"`
	LogDir       string        `mapstructure:"log_dir"`
	Variants     []string      `mapstructure:"variants"`
	Meter        string        `mapstructure:"meter"`
	RAPLRoot     string        `mapstructure:"rapl_root"`
	LogLevel     LogLevel      `mapstructure:"log_level"`
	Metrics      bool          `mapstructure:"metrics"`
	MetricsDB    string        `mapstructure:"metrics_db"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// flag name to config key
var flagKeys = map[string]string{
	"window":        "window",
	"iterations":    "iterations",
	"work":          "work",
	"accuracy":      "accuracy",
	"log-dir":       "log_dir",
	"variants":      "variants",
	"meter":         "meter",
	"rapl-root":     "rapl_root",
	"log-level":     "log_level",
	"metrics":       "metrics",
	"metrics-db":    "metrics_db",
	"batch-size":    "batch_size",
	"batch-timeout": "batch_timeout",
}

// Load reads configuration from flags, environment and an optional TOML
// file, in that order of precedence, and validates it.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, fs, o); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	cfg.Variants = splitList(cfg.Variants)
	cfg.LogLevel = LogLevel(strings.ToLower(string(cfg.LogLevel)))
	if cfg.LogLevel == "warn" {
		cfg.LogLevel = LogLevelWarning
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("window", DefaultWindow)
	v.SetDefault("iterations", DefaultIterations)
	v.SetDefault("work", DefaultWork)
	v.SetDefault("accuracy", DefaultAccuracy)
	v.SetDefault("log_dir", "")
	v.SetDefault("variants", variantNames())
	v.SetDefault("meter", DefaultMeter)
	v.SetDefault("rapl_root", DefaultRAPLRoot)
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", DefaultMetricsDB)
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("batch_timeout", DefaultBatchTimeout)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("hbsc", pflag.ContinueOnError)

	fs.String("config", "", "Path to a TOML configuration file")
	fs.Uint64("window", DefaultWindow, "Sliding window capacity in heartbeats")
	fs.Uint64("iterations", DefaultIterations, "Heartbeats issued per variant")
	fs.Uint64("work", DefaultWork, "Work units reported per heartbeat")
	fs.Uint64("accuracy", DefaultAccuracy, "Accuracy reported per heartbeat")
	fs.String("log-dir", "", "Directory for per-variant heartbeat logs")
	fs.StringSlice("variants", variantNames(), "Variants to run")
	fs.String("meter", DefaultMeter, "Energy meter: "+strings.Join(energy.Names(), ", "))
	fs.String("rapl-root", DefaultRAPLRoot, "sysfs mount point for the RAPL meter")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.Bool("metrics", false, "Persist completed windows to sqlite")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the metrics database")
	fs.Int("batch-size", DefaultBatchSize, "Window rows buffered before a database write")
	fs.Duration("batch-timeout", DefaultBatchTimeout, "Maximum time rows stay buffered")

	return fs
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet, o *options) error {
	errFactory := errors.New()

	path := o.configPath
	if flagPath, err := fs.GetString("config"); err == nil && flagPath != "" {
		path = flagPath
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(defaultConfigName)
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hbsc")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks every field and reports the first invalid one
func (c *Config) Validate() error {
	errFactory := errors.New()
	invalid := func(field string, value any) error {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("%s: %v", field, value))
	}

	if c.Window == 0 {
		return invalid("window", c.Window)
	}
	if c.Iterations == 0 {
		return invalid("iterations", c.Iterations)
	}
	if len(c.Variants) == 0 {
		return invalid("variants", "none selected")
	}
	// each variant owns one log file and one set of window rows per run
	seen := make(map[heartbeat.Kind]bool, len(c.Variants))
	for _, name := range c.Variants {
		kind, err := heartbeat.ParseKind(name)
		if err != nil || seen[kind] {
			return invalid("variants", name)
		}
		seen[kind] = true
	}
	if !slices.Contains(energy.Names(), c.Meter) {
		return invalid("meter", c.Meter)
	}
	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, string(c.LogLevel))
	}
	if c.Metrics {
		if c.MetricsDB == "" {
			return invalid("metrics_db", "empty path")
		}
		if c.BatchSize <= 0 {
			return invalid("batch_size", c.BatchSize)
		}
		if c.BatchTimeout <= 0 {
			return invalid("batch_timeout", c.BatchTimeout)
		}
	}

	return nil
}

func (c *Config) GetWindow() uint64              { return c.Window }
func (c *Config) GetIterations() uint64          { return c.Iterations }
func (c *Config) GetWork() uint64                { return c.Work }
func (c *Config) GetAccuracy() uint64            { return c.Accuracy }
func (c *Config) GetLogDir() string              { return c.LogDir }
func (c *Config) GetVariants() []string          { return c.Variants }
func (c *Config) GetMeter() string               { return c.Meter }
func (c *Config) GetRAPLRoot() string            { return c.RAPLRoot }
func (c *Config) GetLogLevel() LogLevel          { return c.LogLevel }
func (c *Config) IsMetricsEnabled() bool         { return c.Metrics }
func (c *Config) GetMetricsDBPath() string       { return c.MetricsDB }
func (c *Config) GetBatchSize() int              { return c.BatchSize }
func (c *Config) GetBatchTimeout() time.Duration { return c.BatchTimeout }

func variantNames() []string {
	names := make([]string, 0, len(heartbeat.Kinds))
	for _, k := range heartbeat.Kinds {
		names = append(names, k.String())
	}
	return names
}

// splitList accepts both lists and comma separated strings, as produced by
// environment variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}
