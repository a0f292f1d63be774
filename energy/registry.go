package energy

import (
	"sort"

	"codeberg.org/mutker/hbsc/internal/errors"
)

const (
	MeterDummy = "dummy"
	MeterNVML  = "nvml"
	MeterRAPL  = "rapl"

	defaultSysfsRoot = "/sys"
)

// Option configures meters built by Lookup
type Option func(*options)

type options struct {
	sysfsRoot string
}

// WithSysfsRoot sets the sysfs mount point used by the RAPL meter.
func WithSysfsRoot(path string) Option {
	return func(o *options) {
		o.sysfsRoot = path
	}
}

var builders = map[string]func(options) Meter{
	MeterDummy: func(options) Meter { return NewDummy() },
	MeterNVML:  func(options) Meter { return NewNVML() },
	MeterRAPL:  func(o options) Meter { return NewRAPL(o.sysfsRoot) },
}

// Names returns the names accepted by Lookup.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a Factory for the named meter.
func Lookup(name string, opts ...Option) (Factory, error) {
	build, ok := builders[name]
	if !ok {
		return nil, errors.New().WithData(ErrUnknownMeter, name)
	}

	o := options{sysfsRoot: defaultSysfsRoot}
	for _, opt := range opts {
		opt(&o)
	}

	return func() (Meter, error) {
		return build(o), nil
	}, nil
}
