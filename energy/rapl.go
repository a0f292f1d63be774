package energy

import (
	"strings"

	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
	"github.com/prometheus/procfs/sysfs"
)

const raplPackagePrefix = "package"

// raplMeter accumulates the powercap package zones. Each zone counter wraps
// at its max_energy_range_uj.
type raplMeter struct {
	root  string
	zones []sysfs.RaplZone
	last  []uint64
	total uint64
	ready bool
}

// NewRAPL returns a meter reading Intel RAPL zones below the sysfs mount
// point root.
func NewRAPL(root string) Meter {
	return &raplMeter{root: root}
}

func (m *raplMeter) Init() error {
	errFactory := errors.New()

	fs, err := sysfs.NewFS(m.root)
	if err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}

	zones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}

	m.zones = m.zones[:0]
	for _, z := range zones {
		if strings.HasPrefix(z.Name, raplPackagePrefix) {
			m.zones = append(m.zones, z)
		}
	}
	if len(m.zones) == 0 {
		return errFactory.WithData(ErrNoZones, m.root)
	}

	m.last = make([]uint64, len(m.zones))
	for i, z := range m.zones {
		uj, err := z.GetEnergyMicrojoules()
		if err != nil {
			return errFactory.Wrap(ErrInitFailed, err)
		}
		m.last[i] = uj
	}

	m.total = 0
	m.ready = true
	logger.Debug().Int("zones", len(m.zones)).Str("root", m.root).Msg("RAPL energy meter initialized")

	return nil
}

func (m *raplMeter) Read() (uint64, error) {
	errFactory := errors.New()
	if !m.ready {
		return 0, errFactory.New(ErrNotInitialized)
	}

	current := make([]uint64, len(m.zones))
	for i, z := range m.zones {
		uj, err := z.GetEnergyMicrojoules()
		if err != nil {
			return 0, errFactory.Wrap(ErrReadFailed, err)
		}
		current[i] = uj
	}

	for i, z := range m.zones {
		if current[i] >= m.last[i] {
			m.total += current[i] - m.last[i]
		} else {
			m.total += z.MaxMicrojoules - m.last[i] + current[i]
		}
		m.last[i] = current[i]
	}

	return m.total, nil
}

func (m *raplMeter) Finish() error {
	m.ready = false
	m.zones = nil
	m.last = nil
	return nil
}

func (*raplMeter) Source() string {
	return "Intel RAPL (powercap)"
}
