package energy

import (
	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const microjoulesPerMillijoule = 1000

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	// GetTotalEnergy returns millijoules consumed since the driver loaded
	GetTotalEnergy(index int) (uint64, error)
}

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	errFactory := errors.New()
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	errFactory := errors.New()
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrFinishFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) GetTotalEnergy(index int) (uint64, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	energy, ret := device.GetTotalEnergyConsumption()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrReadFailed, newNVMLError(ret))
	}

	return energy, nil
}

// nvmlMeter sums the energy counters of every visible NVIDIA GPU.
type nvmlMeter struct {
	ctrl    nvmlController
	devices int
	ready   bool
}

// NewNVML returns a meter backed by NVML.
func NewNVML() Meter {
	return newNVMLMeter(&nvmlWrapper{})
}

func newNVMLMeter(ctrl nvmlController) *nvmlMeter {
	return &nvmlMeter{ctrl: ctrl}
}

func (m *nvmlMeter) Init() error {
	errFactory := errors.New()

	if err := m.ctrl.Initialize(); err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}

	count, err := m.ctrl.GetDeviceCount()
	if err == nil && count == 0 {
		err = errFactory.New(ErrDeviceNotFound)
	}
	if err != nil {
		if shutdownErr := m.ctrl.Shutdown(); shutdownErr != nil {
			logger.Debug().Err(shutdownErr).Msg("Failed to shut down NVML after init failure")
		}
		return errFactory.Wrap(ErrInitFailed, err)
	}

	m.devices = count
	m.ready = true
	logger.Debug().Int("devices", count).Msg("NVML energy meter initialized")

	return nil
}

func (m *nvmlMeter) Read() (uint64, error) {
	errFactory := errors.New()
	if !m.ready {
		return 0, errFactory.New(ErrNotInitialized)
	}

	var total uint64
	for i := 0; i < m.devices; i++ {
		mj, err := m.ctrl.GetTotalEnergy(i)
		if err != nil {
			return 0, errFactory.Wrap(ErrReadFailed, err)
		}
		total += mj * microjoulesPerMillijoule
	}

	return total, nil
}

func (m *nvmlMeter) Finish() error {
	if !m.ready {
		return nil
	}
	m.ready = false

	if err := m.ctrl.Shutdown(); err != nil {
		return errors.New().Wrap(ErrFinishFailed, err)
	}
	return nil
}

func (*nvmlMeter) Source() string {
	return "NVML"
}
