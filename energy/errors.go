package energy

import "codeberg.org/mutker/hbsc/internal/errors"

const (
	ErrUnknownMeter   = errors.ErrorCode("energy_unknown_meter")
	ErrNotInitialized = errors.ErrorCode("energy_not_initialized")
	ErrInitFailed     = errors.ErrorCode("energy_init_failed")
	ErrReadFailed     = errors.ErrorCode("energy_read_failed")
	ErrFinishFailed   = errors.ErrorCode("energy_finish_failed")

	// NVML
	ErrDeviceCountFailed = errors.ErrorCode("energy_nvml_device_count_failed")
	ErrDeviceNotFound    = errors.ErrorCode("energy_nvml_device_not_found")

	// RAPL
	ErrNoZones = errors.ErrorCode("energy_rapl_no_zones")
)
