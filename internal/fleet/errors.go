// internal/fleet/errors.go
package fleet

import "errors"

// Per-device failures. None of these are fatal to the fleet.
var (
	// ErrUnreachable: connect failed, retried next cycle.
	ErrUnreachable = errors.New("device unreachable")

	// ErrReadFailed: one register group unavailable this cycle.
	ErrReadFailed = errors.New("register read failed")

	// ErrWriteFailed: command not acknowledged by the device.
	ErrWriteFailed = errors.New("register write failed")

	// ErrArmFailed: the arm write of an arm-then-write sequence failed.
	// The value write was not sent.
	ErrArmFailed = errors.New("arm write failed")

	// ErrConfigOutOfRange: threshold or setpoint outside its safe range.
	// Rejected before any network call.
	ErrConfigOutOfRange = errors.New("value out of range")

	// ErrUnsupported: the device class has no register for the operation.
	// Rejected before any network call.
	ErrUnsupported = errors.New("operation not supported by device class")

	ErrUnknownDevice = errors.New("unknown device")
	ErrUnknownAlert  = errors.New("unknown alert class")
	ErrNotPermitted  = errors.New("setpoint control not permitted")
	ErrNotRunning    = errors.New("monitoring not running")
)
