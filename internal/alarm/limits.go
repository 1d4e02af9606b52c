// internal/alarm/limits.go
package alarm

import (
	"fmt"
	"math"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// Range is an inclusive safe range for an operator-supplied value.
type Range struct {
	Min float64
	Max float64
}

// Check rejects values outside the range. Nothing is clamped.
func (r Range) Check(what string, v float64) error {
	if math.IsNaN(v) || v < r.Min || v > r.Max {
		return fmt.Errorf("%w: %s %v outside [%v, %v]", fleet.ErrConfigOutOfRange, what, v, r.Min, r.Max)
	}
	return nil
}

// CheckThreshold validates a primary threshold.
func CheckThreshold(r Range, v float64) error {
	return r.Check("threshold", v)
}

// CheckSetpoint validates a setpoint and converts it to a register value.
// Setpoints are whole register values.
func CheckSetpoint(r Range, v float64) (uint16, error) {
	if err := r.Check("setpoint", v); err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: setpoint %v is not a whole number", fleet.ErrConfigOutOfRange, v)
	}
	return uint16(v), nil
}
