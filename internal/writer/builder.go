// internal/writer/builder.go
package writer

import (
	"errors"

	cfg "github.com/tamzrod/modbus-fleetmon/internal/config"
)

// BuildPlan converts the control section into a write Plan.
// Assumes config has already passed Validate and Normalize.
func BuildPlan(c cfg.ControlConfig) (Plan, error) {
	if c.CommandRegister == nil || c.CommandValue == nil ||
		c.Setpoint.Register == nil || c.Setpoint.ArmRegister == nil || c.Setpoint.ArmValue == nil {
		return Plan{}, errors.New("writer: control registers not normalized")
	}

	return Plan{
		CommandRegister:  *c.CommandRegister,
		CommandValue:     *c.CommandValue,
		ArmRegister:      *c.Setpoint.ArmRegister,
		ArmValue:         *c.Setpoint.ArmValue,
		SetpointRegister: *c.Setpoint.Register,
	}, nil
}

// Build is BuildPlan followed by New.
func Build(c cfg.ControlConfig) (*Writer, error) {
	plan, err := BuildPlan(c)
	if err != nil {
		return nil, err
	}
	return New(plan)
}
