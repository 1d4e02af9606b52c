// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// Writer issues the two write-back commands. Stateless apart from its plan;
// range validation happens before a Writer is ever reached.
type Writer struct {
	plan Plan
}

func New(plan Plan) (*Writer, error) {
	if plan.ArmRegister == plan.SetpointRegister {
		return nil, errors.New("writer: arm register and setpoint register must differ")
	}
	return &Writer{plan: plan}, nil
}

// Plan returns the register layout.
func (w *Writer) Plan() Plan { return w.plan }

// WriteCommand issues exactly one auto-control command write.
// No retries.
func (w *Writer) WriteCommand(cli Client, unitID uint8) error {
	if cli == nil {
		return fmt.Errorf("%w: no client", fleet.ErrWriteFailed)
	}
	if err := cli.WriteRegister(unitID, w.plan.CommandRegister, w.plan.CommandValue); err != nil {
		return wrapWrite(err, "command")
	}
	return nil
}

// WriteSetpoint performs arm-then-write. When the arm write fails the value
// write is not sent.
func (w *Writer) WriteSetpoint(cli Client, unitID uint8, value uint16) error {
	if cli == nil {
		return fmt.Errorf("%w: no client", fleet.ErrWriteFailed)
	}

	// ------------------------------------------------------------
	// PHASE 1: ARM
	// ------------------------------------------------------------
	if err := cli.WriteRegister(unitID, w.plan.ArmRegister, w.plan.ArmValue); err != nil {
		return fmt.Errorf("%w: reg %d=%d: %v", fleet.ErrArmFailed, w.plan.ArmRegister, w.plan.ArmValue, err)
	}

	// ------------------------------------------------------------
	// PHASE 2: VALUE
	// ------------------------------------------------------------
	if err := cli.WriteRegister(unitID, w.plan.SetpointRegister, value); err != nil {
		return wrapWrite(err, "setpoint")
	}
	return nil
}

func wrapWrite(err error, what string) error {
	if errors.Is(err, fleet.ErrWriteFailed) {
		return fmt.Errorf("writer: %s: %w", what, err)
	}
	return fmt.Errorf("writer: %s: %w: %v", what, fleet.ErrWriteFailed, err)
}
