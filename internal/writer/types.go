// internal/writer/types.go
package writer

// Client is the exact contract the writer uses.
// Satisfied by a pooled connection lease.
type Client interface {
	WriteRegister(unitID uint8, addr, value uint16) error
}

// Plan is the fixed write-back register layout shared by the fleet.
type Plan struct {
	// Auto-control command: CommandRegister <- CommandValue.
	CommandRegister uint16
	CommandValue    uint16

	// Setpoint: ArmRegister <- ArmValue, then SetpointRegister <- value.
	ArmRegister      uint16
	ArmValue         uint16
	SetpointRegister uint16
}
