// internal/fleet/device.go
package fleet

import (
	"fmt"
	"strings"
)

// Class selects the register map a unit is read with.
type Class string

const (
	// ClassA is the "Prime" unit family (230xx controllers).
	ClassA Class = "prime"

	// ClassB is the LFPC unit family.
	ClassB Class = "lfpc"
)

// ParseClass accepts the canonical names plus the short A/B aliases.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prime", "a", "class_a":
		return ClassA, nil
	case "lfpc", "b", "class_b":
		return ClassB, nil
	}
	return "", fmt.Errorf("fleet: unknown device class %q", s)
}

// Device is one monitored unit.
// Immutable once handed to the supervisor.
type Device struct {
	Name       string
	Address    string
	Class      Class
	Assignment string
	UnitID     uint8

	// Threshold overrides the global primary threshold when non-zero.
	Threshold float64
}

// Label is the display name: "name (assignment)" when an assignment exists.
func (d Device) Label() string {
	if d.Assignment == "" {
		return d.Name
	}
	return d.Name + " (" + d.Assignment + ")"
}
