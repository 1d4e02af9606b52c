// internal/status/constants.go
package status

import "fmt"

// Health is the device-level outcome of the last poll cycle.
type Health uint16

// ---- HEALTH CODES ----

// HealthUnknown represents a device that has not completed a cycle yet.
const HealthUnknown Health = 0

// HealthOK represents a cycle in which every register group was read.
const HealthOK Health = 1

// HealthDegraded represents a cycle with at least one failed group.
const HealthDegraded Health = 2

// HealthUnreachable represents a cycle that could not connect.
const HealthUnreachable Health = 3

func (h Health) String() string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthOK:
		return "ok"
	case HealthDegraded:
		return "degraded"
	case HealthUnreachable:
		return "unreachable"
	}
	return fmt.Sprintf("health(%d)", uint16(h))
}

func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Health) UnmarshalText(text []byte) error {
	for _, c := range []Health{HealthUnknown, HealthOK, HealthDegraded, HealthUnreachable} {
		if c.String() == string(text) {
			*h = c
			return nil
		}
	}
	return fmt.Errorf("status: unknown health %q", text)
}

// ---- LIMITS ----

// DefaultSubscriberBuffer is the channel depth handed to subscribers that ask for none.
const DefaultSubscriberBuffer = 16
