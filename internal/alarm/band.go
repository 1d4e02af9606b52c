// internal/alarm/band.go
package alarm

import "fmt"

// Band is the severity classification of one reading.
// Unknown means no fresh value this cycle.
type Band uint8

const (
	Unknown Band = iota
	Normal
	Caution
	Fault
)

func (b Band) String() string {
	switch b {
	case Unknown:
		return "unknown"
	case Normal:
		return "normal"
	case Caution:
		return "caution"
	case Fault:
		return "fault"
	}
	return fmt.Sprintf("band(%d)", uint8(b))
}

func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Band) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown":
		*b = Unknown
	case "normal":
		*b = Normal
	case "caution":
		*b = Caution
	case "fault":
		*b = Fault
	default:
		return fmt.Errorf("alarm: unknown band %q", text)
	}
	return nil
}
