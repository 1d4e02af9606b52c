// internal/poller/decode.go
package poller

import (
	"github.com/tamzrod/modbus-fleetmon/internal/codec"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// decode turns a group's words into the metric's numeric value.
// Bits decode to 0/1.
func decode(m fleet.MetricDef, words []uint16) float64 {
	switch m.Kind {
	case fleet.KindInt16:
		return float64(codec.DecodeInt16(words[0]))
	case fleet.KindFloat32:
		return float64(codec.DecodeFloat32BE(words[0], words[1]))
	case fleet.KindBit:
		if codec.DecodeBit(words[0], m.Bit) {
			return 1
		}
		return 0
	}
	return float64(codec.DecodeUint16(words[0]))
}
