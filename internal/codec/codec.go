// internal/codec/codec.go
package codec

import (
	"math"
	"strings"
)

// Register word decoding.
// Pure functions. Malformed payloads are rejected by the transport before
// anything here runs.

// DecodeUint16 returns the word as an unsigned value.
func DecodeUint16(w uint16) uint16 { return w }

// DecodeInt16 reinterprets the word as two's complement.
func DecodeInt16(w uint16) int16 { return int16(w) }

// DecodeFloat32BE reinterprets hi<<16|lo as IEEE-754 binary32.
// Bit-exact: no rounding, NaN payloads preserved.
func DecodeFloat32BE(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}

// EncodeFloat32BE is the inverse of DecodeFloat32BE.
func EncodeFloat32BE(f float32) (hi, lo uint16) {
	bits := math.Float32bits(f)
	return uint16(bits >> 16), uint16(bits)
}

// DecodeBit reports whether bit (0 = LSB) is set.
func DecodeBit(w uint16, bit uint8) bool {
	if bit > 15 {
		return false
	}
	return w&(1<<bit) != 0
}

// Words converts a big-endian byte payload into register words.
// A trailing odd byte is dropped.
func Words(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}

// DecodeASCII unpacks two characters per word, high byte first.
// Trailing NULs and spaces are trimmed.
func DecodeASCII(words []uint16) string {
	b := make([]byte, 0, len(words)*2)
	for _, w := range words {
		b = append(b, byte(w>>8), byte(w))
	}
	return strings.TrimRight(string(b), "\x00 ")
}
