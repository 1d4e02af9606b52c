// internal/status/encode.go
package status

import "encoding/json"

// Encode renders a Snapshot in its wire form (JSON).
// No IO. No side effects.
func Encode(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(b, &s)
	return s, err
}
