// internal/fleet/event.go
package fleet

import "time"

// EventType names a state delta worth keeping in the journal.
type EventType string

const (
	EventBandChange      EventType = "band_change"
	EventCommandWrite    EventType = "command_write"
	EventCommandFailed   EventType = "command_failed"
	EventSetpointWrite   EventType = "setpoint_write"
	EventSetpointFailed  EventType = "setpoint_failed"
	EventAckSet          EventType = "ack_set"
	EventAckCleared      EventType = "ack_cleared"
	EventUnreachable     EventType = "unreachable"
	EventReachable       EventType = "reachable"
	EventThresholdChange EventType = "threshold_change"
)

// Event is one engine-side state change.
type Event struct {
	At        time.Time `json:"at"`
	Device    string    `json:"device"`
	Metric    string    `json:"metric,omitempty"`
	Type      EventType `json:"type"`
	Previous  string    `json:"previous,omitempty"`
	Value     string    `json:"value,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CommandID string    `json:"command_id,omitempty"`
}
