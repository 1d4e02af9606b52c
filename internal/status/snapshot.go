// internal/status/snapshot.go
package status

import (
	"time"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// MetricState is one named metric as published.
// Known is false when the value is carried over from an earlier cycle.
type MetricState struct {
	Name     string     `json:"name"`
	Label    string     `json:"label,omitempty"`
	Unit     string     `json:"unit,omitempty"`
	Value    float64    `json:"value"`
	Text     string     `json:"text"`
	Band     alarm.Band `json:"band"`
	Known    bool       `json:"known"`
	Flashing bool       `json:"flashing"`
	Lit      bool       `json:"lit"`
}

// Snapshot is the published state of one device after one cycle.
// Published values are never mutated; the next cycle replaces them.
type Snapshot struct {
	Device     string      `json:"device"`
	Class      fleet.Class `json:"class"`
	Assignment string      `json:"assignment,omitempty"`
	Cycle      uint64      `json:"cycle"`
	At         time.Time   `json:"at"`
	Health     Health      `json:"health"`

	Metrics []MetricState     `json:"metrics"`
	Alerts  []alarm.Indicator `json:"alerts,omitempty"`

	Threshold   float64   `json:"threshold,omitempty"`
	AutoControl bool      `json:"auto_control"`
	LastCommand time.Time `json:"last_command"`
}

// Metric looks up a metric by name.
func (s Snapshot) Metric(name string) (MetricState, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricState{}, false
}

// Alert looks up an alert indicator by class.
func (s Snapshot) Alert(class string) (alarm.Indicator, bool) {
	for _, a := range s.Alerts {
		if a.Class == class {
			return a, true
		}
	}
	return alarm.Indicator{}, false
}

// Clone returns a copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Metrics != nil {
		out.Metrics = append([]MetricState(nil), s.Metrics...)
	}
	if s.Alerts != nil {
		out.Alerts = append([]alarm.Indicator(nil), s.Alerts...)
	}
	return out
}
