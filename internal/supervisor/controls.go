// internal/supervisor/controls.go
package supervisor

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// ---- poller.Controls ----

// Active reports whether monitoring runs. Read by every poller every cycle.
func (s *Supervisor) Active() bool { return s.active.Load() }

// AutoControl reports the global auto-control flag.
func (s *Supervisor) AutoControl() bool { return s.auto.Load() }

// SetpointPermitted reports whether the privilege gate is open.
func (s *Supervisor) SetpointPermitted() bool { return s.maintenance.Load() }

// Threshold returns the live primary threshold of a device: its override
// if one is set, else the global value.
func (s *Supervisor) Threshold(device string) float64 {
	s.thMu.RLock()
	v, ok := s.overrides[device]
	s.thMu.RUnlock()
	if ok {
		return v
	}
	return s.GlobalThreshold()
}

// GlobalThreshold returns the fleet-wide primary threshold.
func (s *Supervisor) GlobalThreshold() float64 {
	return math.Float64frombits(s.threshold.Load())
}

// ThresholdRange returns the accepted threshold range.
func (s *Supervisor) ThresholdRange() alarm.Range { return s.cfg.ThresholdRange }

// SetpointRange returns the accepted setpoint range.
func (s *Supervisor) SetpointRange() alarm.Range { return s.cfg.SetpointRange }

// ---- operator toggles ----

// SetAutoControl flips auto-control for the whole fleet.
func (s *Supervisor) SetAutoControl(on bool) {
	if s.auto.Swap(on) != on {
		s.log.Info().Bool("enabled", on).Msg("auto-control changed")
	}
}

// SetMaintenance opens or closes the privilege gate.
func (s *Supervisor) SetMaintenance(on bool) {
	if s.maintenance.Swap(on) != on {
		s.log.Info().Bool("enabled", on).Msg("maintenance mode changed")
	}
}

// SetGlobalThreshold replaces the fleet-wide threshold.
// Out-of-range values are rejected, never clamped.
func (s *Supervisor) SetGlobalThreshold(v float64) error {
	if err := alarm.CheckThreshold(s.cfg.ThresholdRange, v); err != nil {
		return err
	}

	prev := math.Float64frombits(s.threshold.Swap(math.Float64bits(v)))
	s.log.Info().Float64("previous", prev).Float64("threshold", v).Msg("global threshold changed")
	s.events.Record(fleet.Event{
		At:       time.Now(),
		Type:     fleet.EventThresholdChange,
		Previous: fmtFloat(prev),
		Value:    fmtFloat(v),
		Detail:   "global",
	})
	return nil
}

// SetThreshold overrides the threshold of one device.
func (s *Supervisor) SetThreshold(device string, v float64) error {
	d, ok := s.device(device)
	if !ok {
		return fmt.Errorf("%w: %s", fleet.ErrUnknownDevice, device)
	}
	if _, ok := s.cfg.Profiles[d.Class].Primary(); !ok {
		return fmt.Errorf("%w: %s (%s) has no primary metric to threshold", fleet.ErrUnsupported, device, d.Class)
	}
	if err := alarm.CheckThreshold(s.cfg.ThresholdRange, v); err != nil {
		return err
	}

	prev := s.Threshold(device)

	s.thMu.Lock()
	s.overrides[device] = v
	s.thMu.Unlock()

	s.log.Info().Str("device", device).Float64("previous", prev).Float64("threshold", v).Msg("device threshold changed")
	s.events.Record(fleet.Event{
		At:       time.Now(),
		Device:   device,
		Type:     fleet.EventThresholdChange,
		Previous: fmtFloat(prev),
		Value:    fmtFloat(v),
	})
	return nil
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
