// internal/alarm/trigger.go
package alarm

import "time"

// Trigger is the per-device auto-control state.
// Mutated only by the poller that owns the device.
type Trigger struct {
	Threshold float64
	Cooldown  time.Duration

	last time.Time
}

// Fires reports whether a command write is due: value at or above the
// threshold and the cooldown elapsed since the last recorded trigger.
// It does not record anything; suppressed cycles leave the clock alone.
func (t *Trigger) Fires(value float64, now time.Time) bool {
	if value < t.Threshold {
		return false
	}
	return t.CooldownElapsed(now)
}

// CooldownElapsed reports whether a new trigger is allowed at now.
func (t *Trigger) CooldownElapsed(now time.Time) bool {
	if t.last.IsZero() {
		return true
	}
	return now.Sub(t.last) >= t.Cooldown
}

// Record starts a new cooldown window. Called once per issued command,
// whether or not the device acknowledged the write.
func (t *Trigger) Record(now time.Time) {
	t.last = now
}

// Last returns the time of the last recorded trigger (zero if none).
func (t *Trigger) Last() time.Time {
	return t.last
}
