// internal/alarm/evaluate.go
package alarm

import (
	"strconv"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// Env carries the per-cycle inputs a rule may need beyond its own value.
type Env struct {
	// Threshold is the live primary threshold.
	Threshold float64

	// Lookup returns the fresh value of another metric on the same device.
	Lookup func(name string) (float64, bool)
}

// Classify maps a decoded value to its band. Pure.
func Classify(m fleet.MetricDef, v float64, env Env) Band {
	r := m.Rule

	switch r.Kind {
	case fleet.RuleBelow:
		if v < r.Fault {
			return Fault
		}
		if r.Caution != nil && v < *r.Caution {
			return Caution
		}
		return Normal

	case fleet.RuleAtOrAbove:
		limit := r.Fault
		if m.Primary {
			limit = env.Threshold
		}
		if v >= limit {
			return Fault
		}
		return Normal

	case fleet.RuleEquals:
		if v != r.Expected {
			return Fault
		}
		return Normal

	case fleet.RuleActiveCaution:
		if v == r.Expected {
			return Caution
		}
		return Normal

	case fleet.RuleBitFault:
		if v != 0 {
			return Fault
		}
		return Normal

	case fleet.RuleGear:
		if GearEngaged(v) {
			return Normal
		}
		return Fault

	case fleet.RuleZeroWhenEngaged:
		if env.Lookup == nil {
			return Normal
		}
		gear, ok := env.Lookup(r.Ref)
		if !ok {
			// Without a fresh gear reading the rule cannot be decided.
			return Unknown
		}
		if GearEngaged(gear) && v == 0 {
			return Fault
		}
		return Normal
	}

	return Normal
}

// GearEngaged reports whether a gear code denotes a selected gear (1..9).
func GearEngaged(v float64) bool {
	return v >= 1 && v <= 9 && v == float64(int(v))
}

// Flashing reports whether a metric in band b blinks under policy p.
func Flashing(p fleet.FlashPolicy, b Band) bool {
	switch p {
	case fleet.FlashFault:
		return b == Fault
	case fleet.FlashCaution:
		return b == Fault || b == Caution
	}
	return false
}

// Lit is the rendered phase of a metric on a given cycle.
// Flashing metrics alternate bright/dark by cycle parity; others stay lit.
func Lit(flashing bool, cycle uint64) bool {
	if !flashing {
		return true
	}
	return cycle%2 == 0
}

// Text renders a value for display.
func Text(m fleet.MetricDef, v float64) string {
	switch {
	case m.Rule.Kind == fleet.RuleGear:
		if GearEngaged(v) {
			return strconv.Itoa(int(v))
		}
		return "N"
	case m.Kind == fleet.KindBit:
		if v != 0 {
			return "ON"
		}
		return "OFF"
	case m.Kind == fleet.KindFloat32:
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
