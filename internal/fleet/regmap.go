// internal/fleet/regmap.go
package fleet

import "fmt"

// Space is the register space, expressed as the Modbus read function code.
type Space uint8

const (
	Holding Space = 3
	Input   Space = 4
)

func (s Space) String() string {
	switch s {
	case Holding:
		return "holding"
	case Input:
		return "input"
	}
	return fmt.Sprintf("fc%d", uint8(s))
}

// Kind is the wire encoding of a metric.
type Kind string

const (
	KindUint16  Kind = "uint16"
	KindInt16   Kind = "int16"
	KindFloat32 Kind = "float32" // two registers, big-endian word order
	KindBit     Kind = "bit"
)

// RuleKind selects the band classification of a metric.
type RuleKind string

const (
	RuleNone            RuleKind = "none"
	RuleBelow           RuleKind = "below"
	RuleAtOrAbove       RuleKind = "at_or_above"
	RuleEquals          RuleKind = "equals"
	RuleBitFault        RuleKind = "bit_fault"
	RuleGear            RuleKind = "gear"
	RuleZeroWhenEngaged RuleKind = "zero_when_engaged"
	RuleActiveCaution   RuleKind = "active_caution"
)

// FlashPolicy selects which bands blink.
type FlashPolicy string

const (
	FlashNone    FlashPolicy = "none"
	FlashFault   FlashPolicy = "fault"
	FlashCaution FlashPolicy = "caution" // caution and fault
)

// Alert classes of the default profiles.
const (
	AlertOperations = "operations"
	AlertPLC        = "plc"
)

// Rule parameterizes one classification.
//
//	below:             v < Fault -> fault, v < *Caution -> caution
//	at_or_above:       v >= Fault (primary metrics use the live threshold)
//	equals:            v != Expected -> fault
//	active_caution:    v == Expected -> caution
//	zero_when_engaged: Ref gear engaged and v == 0 -> fault
type Rule struct {
	Kind     RuleKind
	Fault    float64
	Caution  *float64
	Expected float64
	Ref      string
}

// MetricDef binds a metric name to its register location and rule.
type MetricDef struct {
	Name    string
	Label   string
	Unit    string
	Space   Space
	Address uint16
	Kind    Kind
	Bit     uint8

	Rule  Rule
	Flash FlashPolicy
	Alert string

	// Primary marks the control-eligible metric (at most one per profile).
	Primary bool

	// Privileged metrics are read only while setpoint control is permitted.
	Privileged bool
}

// Count is the number of registers the metric spans.
func (m MetricDef) Count() uint16 {
	if m.Kind == KindFloat32 {
		return 2
	}
	return 1
}

// Group is one distinct register read shared by one or more metrics.
type Group struct {
	Space   Space
	Address uint16
	Count   uint16
	Members []string
}

// Key identifies the group in logs and metrics.
func (g Group) Key() string {
	return fmt.Sprintf("%s:%d+%d", g.Space, g.Address, g.Count)
}

// Profile is the register map of one device class.
type Profile struct {
	Class   Class
	Metrics []MetricDef
}

// Primary returns the control-eligible metric, if any.
func (p Profile) Primary() (MetricDef, bool) {
	for _, m := range p.Metrics {
		if m.Primary {
			return m, true
		}
	}
	return MetricDef{}, false
}

// Setpoint returns the privileged setpoint readback, if the class has one.
// Classes without it do not accept setpoint writes.
func (p Profile) Setpoint() (MetricDef, bool) {
	for _, m := range p.Metrics {
		if m.Privileged {
			return m, true
		}
	}
	return MetricDef{}, false
}

// Metric looks up a metric by name.
func (p Profile) Metric(name string) (MetricDef, bool) {
	for _, m := range p.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricDef{}, false
}

// Groups folds the profile into distinct reads, in first-seen order.
// Privileged metrics are skipped unless includePrivileged is set.
func (p Profile) Groups(includePrivileged bool) []Group {
	type key struct {
		space Space
		addr  uint16
		count uint16
	}

	index := make(map[key]int)
	var out []Group

	for _, m := range p.Metrics {
		if m.Privileged && !includePrivileged {
			continue
		}
		k := key{m.Space, m.Address, m.Count()}
		if i, ok := index[k]; ok {
			out[i].Members = append(out[i].Members, m.Name)
			continue
		}
		index[k] = len(out)
		out = append(out, Group{
			Space:   m.Space,
			Address: m.Address,
			Count:   m.Count(),
			Members: []string{m.Name},
		})
	}
	return out
}

// AlertClasses lists the alert classes used by the profile, in first-seen order.
func (p Profile) AlertClasses() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range p.Metrics {
		if m.Alert == "" || seen[m.Alert] {
			continue
		}
		seen[m.Alert] = true
		out = append(out, m.Alert)
	}
	return out
}

// Validate checks internal consistency of the map.
func (p Profile) Validate() error {
	if len(p.Metrics) == 0 {
		return fmt.Errorf("profile %q: no metrics", p.Class)
	}

	names := make(map[string]bool)
	primaries := 0

	for _, m := range p.Metrics {
		if m.Name == "" {
			return fmt.Errorf("profile %q: metric name required", p.Class)
		}
		if names[m.Name] {
			return fmt.Errorf("profile %q: duplicate metric %q", p.Class, m.Name)
		}
		names[m.Name] = true

		if m.Space != Holding && m.Space != Input {
			return fmt.Errorf("profile %q: metric %q: unsupported register space %d", p.Class, m.Name, m.Space)
		}
		switch m.Kind {
		case KindUint16, KindInt16, KindFloat32:
		case KindBit:
			if m.Bit > 15 {
				return fmt.Errorf("profile %q: metric %q: bit %d out of range", p.Class, m.Name, m.Bit)
			}
		default:
			return fmt.Errorf("profile %q: metric %q: unknown kind %q", p.Class, m.Name, m.Kind)
		}
		switch m.Rule.Kind {
		case "", RuleNone, RuleBelow, RuleAtOrAbove, RuleEquals, RuleBitFault,
			RuleGear, RuleZeroWhenEngaged, RuleActiveCaution:
		default:
			return fmt.Errorf("profile %q: metric %q: unknown rule %q", p.Class, m.Name, m.Rule.Kind)
		}
		if m.Primary {
			primaries++
			if m.Rule.Kind != RuleAtOrAbove {
				return fmt.Errorf("profile %q: primary metric %q must use rule %s", p.Class, m.Name, RuleAtOrAbove)
			}
		}
	}

	if primaries > 1 {
		return fmt.Errorf("profile %q: at most one primary metric allowed", p.Class)
	}

	for _, m := range p.Metrics {
		if m.Rule.Kind != RuleZeroWhenEngaged {
			continue
		}
		if m.Rule.Ref == "" {
			return fmt.Errorf("profile %q: metric %q: rule requires ref", p.Class, m.Name)
		}
		if !names[m.Rule.Ref] {
			return fmt.Errorf("profile %q: metric %q: ref %q not in profile", p.Class, m.Name, m.Rule.Ref)
		}
	}

	return nil
}
