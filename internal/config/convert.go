// internal/config/convert.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// DeviceList converts the device section into engine descriptors.
// Call after Normalize.
func (c *Config) DeviceList() ([]fleet.Device, error) {
	out := make([]fleet.Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		class, err := fleet.ParseClass(d.Class)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.Name, err)
		}
		unit := c.Engine.UnitID
		if d.UnitID != nil {
			unit = *d.UnitID
		}
		out = append(out, fleet.Device{
			Name:       strings.TrimSpace(d.Name),
			Address:    strings.TrimSpace(d.Address),
			Class:      class,
			Assignment: d.Assignment,
			UnitID:     unit,
			Threshold:  d.Threshold,
		})
	}
	return out, nil
}

// ProfileSet returns the built-in register maps with any class overridden
// by the profiles section.
func (c *Config) ProfileSet() (map[fleet.Class]fleet.Profile, error) {
	set := fleet.DefaultProfiles()
	for key, metrics := range c.Profiles {
		class, err := fleet.ParseClass(key)
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		p, err := buildProfile(class, metrics)
		if err != nil {
			return nil, err
		}
		set[class] = p
	}
	return set, nil
}

func buildProfile(class fleet.Class, metrics []MetricConfig) (fleet.Profile, error) {
	p := fleet.Profile{Class: class}

	for _, m := range metrics {
		var space fleet.Space
		switch strings.ToLower(m.Space) {
		case "holding", "3":
			space = fleet.Holding
		case "input", "4":
			space = fleet.Input
		default:
			return fleet.Profile{}, fmt.Errorf("profiles.%s: metric %q: unknown space %q", class, m.Name, m.Space)
		}

		kind := fleet.Kind(strings.ToLower(m.Kind))
		if kind == "" {
			kind = fleet.KindUint16
		}
		rule := fleet.RuleKind(strings.ToLower(m.Rule))
		if rule == "" {
			rule = fleet.RuleNone
		}
		flash := fleet.FlashPolicy(strings.ToLower(m.Flash))
		if flash == "" {
			flash = fleet.FlashNone
		}

		p.Metrics = append(p.Metrics, fleet.MetricDef{
			Name:    m.Name,
			Label:   m.Label,
			Unit:    m.Unit,
			Space:   space,
			Address: m.Address,
			Kind:    kind,
			Bit:     m.Bit,
			Rule: fleet.Rule{
				Kind:     rule,
				Fault:    m.Fault,
				Caution:  m.Caution,
				Expected: m.Expected,
				Ref:      m.Ref,
			},
			Flash:      flash,
			Alert:      m.Alert,
			Primary:    m.Primary,
			Privileged: m.Privileged,
		})
	}

	return p, nil
}
