// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// ENGINE
	// ------------------------------------------------------------

	e := cfg.Engine
	for name, v := range map[string]int{
		"poll_interval_ms":   e.PollIntervalMs,
		"stop_timeout_ms":    e.StopTimeoutMs,
		"connect_timeout_ms": e.ConnectTimeoutMs,
		"idle_timeout_ms":    e.IdleTimeoutMs,
	} {
		if v < 0 {
			return fmt.Errorf("engine.%s must be >= 0", name)
		}
	}
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("engine.port %d out of range", e.Port)
	}

	// ------------------------------------------------------------
	// CONTROL RANGES
	// ------------------------------------------------------------

	c := cfg.Control
	tmin, tmax := c.ThresholdRange()
	if tmin >= tmax {
		return fmt.Errorf("control: threshold_min %v must be < threshold_max %v", tmin, tmax)
	}
	if c.Threshold != 0 && (c.Threshold < tmin || c.Threshold > tmax) {
		return fmt.Errorf("control.threshold %v outside [%v, %v]", c.Threshold, tmin, tmax)
	}
	if c.CooldownMs < 0 {
		return fmt.Errorf("control.cooldown_ms must be >= 0")
	}

	smin, smax := c.SetpointRange()
	if smin > smax {
		return fmt.Errorf("control.setpoint: min %v must be <= max %v", smin, smax)
	}
	if smin < 0 || smax > 65535 {
		return fmt.Errorf("control.setpoint: range must fit a register")
	}
	if orU16(c.Setpoint.ArmRegister, DefaultArmRegister) == orU16(c.Setpoint.Register, DefaultSetpointRegister) {
		return fmt.Errorf("control.setpoint: arm_register and register must differ")
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("devices: at least one device required")
	}

	names := make(map[string]bool)
	for i, d := range cfg.Devices {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("devices[%d]: name required", i)
		}
		for j := 0; j < len(d.Name); j++ {
			if d.Name[j] > 0x7F {
				return fmt.Errorf("device %q: name must contain ASCII characters only", d.Name)
			}
		}
		if names[d.Name] {
			return fmt.Errorf("device %q: duplicate name", d.Name)
		}
		names[d.Name] = true

		if strings.TrimSpace(d.Address) == "" {
			return fmt.Errorf("device %q: address required", d.Name)
		}
		if _, err := fleet.ParseClass(d.Class); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
		if d.Threshold != 0 && (d.Threshold < tmin || d.Threshold > tmax) {
			return fmt.Errorf("device %q: threshold %v outside [%v, %v]", d.Name, d.Threshold, tmin, tmax)
		}
	}

	// ------------------------------------------------------------
	// REGISTER MAP OVERRIDES
	// ------------------------------------------------------------

	for key, metrics := range cfg.Profiles {
		class, err := fleet.ParseClass(key)
		if err != nil {
			return fmt.Errorf("profiles: %w", err)
		}
		p, err := buildProfile(class, metrics)
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// SINKS
	// ------------------------------------------------------------

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker required when enabled")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos %d out of range", cfg.MQTT.QoS)
	}
	if cfg.Journal.Buffer < 0 {
		return fmt.Errorf("journal.buffer must be >= 0")
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format %q: want json or console", cfg.Log.Format)
	}

	return nil
}
