// internal/config/normalize.go
package config

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// ENGINE
	// ------------------------------------------------------------

	e := &cfg.Engine
	e.PollIntervalMs = orInt(e.PollIntervalMs, DefaultPollIntervalMs)
	e.StopTimeoutMs = orInt(e.StopTimeoutMs, DefaultStopTimeoutMs)
	e.ConnectTimeoutMs = orInt(e.ConnectTimeoutMs, DefaultConnectTimeoutMs)
	e.IdleTimeoutMs = orInt(e.IdleTimeoutMs, DefaultIdleTimeoutMs)
	e.Port = orInt(e.Port, DefaultPort)
	if e.UnitID == 0 {
		e.UnitID = DefaultUnitID
	}
	e.Serial.BaudRate = orInt(e.Serial.BaudRate, DefaultBaudRate)
	e.Serial.DataBits = orInt(e.Serial.DataBits, DefaultDataBits)
	e.Serial.StopBits = orInt(e.Serial.StopBits, DefaultStopBits)
	if e.Serial.Parity == "" {
		e.Serial.Parity = DefaultParity
	}

	// ------------------------------------------------------------
	// CONTROL
	// ------------------------------------------------------------

	c := &cfg.Control
	c.ThresholdMin, c.ThresholdMax = c.ThresholdRange()
	c.Threshold = orFloat(c.Threshold, DefaultThreshold)
	c.CooldownMs = orInt(c.CooldownMs, DefaultCooldownMs)
	c.Setpoint.Min, c.Setpoint.Max = c.SetpointRange()

	c.CommandRegister = u16(orU16(c.CommandRegister, DefaultCommandRegister))
	c.CommandValue = u16(orU16(c.CommandValue, DefaultCommandValue))
	c.Setpoint.Register = u16(orU16(c.Setpoint.Register, DefaultSetpointRegister))
	c.Setpoint.ArmRegister = u16(orU16(c.Setpoint.ArmRegister, DefaultArmRegister))
	c.Setpoint.ArmValue = u16(orU16(c.Setpoint.ArmValue, DefaultArmValue))

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.UnitID == nil {
			id := e.UnitID
			d.UnitID = &id
		}
	}

	// ------------------------------------------------------------
	// SINKS
	// ------------------------------------------------------------

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	cfg.Journal.Buffer = orInt(cfg.Journal.Buffer, DefaultJournalBuffer)

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultMQTTClientID
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultHTTPListen
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func u16(v uint16) *uint16 { return &v }
