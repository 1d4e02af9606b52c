// internal/config/defaults.go
package config

import "github.com/tamzrod/modbus-fleetmon/internal/fleet"

// Defaults applied by Normalize to unset fields.
const (
	DefaultPollIntervalMs   = 1500
	DefaultStopTimeoutMs    = 1500
	DefaultConnectTimeoutMs = 1000
	DefaultIdleTimeoutMs    = 60000
	DefaultPort             = 502
	DefaultUnitID           = 1

	DefaultThreshold    = 1050
	DefaultThresholdMin = 950
	DefaultThresholdMax = 1050
	DefaultCooldownMs   = 10000

	DefaultSetpointMin = 50
	DefaultSetpointMax = 100

	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultParity   = "N"
	DefaultStopBits = 1

	DefaultJournalPath   = "fleetmon-events.db"
	DefaultJournalBuffer = 256

	DefaultMQTTClientID    = "fleetmon"
	DefaultMQTTTopicPrefix = "fleetmon"

	DefaultHTTPListen = ":8080"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
)

var (
	DefaultCommandRegister  = fleet.RegCommand
	DefaultCommandValue     = fleet.CommandActive
	DefaultSetpointRegister = fleet.RegSetpoint
	DefaultArmRegister      = fleet.RegArm
	DefaultArmValue         = fleet.ArmValue
)

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orU16(v *uint16, def uint16) uint16 {
	if v == nil {
		return def
	}
	return *v
}

// ThresholdRange is the effective safe range for primary thresholds.
func (c ControlConfig) ThresholdRange() (float64, float64) {
	return orFloat(c.ThresholdMin, DefaultThresholdMin), orFloat(c.ThresholdMax, DefaultThresholdMax)
}

// SetpointRange is the effective safe range for operator setpoints.
func (c ControlConfig) SetpointRange() (float64, float64) {
	return orFloat(c.Setpoint.Min, DefaultSetpointMin), orFloat(c.Setpoint.Max, DefaultSetpointMax)
}
