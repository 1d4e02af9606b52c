// internal/config/config.go
package config

type Config struct {
	Engine   EngineConfig              `yaml:"engine"`
	Control  ControlConfig             `yaml:"control"`
	Devices  []DeviceConfig            `yaml:"devices"`
	Profiles map[string][]MetricConfig `yaml:"profiles"`
	Journal  JournalConfig             `yaml:"journal"`
	MQTT     MQTTConfig                `yaml:"mqtt"`
	HTTP     HTTPConfig                `yaml:"http"`
	Log      LogConfig                 `yaml:"log"`
}

// ---- ENGINE ----

type EngineConfig struct {
	PollIntervalMs   int          `yaml:"poll_interval_ms"`
	StopTimeoutMs    int          `yaml:"stop_timeout_ms"`
	ConnectTimeoutMs int          `yaml:"connect_timeout_ms"`
	IdleTimeoutMs    int          `yaml:"idle_timeout_ms"`
	Port             int          `yaml:"port"`
	UnitID           uint8        `yaml:"unit_id"`
	Serial           SerialConfig `yaml:"serial"`
}

// SerialConfig applies to rtu:// device addresses only.
type SerialConfig struct {
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// ---- CONTROL ----

type ControlConfig struct {
	AutoControl     bool `yaml:"auto_control"`
	MaintenanceMode bool `yaml:"maintenance_mode"`

	Threshold    float64 `yaml:"threshold"`
	ThresholdMin float64 `yaml:"threshold_min"`
	ThresholdMax float64 `yaml:"threshold_max"`
	CooldownMs   int     `yaml:"cooldown_ms"`

	// Register addresses are pointers: 0 is a valid address.
	CommandRegister *uint16 `yaml:"command_register"`
	CommandValue    *uint16 `yaml:"command_value"`

	Setpoint SetpointConfig `yaml:"setpoint"`
}

type SetpointConfig struct {
	Register    *uint16 `yaml:"register"`
	ArmRegister *uint16 `yaml:"arm_register"`
	ArmValue    *uint16 `yaml:"arm_value"`
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Name       string  `yaml:"name"`
	Address    string  `yaml:"address"`
	Class      string  `yaml:"class"`
	Assignment string  `yaml:"assignment"`
	UnitID     *uint8  `yaml:"unit_id"`
	Threshold  float64 `yaml:"threshold"`
}

// ---- REGISTER MAP OVERRIDE ----

// MetricConfig replaces the built-in register map of a class when present
// under profiles.<class>.
type MetricConfig struct {
	Name    string `yaml:"name"`
	Label   string `yaml:"label"`
	Unit    string `yaml:"unit"`
	Space   string `yaml:"space"` // holding | input
	Address uint16 `yaml:"address"`
	Kind    string `yaml:"kind"` // uint16 | int16 | float32 | bit
	Bit     uint8  `yaml:"bit"`

	Rule     string   `yaml:"rule"`
	Fault    float64  `yaml:"fault"`
	Caution  *float64 `yaml:"caution"`
	Expected float64  `yaml:"expected"`
	Ref      string   `yaml:"ref"`

	Flash      string `yaml:"flash"`
	Alert      string `yaml:"alert"`
	Primary    bool   `yaml:"primary"`
	Privileged bool   `yaml:"privileged"`
}

// ---- SINKS ----

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Buffer  int    `yaml:"buffer"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}
