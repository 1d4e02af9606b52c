// internal/config/load.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the YAML file.
const (
	EnvMQTTBroker   = "FLEETMON_MQTT_BROKER"
	EnvMQTTUsername = "FLEETMON_MQTT_USERNAME"
	EnvMQTTPassword = "FLEETMON_MQTT_PASSWORD"
	EnvHTTPListen   = "FLEETMON_HTTP_LISTEN"
	EnvLogLevel     = "FLEETMON_LOG_LEVEL"
	EnvJournalPath  = "FLEETMON_JOURNAL_PATH"
	EnvMaintenance  = "FLEETMON_MAINTENANCE"
	EnvAutoControl  = "FLEETMON_AUTO_CONTROL"
)

// Load reads a YAML config file, then applies .env and environment
// overrides. It does not validate.
func Load(path string, envFiles ...string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML strictly: unknown keys are errors.
func Parse(raw []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads .env files into the process environment. A missing
// default .env is not an error; explicitly named files must exist.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			return godotenv.Load()
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// ApplyEnv overrides config fields from FLEETMON_* variables.
func ApplyEnv(cfg *Config) error {
	setString(&cfg.MQTT.Broker, EnvMQTTBroker)
	setString(&cfg.MQTT.Username, EnvMQTTUsername)
	setString(&cfg.MQTT.Password, EnvMQTTPassword)
	setString(&cfg.HTTP.Listen, EnvHTTPListen)
	setString(&cfg.Log.Level, EnvLogLevel)
	setString(&cfg.Journal.Path, EnvJournalPath)

	if err := setBool(&cfg.Control.MaintenanceMode, EnvMaintenance); err != nil {
		return err
	}
	return setBool(&cfg.Control.AutoControl, EnvAutoControl)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}
