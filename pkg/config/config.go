package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Target names accepted by Config.Target.
const (
	TargetAuto     = "auto"
	TargetEmbedded = "embedded"
	TargetDesktop  = "desktop"
)

// Config holds platform bring-up configuration
type Config struct {
	Target    string `yaml:"target" default:"auto"`
	LogLevel  string `yaml:"log_level" default:"info"`
	LogFormat string `yaml:"log_format" default:"text"` // text, json

	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Trace       TraceConfig       `yaml:"trace"`
	BLE         BLEConfig         `yaml:"ble"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Battery     BatteryConfig     `yaml:"battery"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Paths       PathsConfig       `yaml:"paths"`
	HTTP        HTTPConfig        `yaml:"http"`
}

type DispatchConfig struct {
	// Mode is "loop" (dedicated goroutine) or "inline" (caller's goroutine).
	// Empty picks loop on desktop and inline on embedded.
	Mode string `yaml:"mode"`
}

type TraceConfig struct {
	Enabled bool `yaml:"enabled"`
	// Sink is log, otel, metrics or all.
	Sink string `yaml:"sink" default:"log"`
	// Exporter is stdout or noop; only used by the otel sink.
	Exporter    string `yaml:"exporter" default:"noop"`
	ServiceName string `yaml:"service_name" default:"nearbyhal"`
}

type BLEConfig struct {
	// Driver is goble, tinygo or stub.
	Driver        string        `yaml:"driver" default:"goble"`
	AdapterID     string        `yaml:"adapter_id"`
	WriteChunk    int           `yaml:"write_chunk" default:"20"`
	WriteInterval time.Duration `yaml:"write_interval" default:"10ms"`
	// ScanTimeout is how long the scan command runs without --duration.
	ScanTimeout time.Duration `yaml:"scan_timeout" default:"10s"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"10s"`
	// DataService and DataCharacteristic carry Send payloads.
	DataService        string `yaml:"data_service" default:"fe2c"`
	DataCharacteristic string `yaml:"data_characteristic" default:"fe2c1234-8366-4814-8eb0-01de32100bea"`
}

type PersistenceConfig struct {
	// Driver is sqlite or memory.
	Driver string `yaml:"driver" default:"sqlite"`
	Path   string `yaml:"path"`
}

type BatteryConfig struct {
	// Source is upower or stub.
	Source       string `yaml:"source" default:"upower"`
	DefaultLevel int    `yaml:"default_level" default:"100"`
}

type GPIOConfig struct {
	ChargingPin string `yaml:"charging_pin"`
	OnHeadPin   string `yaml:"on_head_pin"`
}

type PathsConfig struct {
	AppDataRoot string `yaml:"app_data_root"`
	Downloads   string `yaml:"downloads"`
}

type HTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout" default:"30s"`
	BreakerFails   uint32        `yaml:"breaker_fails" default:"5"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout" default:"30s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load overlays the YAML file at path onto the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := oneOf("target", c.Target, TargetAuto, TargetEmbedded, TargetDesktop); err != nil {
		return err
	}
	if c.Dispatch.Mode != "" {
		if err := oneOf("dispatch.mode", c.Dispatch.Mode, "loop", "inline"); err != nil {
			return err
		}
	}
	if err := oneOf("trace.sink", c.Trace.Sink, "log", "otel", "metrics", "all"); err != nil {
		return err
	}
	if err := oneOf("ble.driver", c.BLE.Driver, "goble", "tinygo", "stub"); err != nil {
		return err
	}
	if err := oneOf("persistence.driver", c.Persistence.Driver, "sqlite", "memory"); err != nil {
		return err
	}
	if err := oneOf("battery.source", c.Battery.Source, "upower", "stub"); err != nil {
		return err
	}
	if c.BLE.WriteChunk <= 0 {
		return errors.New("ble.write_chunk must be positive")
	}
	return nil
}

// ResolveTarget maps "auto" to the target of the running OS.
func (c *Config) ResolveTarget() string {
	if c.Target != TargetAuto {
		return c.Target
	}
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		return TargetDesktop
	default:
		return TargetEmbedded
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return logger
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported value %q (want one of %v)", field, value, allowed)
}
