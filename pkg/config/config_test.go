package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, TargetAuto, cfg.Target)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "goble", cfg.BLE.Driver)
	assert.Equal(t, 20, cfg.BLE.WriteChunk)
	assert.Equal(t, 10*time.Millisecond, cfg.BLE.WriteInterval)
	assert.Equal(t, "sqlite", cfg.Persistence.Driver)
	assert.Equal(t, 100, cfg.Battery.DefaultLevel)
	assert.Equal(t, uint32(5), cfg.HTTP.BreakerFails)
	assert.False(t, cfg.Trace.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target: embedded
log_level: debug
trace:
  enabled: true
  sink: metrics
ble:
  driver: stub
  write_interval: 25ms
persistence:
  driver: memory
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TargetEmbedded, cfg.Target)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, "metrics", cfg.Trace.Sink)
	assert.Equal(t, "stub", cfg.BLE.Driver)
	assert.Equal(t, 25*time.Millisecond, cfg.BLE.WriteInterval)
	assert.Equal(t, 20, cfg.BLE.WriteChunk, "unset fields keep defaults")
	assert.Equal(t, "memory", cfg.Persistence.Driver)
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ble:
  write_interval: 0s
battery:
  default_level: 0
http:
  breaker_fails: 0
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.BLE.WriteInterval)
	assert.Equal(t, 0, cfg.Battery.DefaultLevel)
	assert.Equal(t, uint32(0), cfg.HTTP.BreakerFails)
	assert.Equal(t, 10*time.Second, cfg.BLE.DialTimeout)
	assert.Equal(t, "upower", cfg.Battery.Source)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad target", body: "target: toaster\n"},
		{name: "bad level", body: "log_level: loud\n"},
		{name: "bad ble driver", body: "ble:\n  driver: carrier-pigeon\n"},
		{name: "bad dispatch", body: "dispatch:\n  mode: threads\n"},
		{name: "malformed", body: "target: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "hal.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = TargetEmbedded
	assert.Equal(t, TargetEmbedded, cfg.ResolveTarget())

	cfg.Target = TargetAuto
	assert.Contains(t, []string{TargetDesktop, TargetEmbedded}, cfg.ResolveTarget())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		want     logrus.Level
		wantJSON bool
	}{
		{name: "debug text", level: "debug", want: logrus.DebugLevel},
		{name: "warn text", level: "warn", want: logrus.WarnLevel},
		{name: "bogus falls back to info", level: "bogus", want: logrus.InfoLevel},
		{name: "json", level: "error", format: "json", want: logrus.ErrorLevel, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level, LogFormat: tt.format}
			logger := cfg.NewLogger()

			assert.Equal(t, tt.want, logger.GetLevel())
			if tt.wantJSON {
				_, ok := logger.Formatter.(*logrus.JSONFormatter)
				assert.True(t, ok)
				return
			}
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
