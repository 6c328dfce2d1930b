package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "ev.sensor.readings", cfg.Kafka.Topics.SensorReadings)
	assert.Equal(t, monitoring.PolicyStrict, cfg.Alerts.Policy())
	assert.Equal(t, 20, cfg.Alerts.DefaultPageSize)
	assert.Equal(t, 4, cfg.Notification.SMS.MinSeverity)

	thresholds, err := cfg.Sensors.ThresholdMap()
	require.NoError(t, err)
	assert.Equal(t, monitoring.DefaultThresholds(), thresholds)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
alerts:
  transition_policy: permissive
sensors:
  thresholds:
    current:
      min: 0
      max: 32
      warning: 25
      critical: 30
notification:
  sms:
    enabled: true
    recipients: ["+10000000000"]
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, monitoring.PolicyPermissive, cfg.Alerts.Policy())
	assert.Equal(t, []string{"+10000000000"}, cfg.Notification.SMS.Recipients)

	thresholds, err := cfg.Sensors.ThresholdMap()
	require.NoError(t, err)
	assert.Equal(t, monitoring.ThresholdSet{Min: 0, Max: 32, Warning: 25, Critical: 30}, thresholds[monitoring.SensorCurrent])
	assert.Equal(t, monitoring.DefaultThresholds()[monitoring.SensorVoltage], thresholds[monitoring.SensorVoltage])
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("EV_MONITOR_ALERTS_TRANSITION_POLICY", "permissive")
	t.Setenv("EV_MONITOR_SERVER_PORT", "7070")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, monitoring.PolicyPermissive, cfg.Alerts.Policy())
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown policy",
			body: "alerts:\n  transition_policy: lenient\n",
		},
		{
			name: "insane thresholds",
			body: "sensors:\n  thresholds:\n    smoke:\n      min: 0\n      max: 1000\n      warning: 600\n      critical: 500\n",
		},
		{
			name: "unknown sensor type",
			body: "sensors:\n  thresholds:\n    infrared:\n      min: 0\n      max: 1\n      warning: 0.5\n      critical: 0.8\n",
		},
		{
			name: "unsupported driver",
			body: "database:\n  driver: mysql\n",
		},
		{
			name: "postgres without password in production",
			body: "server:\n  environment: production\ndatabase:\n  driver: postgres\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/ev.db"}
	assert.Equal(t, "/tmp/ev.db", sqlite.GetDSN())

	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "ev", SSLMode: "disable", TimeZone: "UTC"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ev sslmode=disable TimeZone=UTC", pg.GetDSN())
}
