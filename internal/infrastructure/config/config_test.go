package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8765", cfg.Server.Port)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "robot/", cfg.Topics.Prefix)
	assert.Equal(t, 0.6, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.Router.Cooldown)
	assert.Equal(t, 4*time.Second, cfg.Timeouts.CrashRecovery)
	assert.True(t, cfg.Watchdog.StrictArgs)
	assert.Empty(t, cfg.Watchdog.Whitelist)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ORCH_SERVER_PORT", "9000")
	t.Setenv("LAUNCH_TIMEOUT", "3s")
	t.Setenv("ORCH_WATCHDOG_WHITELIST", "/opt/games/**,/usr/bin/notepad")
	t.Setenv("ORCH_LOGGING_LOG_LEVEL", "debug")
	t.Setenv(FileEnv, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Launch)
	assert.Equal(t, []string{"/opt/games/**", "/usr/bin/notepad"}, cfg.Watchdog.Whitelist)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched values keep their defaults
	assert.Equal(t, 3*time.Second, cfg.Timeouts.GracefulQuit)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.yaml")
	content := `
mqtt:
  host: broker.local
  port: 1884
  username: robot
topics:
  intent: robot/intent
  state: robot/state
  telemetry_prefix: telemetry/
timeouts:
  confirm: 5s
watchdog:
  whitelist:
    - /opt/games/**
  services:
    - name: asr
      health_url: http://127.0.0.1:7001/health
      restart: [asr-service, --port, "7001"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ORCH_MQTT_MQTT_PORT", "1999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 1999, cfg.MQTT.Port, "env overrides file")
	assert.Equal(t, "robot", cfg.MQTT.Username)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Confirm)
	assert.Equal(t, []string{"/opt/games/**"}, cfg.Watchdog.Whitelist)
	require.Len(t, cfg.Watchdog.Services, 1)
	assert.Equal(t, "asr", cfg.Watchdog.Services[0].Name)
	assert.Equal(t, []string{"asr-service", "--port", "7001"}, cfg.Watchdog.Services[0].Restart)
	assert.Equal(t, "robot/intent", cfg.Topics.Topic(cfg.Topics.Intent))
	assert.Equal(t, "robot/overlay", cfg.Topics.Topic(cfg.Topics.Overlay))
}

func TestLoadDefaultConfigFile(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv(FileEnv, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.MQTT.Host, "defaults when no file exists")

	dir := filepath.Join(xdg, "arcade")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ports.yaml"), []byte("mqtt:\n  host: broker.home\n"), 0o600))

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "broker.home", cfg.MQTT.Host)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(FileEnv, "")

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("QUIT_TIMEOUT", "soon")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("invalid threshold", func(t *testing.T) {
		t.Setenv("CONFIDENCE_THRESHOLD", "1.5")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.Launch = 0
	cfg.Health.FailureThreshold = 0
	cfg.Watchdog.Services = []ServiceConfig{{}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeouts.launch")
	assert.Contains(t, err.Error(), "failure_threshold")
	assert.Contains(t, err.Error(), "services[0]")
}

func TestAddresses(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "tcp://127.0.0.1:1883", cfg.MQTT.BrokerURL())
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Address())
}
