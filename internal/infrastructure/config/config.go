package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/arcade/internal/shared/paths"
)

// EnvPrefix namespaces every environment override (ORCH_SERVER_PORT, ...).
// The bare field tag (PORT, MQTT_HOST, ...) is honoured as a fallback.
const EnvPrefix = "ORCH"

// FileEnv names the variable that points at an optional YAML config file.
const FileEnv = "ORCH_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Topics    TopicConfig     `yaml:"topics"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Health    HealthConfig    `yaml:"healthcheck"`
	Router    RouterConfig    `yaml:"router"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds the local HTTP control surface configuration.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"HTTP_ENABLED"`
	Host    string `yaml:"host" envconfig:"HOST"`
	Port    string `yaml:"port" envconfig:"PORT"`
	History int    `yaml:"history" envconfig:"HISTORY"`

	// AllowedOrigins lists browser origins that may call the surface. One
	// '*' per entry is allowed, e.g. "http://localhost:*".
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled" envconfig:"MQTT_ENABLED"`
	Host           string        `yaml:"host" envconfig:"MQTT_HOST"`
	Port           int           `yaml:"port" envconfig:"MQTT_PORT"`
	ClientID       string        `yaml:"client_id" envconfig:"MQTT_CLIENT_ID"`
	Username       string        `yaml:"username" envconfig:"MQTT_USERNAME"`
	Password       string        `yaml:"password" envconfig:"MQTT_PASSWORD"`
	QoS            byte          `yaml:"qos" envconfig:"MQTT_QOS"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"MQTT_CONNECT_TIMEOUT"`
	BufferSize     int64         `yaml:"buffer_size" envconfig:"MQTT_BUFFER_SIZE"`
}

// TopicConfig names the pub/sub topics. Relative topics are joined to Prefix.
type TopicConfig struct {
	Prefix          string `yaml:"prefix" envconfig:"TOPIC_PREFIX"`
	Intent          string `yaml:"intent" envconfig:"TOPIC_INTENT"`
	State           string `yaml:"state" envconfig:"TOPIC_STATE"`
	Overlay         string `yaml:"overlay" envconfig:"TOPIC_OVERLAY"`
	OverlayConfirm  string `yaml:"overlay_confirm" envconfig:"TOPIC_OVERLAY_CONFIRM"`
	Heartbeat       string `yaml:"heartbeat" envconfig:"TOPIC_HEARTBEAT"`
	TelemetryPrefix string `yaml:"telemetry_prefix" envconfig:"TOPIC_TELEMETRY"`
}

// ManifestConfig locates the game catalog.
type ManifestConfig struct {
	Path string `yaml:"path" envconfig:"MANIFEST_PATH"`
}

// TimeoutConfig holds lifecycle timeouts shared by every game that does not
// override them in the catalog.
type TimeoutConfig struct {
	Launch        time.Duration `yaml:"launch" envconfig:"LAUNCH_TIMEOUT"`
	GracefulQuit  time.Duration `yaml:"graceful_quit" envconfig:"QUIT_TIMEOUT"`
	Confirm       time.Duration `yaml:"confirm" envconfig:"CONFIRM_TIMEOUT"`
	CrashRecovery time.Duration `yaml:"crash_recovery" envconfig:"CRASH_RECOVERY_TIMEOUT"`
	Kill          time.Duration `yaml:"kill" envconfig:"KILL_TIMEOUT"`
	KillRetries   int           `yaml:"kill_retries" envconfig:"KILL_RETRIES"`
	Shutdown      time.Duration `yaml:"shutdown" envconfig:"SHUTDOWN_TIMEOUT"`
}

// HealthConfig holds readiness probe defaults.
type HealthConfig struct {
	Interval         time.Duration `yaml:"interval" envconfig:"HEALTH_INTERVAL"`
	FailureThreshold int           `yaml:"failure_threshold" envconfig:"HEALTH_FAILURE_THRESHOLD"`
	RequestTimeout   time.Duration `yaml:"request_timeout" envconfig:"HEALTH_REQUEST_TIMEOUT"`
	Host             string        `yaml:"host" envconfig:"HEALTH_HOST"`
}

// RouterConfig holds intent classification settings.
type RouterConfig struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold" envconfig:"CONFIDENCE_THRESHOLD"`
	Cooldown            time.Duration `yaml:"cooldown" envconfig:"INTENT_COOLDOWN"`
}

// WatchdogConfig holds crash detection and launch guard settings.
type WatchdogConfig struct {
	Tick         time.Duration   `yaml:"tick" envconfig:"WATCHDOG_TICK"`
	Whitelist    []string        `yaml:"whitelist" envconfig:"WHITELIST"`
	StrictArgs   bool            `yaml:"strict_args" envconfig:"STRICT_ARGS"`
	MaxRestarts  int             `yaml:"max_restarts" envconfig:"AUX_MAX_RESTARTS"`
	RestartDelay time.Duration   `yaml:"restart_delay" envconfig:"AUX_RESTART_DELAY"`
	Services     []ServiceConfig `yaml:"services" ignored:"true"`
}

// ServiceConfig describes one auxiliary service the watchdog keeps alive.
// Health is either an HTTP URL or, when empty, heartbeat freshness.
type ServiceConfig struct {
	Name      string        `yaml:"name"`
	HealthURL string        `yaml:"health_url"`
	Stale     time.Duration `yaml:"stale"`
	Restart   []string      `yaml:"restart"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `yaml:"development" envconfig:"LOG_DEV"`
}

// RateLimitConfig holds rate limiting configuration for inbound intents.
type RateLimitConfig struct {
	RequestsPerSecond int  `yaml:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int  `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	Enabled           bool `yaml:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
}

// Load builds configuration from defaults, then the optional YAML file at
// path (or $ORCH_CONFIG, or ports.yaml in the user config dir when present),
// then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path == "" {
		if candidate := paths.DefaultConfigPath(); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return fmt.Errorf("server.allowed_origins: %q must start with http:// or https://", origin)
	}
	if strings.Count(origin, "*") > 1 {
		return fmt.Errorf("server.allowed_origins: %q may contain at most one '*'", origin)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values that would leave the orchestrator without a
// bounded recovery path.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"timeouts.launch":         c.Timeouts.Launch,
		"timeouts.graceful_quit":  c.Timeouts.GracefulQuit,
		"timeouts.confirm":        c.Timeouts.Confirm,
		"timeouts.crash_recovery": c.Timeouts.CrashRecovery,
		"timeouts.kill":           c.Timeouts.Kill,
		"healthcheck.interval":    c.Health.Interval,
		"watchdog.tick":           c.Watchdog.Tick,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Health.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("healthcheck.failure_threshold must be at least 1"))
	}
	for _, origin := range c.Server.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			errs = append(errs, err)
		}
	}
	if t := c.Router.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("router.confidence_threshold must be within [0,1], got %v", t))
	}
	if c.Timeouts.KillRetries < 1 {
		errs = append(errs, fmt.Errorf("timeouts.kill_retries must be at least 1"))
	}
	for i, svc := range c.Watchdog.Services {
		if svc.Name == "" {
			errs = append(errs, fmt.Errorf("watchdog.services[%d]: name is required", i))
		}
	}
	return errors.Join(errs...)
}

// Topic resolves a configured topic against the prefix.
func (t TopicConfig) Topic(name string) string {
	if t.Prefix == "" || strings.HasPrefix(name, t.Prefix) {
		return name
	}
	return t.Prefix + name
}

// BrokerURL returns the paho broker address.
func (m MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", m.Host, m.Port)
}

// Address returns the HTTP listen address.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    "8765",
			History: 100,

			AllowedOrigins: []string{
				"http://localhost",
				"http://localhost:*",
				"http://127.0.0.1",
				"http://127.0.0.1:*",
			},
		},
		MQTT: MQTTConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           1883,
			ClientID:       "orchestrator",
			QoS:            1,
			ConnectTimeout: 5 * time.Second,
			BufferSize:     256,
		},
		Topics: TopicConfig{
			Prefix:          "robot/",
			Intent:          "intent",
			State:           "state",
			Overlay:         "overlay",
			OverlayConfirm:  "overlay/confirm",
			Heartbeat:       "service/+/heartbeat",
			TelemetryPrefix: "telemetry/",
		},
		Manifest: ManifestConfig{},
		Timeouts: TimeoutConfig{
			Launch:        10 * time.Second,
			GracefulQuit:  3 * time.Second,
			Confirm:       8 * time.Second,
			CrashRecovery: 4 * time.Second,
			Kill:          2 * time.Second,
			KillRetries:   3,
			Shutdown:      10 * time.Second,
		},
		Health: HealthConfig{
			Interval:         200 * time.Millisecond,
			FailureThreshold: 5,
			RequestTimeout:   time.Second,
			Host:             "127.0.0.1",
		},
		Router: RouterConfig{
			ConfidenceThreshold: 0.6,
			Cooldown:            1500 * time.Millisecond,
		},
		Watchdog: WatchdogConfig{
			Tick:         250 * time.Millisecond,
			StrictArgs:   true,
			MaxRestarts:  3,
			RestartDelay: time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
	}
}
