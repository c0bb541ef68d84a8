package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
)

// Service is stamped on every line so shipped logs can be told apart from
// the game's own output.
const Service = "arcade-orchestrator"

// Logger wraps zap.Logger and hands out per-component children.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// FromSettings maps the logging section of the orchestrator config. dev
// forces debug level and console output regardless of ORCH_LOG_LEVEL.
func FromSettings(s config.LogConfig, dev bool) Config {
	cfg := Config{Level: s.Level, Development: s.Development}
	if dev {
		cfg.Level = "debug"
		cfg.Development = true
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	return cfg
}

// New builds a logger. Production output is JSON, development output is
// colored console text.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	encoding, enc := "json", zap.NewProductionEncoderConfig()
	enc.NameKey = "component"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if cfg.Development {
		encoding, enc = "console", zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeDuration = zapcore.StringDurationEncoder
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encoding,
		EncoderConfig:     enc,
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	if !cfg.Development {
		zapCfg.InitialFields = map[string]any{
			"service": Service,
			"pid":     os.Getpid(),
		}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Component returns a named child logger for one subsystem.
func (l *Logger) Component(name string) *zap.Logger {
	return l.Logger.Named(name)
}

// GameID tags a line with the catalog id of the game it concerns.
func GameID(id string) zap.Field { return zap.String("game_id", id) }

// HandleID tags a line with the supervisor handle of a child process.
func HandleID(id string) zap.Field { return zap.String("handle", id) }
