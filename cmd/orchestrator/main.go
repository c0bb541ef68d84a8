package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/intent"
	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/domain/orchestrator"
	"github.com/GriffinCanCode/arcade/internal/health"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/logging"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/server"
	"github.com/GriffinCanCode/arcade/internal/messaging"
	"github.com/GriffinCanCode/arcade/internal/shared/paths"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
	"github.com/GriffinCanCode/arcade/internal/watchdog"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $ORCH_CONFIG)")
	manifestPath := flag.String("manifest", "", "Game catalog file or directory")
	dev := flag.Bool("dev", false, "Development mode (colored logs, debug level)")
	smoke := flag.Bool("smoke", false, "Publish a telemetry/smoke message on startup")
	flag.Parse()

	if err := run(*configPath, *manifestPath, *dev, *smoke); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, manifestPath string, dev, smoke bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if manifestPath != "" {
		cfg.Manifest.Path = manifestPath
	}
	if cfg.Manifest.Path == "" {
		cfg.Manifest.Path = paths.DefaultManifestPath()
	}

	logger, err := logging.New(logging.FromSettings(cfg.Logging, dev))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting game orchestrator",
		zap.String("manifest", cfg.Manifest.Path),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
		zap.Bool("http", cfg.Server.Enabled))

	metrics := monitoring.NewMetrics()

	// Catalog
	store := manifest.NewStore(cfg.Manifest.Path, logger.Component("manifest"))
	store.OnChange(func(cat *manifest.Catalog) {
		metrics.RecordManifest("ok", cat.Len())
	})
	store.Load()

	router := intent.NewRouter(store, intent.Options{
		ConfidenceThreshold: &cfg.Router.ConfidenceThreshold,
		Cooldown:            cfg.Router.Cooldown,
	}, logger.Component("router"))

	sup := supervisor.New(logger.Component("supervisor"), supervisor.Options{
		KillWait: cfg.Timeouts.Kill,
	})

	prober := health.NewProber(health.Options{
		Interval:         cfg.Health.Interval,
		FailureThreshold: cfg.Health.FailureThreshold,
		RequestTimeout:   cfg.Health.RequestTimeout,
		Host:             cfg.Health.Host,
		Metrics:          metrics,
	}, logger.Component("health"))

	guard, err := watchdog.NewGuard(cfg.Watchdog.Whitelist, cfg.Watchdog.StrictArgs)
	if err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}
	if len(guard.Patterns()) == 0 {
		logger.Warn("Launch whitelist is empty; every launch will be rejected")
	}

	// Transport
	bus, err := openBus(cfg, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	gw := messaging.NewGateway(bus, messaging.GatewayOptions{
		Topics:            cfg.Topics,
		RequestsPerSecond: rateOf(cfg.RateLimit),
		Burst:             cfg.RateLimit.Burst,
		Metrics:           metrics,
	}, logger.Component("gateway"))

	orch, err := orchestrator.New(orchestrator.Deps{
		Supervisor: sup,
		Prober:     prober,
		Guard:      guard,
		Router:     router,
		Catalog:    store,
		Publisher:  gw,
	}, orchestrator.Options{
		LaunchTimeout:  cfg.Timeouts.Launch,
		QuitTimeout:    cfg.Timeouts.GracefulQuit,
		ConfirmTimeout: cfg.Timeouts.Confirm,
		CrashRecovery:  cfg.Timeouts.CrashRecovery,
		KillRetries:    cfg.Timeouts.KillRetries,
		History:        cfg.Server.History,
		Metrics:        metrics,
	}, logger.Component("orchestrator"))
	if err != nil {
		return err
	}

	wd := watchdog.New(sup, orch, watchdog.Options{
		Tick:         cfg.Watchdog.Tick,
		MaxRestarts:  cfg.Watchdog.MaxRestarts,
		RestartDelay: cfg.Watchdog.RestartDelay,
		Services:     cfg.Watchdog.Services,
		Metrics:      metrics,
	}, logger.Component("watchdog"))

	log := logger.Component("main")
	if err := gw.Start(messaging.Handlers{
		Intent: func(in types.Intent) {
			if err := orch.Submit(in); err != nil {
				log.Warn("Intent dropped", zap.String("type", string(in.Type)), zap.Error(err))
			}
		},
		Heartbeat: wd.Heartbeat,
	}); err != nil {
		return err
	}
	gw.OnConnect(orch.Republish)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	errCh := make(chan error, 3)

	go func() { errCh <- orch.Run(runCtx) }()
	go func() { errCh <- wd.Run(runCtx) }()

	if cfg.Server.Enabled {
		srv, err := server.New(orch, store, server.Options{
			Server:    cfg.Server,
			RateLimit: cfg.RateLimit,
			Metrics:   metrics,
			Ready: []server.ReadyCheck{{Name: "bus", Check: func() error {
				if !gw.Connected() {
					return errors.New("bus disconnected")
				}
				return nil
			}}},
		}, logger.Component("http"))
		if err != nil {
			return err
		}
		go func() { errCh <- srv.Run(runCtx) }()
	}

	if smoke {
		publishSmoke(runCtx, gw, store, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if _, err := store.Reload(); err != nil {
					metrics.RecordManifest("rejected", 0)
				}
				continue
			}
			log.Info("Shutting down gracefully", zap.String("signal", sig.String()))
			return shutdown(cfg, orch, sup, cancelRun, log)
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Component stopped", zap.Error(err))
				_ = shutdown(cfg, orch, sup, cancelRun, log)
				return err
			}
		}
	}
}

// shutdown ends the live session through the state machine, then makes sure
// no child survives the process.
func shutdown(cfg *config.Config, orch *orchestrator.Orchestrator, sup *supervisor.Supervisor, cancelRun context.CancelFunc, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	var errs []error
	if err := orch.Shutdown(ctx); err != nil && !errors.Is(err, orchestrator.ErrStopped) {
		log.Warn("Session did not drain", zap.Error(err))
		errs = append(errs, err)
	}
	if err := sup.Shutdown(ctx, cfg.Timeouts.GracefulQuit); err != nil {
		log.Warn("Supervisor shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	cancelRun()
	return errors.Join(errs...)
}

func openBus(cfg *config.Config, logger *logging.Logger) (messaging.Bus, error) {
	if !cfg.MQTT.Enabled {
		logger.Info("MQTT disabled, using in-process bus")
		return messaging.NewMemoryBus(logger.Component("bus")), nil
	}

	b := messaging.NewMQTT(messaging.MQTTOptions{
		Broker:         cfg.MQTT.BrokerURL(),
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            cfg.MQTT.QoS,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		BufferSize:     cfg.MQTT.BufferSize,
	}, logger.Component("mqtt"))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MQTT.ConnectTimeout)
	defer cancel()
	if err := b.Connect(ctx); err != nil {
		// paho keeps retrying; publishes are buffered meanwhile
		logger.Warn("MQTT broker not reachable yet", zap.String("broker", cfg.MQTT.BrokerURL()), zap.Error(err))
	}
	return b, nil
}

func rateOf(rl config.RateLimitConfig) int {
	if !rl.Enabled {
		return 0
	}
	return rl.RequestsPerSecond
}

func publishSmoke(ctx context.Context, gw *messaging.Gateway, store *manifest.Store, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := gw.PublishTelemetry(ctx, "smoke", map[string]any{
		"ok":    true,
		"games": len(store.Games()),
		"ts":    time.Now().UTC(),
	})
	if err != nil {
		log.Warn("Smoke telemetry failed", zap.Error(err))
		return
	}
	log.Info("Smoke telemetry published")
}
