package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/config"
	"github.com/GriffinCanCode/arcade/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
)

// Orchestrator is the part of the session actor the control surface needs.
type Orchestrator interface {
	Current() types.StateEvent
	History() []types.StateEvent
	Stream(buffer int) (<-chan types.StateEvent, func())
	Submit(in types.Intent) error
}

// Catalog is the manifest store as seen by the control surface.
type Catalog interface {
	Snapshot() *manifest.Catalog
	Games() []manifest.Entry
	Reload() (*manifest.Catalog, error)
}

// ReadyCheck is an extra readiness condition, e.g. broker connectivity.
type ReadyCheck struct {
	Name  string
	Check healthcheck.Check
}

// Options configures the control surface.
type Options struct {
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	CORS      CORSConfig
	Metrics   *monitoring.Metrics
	Ready     []ReadyCheck
}

// Server wraps the HTTP control surface and its dependencies
type Server struct {
	router   *gin.Engine
	upgrader websocket.Upgrader
	health   healthcheck.Handler
	orch     Orchestrator
	catalog  Catalog
	logger   *zap.Logger
	opts     Options
	metrics  *monitoring.Metrics
}

// New builds the router. It does not listen; see Run.
func New(orch Orchestrator, catalog Catalog, opts Options, logger *zap.Logger) (*Server, error) {
	if orch == nil || catalog == nil {
		return nil, errors.New("server: orchestrator and catalog are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CORS.AllowOrigins == nil {
		opts.CORS = DefaultCORSConfig()
		if len(opts.Server.AllowedOrigins) > 0 {
			opts.CORS.AllowOrigins = opts.Server.AllowedOrigins
		}
	}
	if opts.Server.History <= 0 {
		opts.Server.History = 100
	}

	s := &Server{
		orch:    orch,
		catalog: catalog,
		logger:  logger,
		opts:    opts,
		metrics: opts.Metrics,
		health:  healthcheck.NewHandler(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, s.opts.CORS.AllowOrigins)
		},
	}

	s.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
	s.health.AddReadinessCheck("manifest", s.manifestLoaded)
	for _, rc := range opts.Ready {
		s.health.AddReadinessCheck(rc.Name, rc.Check)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(monitoring.Middleware(opts.Metrics))
	router.Use(CORS(opts.CORS))

	// Health
	router.GET("/live", gin.WrapF(s.health.LiveEndpoint))
	router.GET("/ready", gin.WrapF(s.health.ReadyEndpoint))

	// Session state
	router.GET("/state", s.getState)
	router.GET("/state/history", s.getHistory)
	router.GET("/stream", s.stream)

	// Catalog
	router.GET("/games", s.listGames)
	router.POST("/manifest/reload", JSONOnly(opts.Metrics), s.reloadManifest)

	// Intents
	intents := router.Group("/")
	intents.Use(JSONOnly(opts.Metrics))
	if opts.RateLimit.Enabled && opts.RateLimit.RequestsPerSecond > 0 {
		intents.Use(RateLimit(opts.RateLimit, opts.Metrics))
	}
	intents.POST("/intent", s.postIntent)

	// Metrics
	router.GET("/stats", s.stats)
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	s.router = router
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled, then shuts
// the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.opts.Server.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) manifestLoaded() error {
	cat := s.catalog.Snapshot()
	if cat == nil {
		return errors.New("manifest not loaded")
	}
	if cat.Len() == 0 {
		return fmt.Errorf("manifest %s has no launchable games", cat.Source())
	}
	return nil
}
