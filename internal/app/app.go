package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"gorm.io/gorm"

	"github.com/simp-lee/rbacflow/internal/config"
	"github.com/simp-lee/rbacflow/internal/crud"
	"github.com/simp-lee/rbacflow/internal/event"
	"github.com/simp-lee/rbacflow/internal/metrics"
	"github.com/simp-lee/rbacflow/internal/middleware"
	"github.com/simp-lee/rbacflow/internal/module/rbac"
	"github.com/simp-lee/rbacflow/internal/module/workflow"
	"github.com/simp-lee/rbacflow/internal/realtime"
)

const (
	defaultServerTimeout = 30 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine *gin.Engine
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config
	bus    *event.Bus
	hub    *realtime.Hub
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler, timeout time.Duration) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the database, the event bus with its sinks, the
// resource services and modules, middleware, and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}

	// 2. Setup database and, when enabled, migrate the schema.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger, models()...)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		closeDB(db, nil)
	}()

	// 3. Metrics, event bus, and sinks.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(true)
	}

	bus, err := newBus(&cfg.Events, log.Logger, m)
	if err != nil {
		return nil, err
	}
	defer func() {
		if success {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = bus.Close(ctx)
	}()

	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(realtime.Config{
			AllowOrigins: cfg.Realtime.AllowOrigins,
			SendBuffer:   cfg.Realtime.SendBuffer,
		}, log.Logger)
		bus.Subscribe(hub)
	}

	// 4. Manual dependency injection: service → module.
	opts := crud.Options{
		Publisher:    bus,
		Logger:       log.Logger,
		SchemaMode:   crud.SchemaMode(cfg.Query.SchemaMode),
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		CacheSize:    cfg.Query.AggregationCacheSize,
	}
	if m != nil {
		opts.Recorder = m
	}
	modules := []Module{
		rbac.NewModule(rbac.NewService(db, opts)),
		workflow.NewModule(workflow.NewService(db, opts)),
	}

	// 5. Create Gin engine with custom middleware (not gin.Default()).
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	handlers := []gin.HandlerFunc{
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.Logger(log.Logger),
		middleware.CORSWithConfig(resolveCORSConfig(cfg.Server.Mode, cfg.Server.CORS)),
	}
	if m != nil {
		handlers = append(handlers, middleware.Metrics(m))
	}
	if cfg.Server.RateLimit.Enabled {
		rate, err := cfg.Server.RateLimit.Parsed()
		if err != nil {
			return nil, fmt.Errorf("parse rate limit: %w", err)
		}
		handlers = append(handlers, middleware.RateLimit(limiter.New(memory.NewStore(), rate), log.Logger))
	}
	handlers = append(handlers, middleware.Actor(cfg.Server.ActorHeader))
	engine.Use(handlers...)

	// 6. Register all routes.
	deps := &RouteDeps{Modules: modules, DB: db}
	if m != nil {
		deps.MetricsPath, deps.Metrics = cfg.Metrics.Path, m.Handler()
	}
	if hub != nil {
		deps.RealtimePath, deps.Realtime = cfg.Realtime.Path, hub
	}
	if err := RegisterRoutes(engine, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	bus.Start()

	success = true
	return &App{
		engine: engine,
		db:     db,
		logger: log,
		cfg:    cfg,
		bus:    bus,
		hub:    hub,
	}, nil
}

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler {
	return a.engine
}

func models() []any {
	return append(rbac.Models(), workflow.Models()...)
}

func newBus(cfg *config.EventsConfig, log *slog.Logger, m *metrics.Metrics) (*event.Bus, error) {
	opts := event.Options{
		BufferSize: cfg.BufferSize,
		Logger:     log,
	}
	if m != nil {
		opts.Observer = m
	}
	if cfg.DeliveryTimeout != "" {
		d, err := time.ParseDuration(cfg.DeliveryTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse events.delivery_timeout: %w", err)
		}
		opts.DeliveryTimeout = d
	}

	bus := event.NewBus(opts)
	if level, ok := config.EventLogLevel(cfg.LogLevel); ok {
		bus.Subscribe(event.NewLogSink(log, level))
	}
	return bus, nil
}

// resolveCORSConfig builds the middleware settings from configuration.
// In release mode, when no allowlist is configured, cross-origin requests
// are denied.
func resolveCORSConfig(mode string, cfg config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()

	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.AllowHeaders
	}
	corsConfig.AllowCredentials = cfg.AllowCredentials
	if cfg.MaxAge != "" {
		if d, err := time.ParseDuration(cfg.MaxAge); err == nil {
			corsConfig.MaxAge = strconv.Itoa(int(d.Seconds()))
		}
	}

	switch {
	case len(cfg.AllowOrigins) > 0:
		corsConfig.AllowOrigins = cfg.AllowOrigins
	case mode == gin.ReleaseMode:
		corsConfig.AllowOrigins = []string{}
	}
	return corsConfig
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func serverTimeout(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultServerTimeout
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It shuts down gracefully: the server stops accepting requests, realtime
// clients are disconnected, queued events are drained, and the database
// connection is closed.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, serverTimeout(a.cfg.Server.Timeout))

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.hub != nil {
		a.hub.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(shutdownCtx); err != nil {
			log.Error("event bus close error", slog.Any("error", err), slog.Int("pending", a.bus.Pending()))
		}
	}

	closeDB(a.db, log)

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}

func closeDB(db *gorm.DB, log *slog.Logger) {
	if db == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("database close error", slog.Any("error", err))
		return
	}
	log.Info("database connection closed")
}
