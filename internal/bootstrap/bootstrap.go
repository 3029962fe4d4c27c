package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	domainauth "moodify-server-go/internal/domain/auth"
	"moodify-server-go/internal/domain/auth/directory"
	"moodify-server-go/internal/domain/eventbus"
	"moodify-server-go/internal/domain/proxy"
	"moodify-server-go/internal/domain/ratelimit"
	rlstore "moodify-server-go/internal/domain/ratelimit/store"
	platformconfig "moodify-server-go/internal/platform/config"
	platformerrors "moodify-server-go/internal/platform/errors"
	platformlogging "moodify-server-go/internal/platform/logging"
	platformobservability "moodify-server-go/internal/platform/observability"
	platformstorage "moodify-server-go/internal/platform/storage"
	httptransport "moodify-server-go/internal/transport/http"
	"moodify-server-go/internal/transport/http/authapi"
	"moodify-server-go/internal/transport/http/gateway"
	"moodify-server-go/internal/transport/http/health"
)

const (
	eventWorkers       = 4
	shutdownGracePad   = 5 * time.Second
	observabilityGrace = 5 * time.Second
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	loader                *platformconfig.Loader
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	events                *eventbus.AsyncEventBus
	db                    *gorm.DB
	directory             directory.Directory
	authManager           *domainauth.Manager
	limiter               *ratelimit.Limiter
	forwarder             *proxy.Proxy
	router                *httptransport.Router
}

// Run loads configuration, wires every component, serves HTTP until ctx is
// cancelled or SIGINT/SIGTERM arrives, then shuts everything down.
func Run(ctx context.Context) error {
	return run(ctx, &appState{loader: platformconfig.NewLoader()})
}

func run(ctx context.Context, state *appState) error {
	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	if state.config == nil || state.logger == nil || state.router == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger/router not initialised",
		)
	}
	logger := state.logger

	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	listener, err := net.Listen("tcp", net.JoinHostPort(state.config.Server.Host, strconv.Itoa(state.config.Server.Port)))
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:listen", "failed to bind http listener", err)
	}
	startHTTPServer(state, listener, group, groupCtx)

	// A failed server cancels groupCtx; treat that like a signal.
	waitCtx, waitCancel := context.WithCancel(signalCtx)
	defer waitCancel()
	go func() {
		select {
		case <-groupCtx.Done():
			waitCancel()
		case <-waitCtx.Done():
		}
	}()

	return waitForShutdown(waitCtx, cancel, logger, group, state.config.Server.ShutdownTimeout+shutdownGracePad)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "init graph overview")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("BOOT", "%s (%s)", step.ID, step.Title)
			continue
		}
		logger.InfoTag("BOOT", "%s (%s) <- %v", step.ID, step.Title, step.DependsOn)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the startup steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "eventbus:start",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   startEventBusStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "auth:init-manager",
			Title:     "Initialise auth manager",
			DependsOn: []string{"storage:init-database", "eventbus:start"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAuthStep,
		},
		{
			ID:        "ratelimit:init-limiter",
			Title:     "Initialise login rate limiter",
			DependsOn: []string{"storage:init-database"},
			Execute:   initLimiterStep,
		},
		{
			ID:        "proxy:init-forwarder",
			Title:     "Initialise upstream proxy",
			DependsOn: []string{"eventbus:start", "observability:setup-hooks"},
			Kind:      platformerrors.KindConfig,
			Execute:   initProxyStep,
		},
		{
			ID:        "http:init-router",
			Title:     "Build HTTP router",
			DependsOn: []string{"auth:init-manager", "ratelimit:init-limiter", "proxy:init-forwarder"},
			Kind:      platformerrors.KindTransport,
			Execute:   initRouterStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.loader
	if loader == nil {
		loader = platformconfig.NewLoader()
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "environment"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()
	logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled:      state.config.Observability.Enabled,
		OTLPEndpoint: state.config.Observability.OTLPEndpoint,
		ServiceName:  state.config.Observability.ServiceName,
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func startEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventWorkers, state.logger)
	if err := eventbus.SetupAuditHandlers(bus, state.logger); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "eventbus:start", "failed to subscribe audit handlers", err)
	}
	bus.Start()
	state.events = bus
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if !state.config.NeedsSQLite() {
		return nil
	}
	db, err := platformstorage.Open(state.config.Storage.SQLiteDSN)
	if err != nil {
		return err
	}
	state.db = db
	state.logger.InfoTag("STORAGE", "sqlite ready at %s", state.config.Storage.SQLiteDSN)
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	cfg := state.config
	users, err := directory.ParseUsers(cfg.Auth.Users)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "auth:init-manager", "invalid AUTH_USERS", err)
	}

	dir, err := directory.New(directory.Config{Driver: cfg.Auth.Directory, Users: users}, directory.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager", "failed to create credential directory", err)
	}
	state.directory = dir

	codec, err := domainauth.NewTokenCodec(cfg.Auth.JWTSecret, domainauth.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return err
	}

	manager, err := domainauth.NewManager(domainauth.Options{
		Verifier: dir,
		Codec:    codec,
		Logger:   state.logger,
		Events:   state.events,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager", "failed to create auth manager", err)
	}
	state.authManager = manager
	state.logger.InfoTag("AUTH", "directory %s ready with %d seeded users, token ttl %v", cfg.Auth.Directory, len(users), cfg.Auth.TokenTTL)
	return nil
}

func initLimiterStep(_ context.Context, state *appState) error {
	cfg := state.config.RateLimit
	storeCfg := rlstore.Config{Driver: cfg.Store}

	switch cfg.Store {
	case rlstore.DriverRedis:
		if cfg.Redis.Addr == "" {
			return platformerrors.New(platformerrors.KindConfig, "ratelimit:init-limiter", "redis store addr is required")
		}
		storeCfg.Redis = &rlstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	case rlstore.DriverMemory, rlstore.DriverSQLite:
	default:
		state.logger.WarnTag("RATELIMIT", "unsupported store %q, falling back to memory", cfg.Store)
		storeCfg.Driver = rlstore.DriverMemory
	}

	store, err := rlstore.New(storeCfg, rlstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "ratelimit:init-limiter", "failed to create rate limit store", err)
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.Options{
		Store:           store,
		Logger:          state.logger,
		MaxAttempts:     cfg.MaxAttempts,
		Window:          cfg.Window,
		CleanupInterval: cfg.GCInterval,
	})
	if err != nil {
		_ = store.Close(context.Background())
		return platformerrors.Wrap(platformerrors.KindBootstrap, "ratelimit:init-limiter", "failed to create rate limiter", err)
	}
	state.limiter = limiter
	state.logger.InfoTag("RATELIMIT", "%s store, %d attempts per %v", storeCfg.Driver, cfg.MaxAttempts, cfg.Window)
	return nil
}

func initProxyStep(_ context.Context, state *appState) error {
	cfg := state.config.Upstream
	forwarder, err := proxy.New(proxy.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}, state.logger, state.events)
	if err != nil {
		return err
	}
	state.forwarder = forwarder
	return nil
}

func initRouterStep(ctx context.Context, state *appState) error {
	router, err := httptransport.Build(httptransport.Options{
		Config:        state.config,
		Logger:        state.logger,
		Authenticator: state.authManager,
	})
	if err != nil {
		return err
	}

	authService, err := authapi.NewService(authapi.Options{
		Manager: state.authManager,
		Limiter: state.limiter,
		Events:  state.events,
		Logger:  state.logger,
	})
	if err != nil {
		return err
	}
	gatewayService, err := gateway.NewService(state.forwarder, state.logger)
	if err != nil {
		return err
	}
	healthService := health.NewService(state.limiter, state.logger)

	if err := authService.Register(ctx, router); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:init-router", "failed to register auth routes", err)
	}
	if err := gatewayService.Register(ctx, router); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:init-router", "failed to register gateway routes", err)
	}
	if err := healthService.Register(ctx, router); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:init-router", "failed to register health route", err)
	}

	state.router = router
	return nil
}

func startHTTPServer(state *appState, listener net.Listener, g *errgroup.Group, groupCtx context.Context) *http.Server {
	logger := state.logger
	httpServer := &http.Server{
		Handler:           state.router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", listener.Addr())

		go func() {
			<-groupCtx.Done()
			timeout := state.config.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "graceful shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return platformerrors.Wrap(platformerrors.KindTransport, "http:serve", "http server failed", err)
		}
		return nil
	})

	return httpServer
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
	timeout time.Duration,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(timeout):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap.shutdown", "shutdown timed out")
	}
	return nil
}

// close releases whatever the init graph managed to build, in reverse order.
func (s *appState) close() {
	ctx := context.Background()
	logger := s.logger
	warn := func(component string, err error) {
		if err != nil && logger != nil {
			logger.WarnTag("BOOT", "%s did not close cleanly: %v", component, err)
		}
	}

	if s.limiter != nil {
		warn("rate limiter", s.limiter.Close())
	}
	if s.directory != nil {
		warn("credential directory", s.directory.Close(ctx))
	}
	if s.db != nil {
		warn("database", platformstorage.Close(s.db))
	}
	if s.events != nil {
		s.events.Stop()
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, observabilityGrace)
		warn("observability", s.observabilityShutdown(shutdownCtx))
		cancel()
	}
	if logger != nil {
		logger.Close()
	}
}
