package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/todos/api"
	"github.com/GoCodeAlone/todos/collection"
	"github.com/GoCodeAlone/todos/config"
	"github.com/GoCodeAlone/todos/keygen"
	"github.com/GoCodeAlone/todos/observability/metrics"
	"github.com/GoCodeAlone/todos/observability/tracing"
	"github.com/GoCodeAlone/todos/store"
	"golang.org/x/sync/errgroup"
)

var (
	configFile = flag.String("config", "", "Path to YAML configuration file")
	addr       = flag.String("addr", "", "HTTP listen address (overrides config and PORT)")
	envFile    = flag.String("env-file", ".env", "Path to a .env file loaded before reading the environment")
	watch      = flag.Bool("watch", false, "Reload the log level when the config file changes")
)

const shutdownTimeout = 10 * time.Second

// envOrFlag returns the environment variable's value when set, the flag's
// value otherwise.
func envOrFlag(envKey string, flagVal *string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if flagVal != nil {
		return *flagVal
	}
	return ""
}

// applyEnvOverrides fills flags from TODOS_* variables unless the flag was
// given explicitly on the command line.
func applyEnvOverrides() {
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if !explicit["config"] {
		*configFile = envOrFlag("TODOS_CONFIG", configFile)
	}
	if !explicit["addr"] {
		*addr = envOrFlag("TODOS_ADDR", addr)
	}
	if !explicit["env-file"] {
		*envFile = envOrFlag("TODOS_ENV_FILE", envFile)
	}
}

func main() {
	flag.Parse()
	applyEnvOverrides()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	level := new(slog.LevelVar)
	logger := newLogger(cfg.Log, level, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, level, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. level is set from cfg and may be
// changed later to adjust verbosity without a restart.
func newLogger(cfg config.LogConfig, level *slog.LevelVar, w io.Writer) *slog.Logger {
	if l, err := cfg.SlogLevel(); err == nil {
		level.Set(l)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(ctx context.Context, cfg *config.Config, level *slog.LevelVar, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if *watch && *configFile != "" {
		w := config.NewWatcher(*configFile, func(next *config.Config) {
			if l, err := next.Log.SlogLevel(); err == nil && l != level.Level() {
				level.Set(l)
				logger.Info("log level updated", "level", l.String())
			}
		}, config.WithWatchLogger(logger), config.WithWatchEnvFiles(*envFile))
		if err := w.Start(); err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, logger)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// app is the wired service: store, optional observability and the router.
type app struct {
	handler  http.Handler
	store    store.CollectionStore
	limiter  *api.RateLimiter
	provider *tracing.Provider
	metrics  *metrics.Collector
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	keys, err := keygen.New(cfg.KeyFormat)
	if err != nil {
		return nil, err
	}

	a := &app{}
	if cfg.Tracing.Enabled() {
		a.provider, err = tracing.NewProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	s, err := store.Open(ctx, cfg.Store, keys, logger)
	if err != nil {
		_ = a.provider.Shutdown(ctx)
		return nil, err
	}
	backend := cfg.Store.Backend
	if backend == "" {
		backend = store.BackendMemory
	}
	a.store = s

	routerCfg := api.Config{
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.CORSOrigins,
		Logger:       logger,
	}
	if cfg.Metrics.Enabled {
		mc := metrics.DefaultConfig()
		mc.GoRuntime = cfg.Metrics.GoRuntime
		a.metrics = metrics.NewCollector(mc)
		s = metrics.InstrumentStore(s, backend, a.metrics)
		routerCfg.Instrumenter = a.metrics
		routerCfg.MetricsHandler = a.metrics.Handler()
	}
	if a.provider != nil {
		s = tracing.TraceStore(s, backend, nil)
	}
	if cfg.RateLimit > 0 {
		a.limiter = api.NewRateLimiter(cfg.RateLimit)
		routerCfg.RateLimiter = a.limiter
	}

	var opts []collection.Option
	if cfg.StoreTimeout > 0 {
		opts = append(opts, collection.WithTimeout(cfg.StoreTimeout))
	}
	todos := collection.New(s, cfg.Namespace, opts...)

	a.handler = api.NewRouter(todos, routerCfg)
	if a.provider != nil {
		a.handler = tracing.SpanMiddleware(a.handler)
	}
	logger.Info("collection ready", "namespace", cfg.Namespace, "backend", backend, "key_format", cfg.KeyFormat)
	return a, nil
}

// Close releases everything newApp acquired, in reverse order.
func (a *app) Close(ctx context.Context) error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	return errors.Join(errs...)
}
