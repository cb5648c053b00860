package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tracking-proxy/internal/api"
	"github.com/Sternrassler/tracking-proxy/internal/config"
	"github.com/Sternrassler/tracking-proxy/pkg/cache"
	"github.com/Sternrassler/tracking-proxy/pkg/client"
	"github.com/Sternrassler/tracking-proxy/pkg/logging"
	"github.com/Sternrassler/tracking-proxy/pkg/metrics"
	"github.com/Sternrassler/tracking-proxy/pkg/monitor"
	"github.com/Sternrassler/tracking-proxy/pkg/ratelimit"
	"github.com/Sternrassler/tracking-proxy/pkg/store"
	"github.com/Sternrassler/tracking-proxy/pkg/tracking"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// app holds the wired components of the server.
type app struct {
	store     *store.Store
	redis     *redis.Client
	scheduler *monitor.Scheduler
	handler   http.Handler
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger("server")
	metrics.SetBuildInfo(version)

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if a.scheduler != nil {
		go a.scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("provider", cfg.ProviderBaseURL).
			Bool("redis", a.redis != nil).
			Msg("Starting tracking server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.scheduler != nil {
		a.scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// build wires store, provider client, executor, monitor and API.
func build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st

	if cfg.RedisURL != "" {
		opts, err := config.RedisOptions(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			a.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = rdb
		logger.Info().Str("redis", rdb.Options().Addr).Msg("Connected to Redis")
	}

	providerClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create provider client: %w", err)
	}

	execCfg := cfg.TrackingConfig()
	execCfg.Stats = st
	execCfg.Queries = st
	if a.redis != nil {
		execCfg.Redis = cache.NewManager(a.redis)
	}
	executor, err := tracking.New(execCfg, providerClient)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create executor: %w", err)
	}

	mon, err := monitor.New(monitor.DefaultEndpoints())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create monitor: %w", err)
	}
	if cfg.MonitorSchedule != "" && !strings.EqualFold(cfg.MonitorSchedule, "off") {
		a.scheduler, err = monitor.NewScheduler(mon, cfg.MonitorSchedule)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	deps := api.Deps{
		Tracker:        executor,
		Store:          st,
		Monitor:        mon,
		Scheduler:      a.scheduler,
		Redis:          a.redis,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AdminPassword:  cfg.AdminPassword,
		RequestTimeout: cfg.RequestTimeout,
		TrustProxy:     cfg.TrustedProxy,
	}
	if a.redis != nil && cfg.RateLimitPerMinute > 0 {
		deps.Limiter, err = ratelimit.NewLimiter(a.redis, cfg.RateLimitPerMinute, time.Minute, logging.NewLogger("ratelimit"))
		if err != nil {
			a.close()
			return nil, err
		}
	}

	a.handler = api.NewServer(deps).Router()
	return a, nil
}
