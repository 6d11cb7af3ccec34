package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepulse/internal/adapter/httpserver"
	"github.com/pscheid92/livepulse/internal/adapter/metrics"
	"github.com/pscheid92/livepulse/internal/adapter/redis"
	"github.com/pscheid92/livepulse/internal/adapter/websocket"
	"github.com/pscheid92/livepulse/internal/broadcast"
	"github.com/pscheid92/livepulse/internal/livestate"
	"github.com/pscheid92/livepulse/internal/platform/config"
	"github.com/pscheid92/livepulse/internal/platform/logging"
	"github.com/pscheid92/livepulse/internal/platform/retry"
	"github.com/pscheid92/livepulse/internal/platform/version"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

var startupRetryPolicy = retry.Policy{
	MaxAttempts:    8,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Startup step failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, hub *broadcast.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := hub.Stop(shutdownCtx); err != nil {
			slog.Error("Hub shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	hooks := []goredis.Hook{redis.NewMetricsHook(m), redis.NewCircuitBreakerHook(m)}

	client, err := retry.Do(ctx, startupRetryPolicy, retry.UnlessCanceled, func(ctx context.Context) (*goredis.Client, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return redis.NewClient(attemptCtx, cfg.RedisURL, hooks...)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func resetCounters(ctx context.Context, synchronizer *livestate.Synchronizer) {
	err := retry.DoVoid(ctx, startupRetryPolicy, retry.UnlessCanceled, synchronizer.ResetCounters)
	if err != nil {
		slog.Error("Failed to reset counters", "error", err)
		os.Exit(1)
	}
	slog.Info("Counters reset", "keys", []string{livestate.ViewerCountKey, livestate.LikeCountKey})
}

func setupHealthChecks(store *redis.StateStore) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "redis", Check: store.Ping},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	redisMetrics := metrics.NewRedisMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "livepulse",
		Name:        "build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"version": info.Version, "commit": info.Commit},
	}, func() float64 { return 1 }))

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStartup()

	redisClient := setupRedis(startupCtx, cfg, redisMetrics)
	defer func() { _ = redisClient.Close() }()

	store := redis.NewStateStore(redisClient)
	synchronizer := livestate.NewSynchronizer(store, clock)
	resetCounters(startupCtx, synchronizer)

	registry := broadcast.NewRegistry()
	broadcaster := broadcast.NewBroadcaster(registry, wsMetrics)
	hub := broadcast.NewHub(synchronizer, registry, broadcaster, clock, wsMetrics)

	limiter := websocket.NewConnectionLimiter(int64(cfg.MaxWebSocketConnections))
	wsHandler := websocket.NewHandler(hub, limiter, websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()), wsMetrics)

	srv := httpserver.NewServer(cfg, synchronizer, wsHandler, metrics.Handler(reg), httpMetrics, setupHealthChecks(store))

	done := runGracefulShutdown(cfg, srv, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
