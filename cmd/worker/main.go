package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/reformer/internal/app"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reformer/pkg/config"
	"github.com/felixgeelhaar/reformer/pkg/observability"
)

// invalidationQueue is the durable queue the worker drains entitlement
// changes from.
const invalidationQueue = "reformer.billing.invalidation"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFromEnv().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	logger.Info("starting reformer worker")

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	processor := container.OutboxProcessor
	logger.Info("starting outbox processor",
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
		"max_retries", cfg.OutboxMaxRetries,
	)
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start outbox processor", "error", err)
		os.Exit(1)
	}

	// With a broker, entitlement changes round-trip through RabbitMQ and are
	// applied to the shared cache here. Without one the in-process bus has
	// already handled them.
	if container.LocalBus == nil {
		consumer, err := eventbus.NewAMQPConsumer(eventbus.AMQPConsumerConfig{
			URL:    cfg.RabbitMQURL,
			Queue:  invalidationQueue,
			Logger: logger,
		})
		if err != nil {
			logger.Error("failed to create invalidation consumer", "error", err)
			os.Exit(1)
		}
		defer func() { _ = consumer.Close() }()
		if err := consumer.Subscribe(container.Invalidation); err != nil {
			logger.Error("failed to bind invalidation queue", "error", err)
			os.Exit(1)
		}

		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("invalidation consumer stopped", "error", err)
				cancel()
			}
		}()
	}

	go runCleanup(ctx, container.Repos.Outbox, cfg, logger)
	go logStats(ctx, processor, cfg.OutboxStatsInterval, logger)

	if cfg.WorkerHealthAddr != "" {
		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           healthMux(processor, container.Health),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	processor.Stop()
	logger.Info("worker stopped")
}

func runCleanup(ctx context.Context, repo outbox.Repository, cfg *config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -cfg.OutboxRetentionDays)
			deleted, err := repo.Purge(ctx, cutoff)
			if err != nil {
				logger.Error("outbox cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
			}
		}
	}
}

func logStats(ctx context.Context, processor *outbox.Processor, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := processor.Stats()
			logger.Info("outbox stats",
				"running", stats.Running,
				"published", stats.Published,
				"retried", stats.Retried,
				"buried", stats.Buried,
				"lag_seconds", stats.LagSeconds,
				"oldest_pending_at", stats.OldestPendingAt,
				"last_drain_at", stats.LastDrainAt,
				"last_error_at", stats.LastErrorAt,
				"last_error", stats.LastError,
			)
		}
	}
}

type statsSource interface {
	Stats() outbox.Stats
}

func healthMux(processor statsSource, health *observability.Health) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := processor.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"running":       stats.Running,
			"published":     stats.Published,
			"retried":       stats.Retried,
			"buried":        stats.Buried,
			"lag_seconds":   stats.LagSeconds,
			"last_drain_at": stats.LastDrainAt,
			"last_error_at": stats.LastErrorAt,
			"last_error":    stats.LastError,
		})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		overall := health.Evaluate(checkCtx)
		if overall.Status == observability.StatusUnhealthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":     "not_ready",
				"components": overall.Components,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
