// Package app wires configuration, infrastructure and billing services into
// the processes the binaries run.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/felixgeelhaar/reformer/adapter/api"
	"github.com/felixgeelhaar/reformer/adapter/cli"
	billingApp "github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/application/subscribers"
	billingCache "github.com/felixgeelhaar/reformer/internal/billing/infrastructure/cache"
	"github.com/felixgeelhaar/reformer/internal/billing/infrastructure/stream"
	stripeinfra "github.com/felixgeelhaar/reformer/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/resilience"
	"github.com/felixgeelhaar/reformer/pkg/config"
	"github.com/felixgeelhaar/reformer/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// pingableCache is a cache backend the health registry can ping.
type pingableCache interface {
	billingApp.Cache
	Ping(ctx context.Context) error
}

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver
	Repos    *Repositories

	// Redis
	RedisClient *redis.Client
	Cache       pingableCache

	// Observability
	Metrics *observability.PrometheusMetrics
	Health  *observability.Health

	// Billing
	Gateway      *stripeinfra.Gateway
	Verifier     *stripeinfra.Verifier
	AccessCache  *billingApp.AccessCache
	Resolver     *billingApp.Resolver
	Reconciler   *billingApp.Reconciler
	Checkout     *billingApp.CheckoutService
	Portal       *billingApp.PortalService
	Playback     *billingApp.PlaybackService
	Billing      *billingApp.BillingService
	Invalidation *subscribers.InvalidationSubscriber

	// Identity
	Authenticator *api.Authenticator

	// Messaging
	EventPublisher  eventbus.Publisher
	LocalBus        *eventbus.LocalBus
	OutboxProcessor *outbox.Processor
}

// NewLogger builds the process logger from configuration. Production logs
// are JSON.
func NewLogger(cfg *config.Config) *slog.Logger {
	version := os.Getenv("REFORMER_VERSION")
	if cfg.IsProduction() {
		return observability.NewLogger(observability.ProductionLogOptions(cfg.LogLevel, version))
	}
	return observability.NewLogger(observability.LogOptions{Level: cfg.LogLevel, Version: version})
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(),
		Health:  observability.NewHealth(),
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initCache(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initMessaging(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initBilling(); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("container initialized",
		"driver", c.DBDriver,
		"redis", c.RedisClient != nil,
		"push_invalidation", cfg.CachePushInvalidation,
	)
	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	cfg := c.Config
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Logger.Info("connected to database", "driver", c.DBDriver)

	// Local mode migrates on start; PostgreSQL is migrated explicitly.
	if c.DBDriver == database.DriverSQLite {
		if err := c.Migrate(ctx); err != nil {
			_ = conn.Close()
			return err
		}
	}

	repos, err := NewRepositoryFactory(conn).Build()
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.Repos = repos
	c.Health.Register("database", observability.RequiredCheck("database", conn.Ping))
	return nil
}

// Migrate applies pending schema migrations for the configured driver.
func (c *Container) Migrate(ctx context.Context) error {
	switch c.DBDriver {
	case database.DriverPostgres:
		if err := migrations.RunPostgresMigrations(ctx, c.Config.DatabaseURL); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
	case database.DriverSQLite:
		sqliteConn, ok := c.DBConn.(interface{ DB() *sql.DB })
		if !ok {
			return fmt.Errorf("expected SQLite connection with DB() method, got %T", c.DBConn)
		}
		if err := migrations.RunSQLiteMigrations(ctx, sqliteConn.DB()); err != nil {
			return fmt.Errorf("sqlite migrations: %w", err)
		}
	default:
		return fmt.Errorf("unsupported driver: %s", c.DBDriver)
	}
	c.Logger.Info("migrations applied", "driver", c.DBDriver)
	return nil
}

// initCache connects Redis when configured. Without Redis, or when it is
// unreachable in development, entries live in a process-local LRU.
func (c *Container) initCache(ctx context.Context) error {
	cfg := c.Config
	if cfg.UsesRedis() {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				return fmt.Errorf("failed to parse Redis URL: %w", err)
			}
			c.Logger.Warn("invalid Redis URL, using in-memory cache", "error", err)
		} else {
			client := redis.NewClient(opt)
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				if !cfg.IsDevelopment() {
					return fmt.Errorf("failed to connect to Redis: %w", err)
				}
				c.Logger.Warn("Redis not available, using in-memory cache", "error", err)
			} else {
				c.RedisClient = client
				c.Cache = billingCache.NewRedisCache(client)
				c.Health.Register("redis", observability.OptionalCheck("redis", c.Cache.Ping))
				c.Logger.Info("connected to Redis")
				return nil
			}
		}
	}

	maxTTL := max(cfg.CacheProductsTTL, cfg.CacheUserAccessTTL)
	c.Cache = billingCache.NewMemoryCache(cfg.CacheMemorySize, maxTTL)
	return nil
}

// initMessaging picks the outbox publisher. RabbitMQ carries invalidations
// to every API instance through the worker; without it they are dispatched
// in process.
func (c *Container) initMessaging() error {
	cfg := c.Config
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewAMQPPublisher(cfg.RabbitMQURL, c.Logger)
		if err == nil {
			c.EventPublisher = publisher
			c.Health.Register("rabbitmq", observability.OptionalCheck("rabbitmq", publisher.Ping))
			return nil
		}
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, dispatching events in process", "error", err)
	}

	c.LocalBus = eventbus.NewLocalBus(c.Logger)
	c.EventPublisher = c.LocalBus
	return nil
}

func (c *Container) initBilling() error {
	cfg := c.Config
	repos := c.Repos
	logger := c.Logger

	c.AccessCache = billingApp.NewAccessCache(
		c.Cache,
		repos.Subscriptions,
		repos.Purchases,
		repos.Catalog,
		cfg.CacheProductsTTL,
		cfg.CacheUserAccessTTL,
		logger,
	)
	c.Resolver = billingApp.NewResolver(c.AccessCache, repos.Catalog)

	c.Invalidation = subscribers.NewInvalidationSubscriber(c.AccessCache, logger)
	if c.LocalBus != nil {
		c.LocalBus.Subscribe(c.Invalidation)
	}

	stripeBreaker := c.newBreaker("stripe")
	c.Gateway = stripeinfra.NewGateway(stripeinfra.NewAPI(cfg.StripeAPIKey, cfg.StripeAPIBaseURL), stripeBreaker, logger)
	c.Verifier = stripeinfra.NewVerifier(cfg.StripeWebhookSecret)
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; every webhook will be rejected")
	}

	c.Reconciler = billingApp.NewReconciler(
		repos.Subscriptions,
		repos.Purchases,
		repos.Ledger,
		c.Gateway,
		repos.UnitOfWork,
		logger,
	)
	c.Reconciler.SetMetrics(c.Metrics)
	if cfg.CachePushInvalidation {
		c.Reconciler.EnablePushInvalidation(repos.Outbox)
	}

	c.Checkout = billingApp.NewCheckoutService(
		repos.Subscriptions,
		repos.Purchases,
		c.AccessCache,
		c.Gateway,
		cfg.StripeDefaultPriceID,
		logger,
	)
	c.Portal = billingApp.NewPortalService(repos.Subscriptions, c.Gateway)

	keySigner, err := stream.NewKeySigner(cfg.StreamSigningKeyID, cfg.StreamSigningKey)
	if err != nil {
		return fmt.Errorf("stream signing key: %w", err)
	}
	tokenSigner := stream.NewTokenAPISigner(stream.TokenAPIConfig{
		AccountID: cfg.CloudflareAccountID,
		APIToken:  cfg.CloudflareAPIToken,
		BaseURL:   cfg.CloudflareAPIBaseURL,
	}, c.newBreaker("stream"))
	c.Playback = billingApp.NewPlaybackService(
		c.Resolver,
		cfg.StreamCustomerCode,
		cfg.StreamTokenTTL,
		logger,
		keySigner,
		tokenSigner,
	)

	c.Billing = billingApp.NewBillingService(
		repos.Subscriptions,
		c.AccessCache,
		c.Resolver,
		stripeinfra.Decoder{},
		c.Reconciler,
		logger,
	)

	c.Authenticator = api.NewAuthenticator(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, cfg.AuthJWTAudience)

	c.OutboxProcessor = outbox.NewProcessor(repos.Outbox, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxRetries,
		BackoffBase:  time.Second,
		BackoffMax:   time.Minute,
	}, logger)
	c.OutboxProcessor.SetMetrics(c.Metrics)
	return nil
}

func (c *Container) newBreaker(name string) *resilience.Breaker {
	cfg := resilience.DefaultBreakerConfig(name)
	cfg.FailureThreshold = convert.IntToUint32Clamped(c.Config.BreakerFailureThreshold)
	if c.Config.BreakerTimeout > 0 {
		cfg.Timeout = c.Config.BreakerTimeout
	}
	return resilience.NewBreaker(cfg, c.Logger, c.Metrics)
}

// APIServer builds the HTTP API over the container's services.
func (c *Container) APIServer() *api.Server {
	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = c.Config.HTTPAddr
	serverCfg.PublicOrigin = c.Config.PublicOrigin

	return api.NewServer(serverCfg, api.Dependencies{
		Verifier:       c.Verifier,
		Reconciler:     c.Reconciler,
		Checkout:       c.Checkout,
		Portal:         c.Portal,
		Playback:       c.Playback,
		Access:         c.AccessCache,
		Videos:         c.Resolver,
		Auth:           c.Authenticator,
		Health:         c.Health,
		Metrics:        c.Metrics,
		MetricsHandler: c.Metrics.Handler(),
	}, c.Logger)
}

// Serve runs the HTTP API until ctx is canceled. The outbox processor runs
// alongside it when enabled.
func (c *Container) Serve(ctx context.Context) error {
	if c.Config.OutboxProcessorEnabled {
		if err := c.OutboxProcessor.Start(ctx); err != nil {
			return err
		}
	}

	server := c.APIServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// CLIApp exposes the container to the command tree.
func (c *Container) CLIApp() *cli.App {
	return &cli.App{
		Billing: c.Billing,
		Serve:   c.Serve,
		Migrate: c.Migrate,
	}
}

// Close releases every connection the container opened.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver)
		}
	}
}
