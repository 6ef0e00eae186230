package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reformer/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                  "development",
		LogLevel:                "error",
		HTTPAddr:                "127.0.0.1:0",
		PublicOrigin:            "http://localhost:3000",
		DatabaseDriver:          "auto",
		SQLitePath:              filepath.Join(t.TempDir(), "reformer.db"),
		CacheProductsTTL:        time.Hour,
		CacheUserAccessTTL:      2 * time.Minute,
		CacheMemorySize:         64,
		OutboxPollInterval:      50 * time.Millisecond,
		OutboxBatchSize:         10,
		OutboxMaxRetries:        3,
		StripeWebhookSecret:     "whsec_container",
		AuthJWTSecret:           "container-secret",
		AuthJWTAudience:         "authenticated",
		StreamTokenTTL:          time.Hour,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewContainer_LocalMode(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, localConfig(t), quietLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Equal(t, database.DriverSQLite, c.DBDriver)
	assert.Nil(t, c.RedisClient)
	assert.NotNil(t, c.LocalBus)
	assert.NotNil(t, c.OutboxProcessor)

	// Migrations already ran on start; running them again is a no-op.
	require.NoError(t, c.Migrate(ctx))

	summary, err := c.Billing.AccessSummary(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, summary.HasActiveSubscription)
	assert.Empty(t, summary.AccessiblePriceIDs)

	cliApp := c.CLIApp()
	assert.NotNil(t, cliApp.Billing)
	assert.NotNil(t, cliApp.Serve)
	assert.NotNil(t, cliApp.Migrate)
}

func TestContainer_APIServerReady(t *testing.T) {
	c, err := NewContainer(context.Background(), localConfig(t), quietLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	handler := c.APIServer().Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewContainer_RejectsBadSigningKey(t *testing.T) {
	cfg := localConfig(t)
	cfg.StreamSigningKeyID = "key-1"
	cfg.StreamSigningKey = "not base64!"

	_, err := NewContainer(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream signing key")
}

func TestNewContainer_UnreachableRedisInDevelopment(t *testing.T) {
	cfg := localConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	c, err := NewContainer(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Nil(t, c.RedisClient)
	assert.NotNil(t, c.Cache)
}

func TestNewContainer_UnreachableRedisInProduction(t *testing.T) {
	cfg := localConfig(t)
	cfg.AppEnv = "production"
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	_, err := NewContainer(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis")
}

func TestServe_StopsOnCancel(t *testing.T) {
	c, err := NewContainer(context.Background(), localConfig(t), quietLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewLogger_UsesConfiguredLevel(t *testing.T) {
	cfg := localConfig(t)
	logger := NewLogger(cfg)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))

	cfg.AppEnv = "production"
	cfg.LogLevel = "debug"
	assert.True(t, NewLogger(cfg).Enabled(context.Background(), slog.LevelDebug))
}
