package cache

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(16, time.Hour)
	userID := uuid.New()

	summary := domain.BuildAccessSummary(userID, []domain.Subscription{
		*domain.NewSubscription(userID, "cus_1", "sub_1", "price_core", domain.SubscriptionActive),
	}, nil)
	require.NoError(t, c.Set(ctx, application.UserAccessKey(userID), summary, time.Minute))

	var got domain.AccessSummary
	found, err := c.Get(ctx, application.UserAccessKey(userID), &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"price_core"}, got.AccessiblePriceIDs)
	assert.True(t, got.HasActiveSubscription)
}

func TestMemoryCache_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(16, time.Hour)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", "a", 2*time.Minute))
	require.NoError(t, c.Set(ctx, "long", "b", time.Hour))

	now = now.Add(3 * time.Minute)

	var s string
	found, err := c.Get(ctx, "short", &s)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = c.Get(ctx, "long", &s)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", s)
}

func TestMemoryCache_DeleteAndPurge(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(16, time.Hour)

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	require.NoError(t, c.Delete(ctx, "a", "missing"))
	var n int
	found, _ := c.Get(ctx, "a", &n)
	assert.False(t, found)

	purged, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
	found, _ = c.Get(ctx, "b", &n)
	assert.False(t, found)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(16, time.Hour)

	ids := []string{"price_a"}
	require.NoError(t, c.Set(ctx, "ids", ids, time.Minute))
	ids[0] = "mutated"

	var got []string
	_, err := c.Get(ctx, "ids", &got)
	require.NoError(t, err)
	assert.Equal(t, []string{"price_a"}, got)
}
