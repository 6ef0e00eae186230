package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func epoch(v int64) *int64 { return &v }

func TestResolvePeriodEnd_UpdateChain(t *testing.T) {
	tests := []struct {
		name string
		sub  ProviderSubscription
		want *int64
	}{
		{
			name: "direct field wins",
			sub:  ProviderSubscription{CurrentPeriodEnd: epoch(1700000000), ItemPeriodEnd: epoch(1800000000)},
			want: epoch(1700000000),
		},
		{
			name: "falls back to first item",
			sub:  ProviderSubscription{ItemPeriodEnd: epoch(1800000000)},
			want: epoch(1800000000),
		},
		{
			name: "zero direct value is absent",
			sub:  ProviderSubscription{CurrentPeriodEnd: epoch(0), ItemPeriodEnd: epoch(1800000000)},
			want: epoch(1800000000),
		},
		{
			name: "unknown when nothing present",
			sub:  ProviderSubscription{BillingCycleAnchor: epoch(1700000000), Created: 1700000000},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePeriodEnd(tt.sub, UpdatePeriodEndChain)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, got.Unix())
		})
	}
}

func TestResolvePeriodEnd_CheckoutChainDerivesFromAnchor(t *testing.T) {
	anchor := time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)
	sub := ProviderSubscription{BillingCycleAnchor: epoch(anchor.Unix()), Created: anchor.Add(-time.Hour).Unix()}

	got := ResolvePeriodEnd(sub, CheckoutPeriodEndChain)
	require.NotNil(t, got)
	assert.True(t, got.Equal(anchor.AddDate(0, 1, 0)))
}

func TestResolvePeriodEnd_CheckoutChainDerivesFromCreated(t *testing.T) {
	created := time.Date(2024, time.March, 15, 8, 30, 0, 0, time.UTC)
	sub := ProviderSubscription{Created: created.Unix()}

	got := ResolvePeriodEnd(sub, CheckoutPeriodEndChain)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, time.April, 15, 8, 30, 0, 0, time.UTC), *got)
}

func TestResolvePeriodEnd_CheckoutChainEmpty(t *testing.T) {
	assert.Nil(t, ResolvePeriodEnd(ProviderSubscription{}, CheckoutPeriodEndChain))
}

func TestFromEpoch_RoundTrip(t *testing.T) {
	values := []int64{1, 1700000000, 1735689599, 4102444800}
	for _, v := range values {
		ts := FromEpoch(v)
		assert.Equal(t, time.UTC, ts.Location())
		assert.Equal(t, v, ts.Unix())

		// Re-reading through a different zone must keep the instant.
		local := ts.In(time.FixedZone("UTC-5", -5*3600))
		assert.True(t, local.Equal(ts))
		assert.Equal(t, v, local.Unix())
	}
}

func TestProviderSubscription_EndsAtPeriodEnd(t *testing.T) {
	assert.False(t, ProviderSubscription{}.EndsAtPeriodEnd())
	assert.True(t, ProviderSubscription{CancelAtPeriodEnd: true}.EndsAtPeriodEnd())
	assert.True(t, ProviderSubscription{CancelAt: epoch(time.Now().Add(48 * time.Hour).Unix())}.EndsAtPeriodEnd())
}
