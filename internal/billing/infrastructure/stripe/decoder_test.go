package stripe

import (
	"errors"
	"fmt"
	"testing"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func envelope(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"api_version":"2025-03-31.basil","data":{"object":%s}}`,
		id, eventType, object))
}

func signed(t *testing.T, payload []byte) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	return sp.Header
}

func TestVerifier_CheckoutCompleted(t *testing.T) {
	userID := uuid.New()
	payload := envelope("evt_1", domain.EventCheckoutCompleted, fmt.Sprintf(
		`{"id":"cs_1","object":"checkout.session","mode":"payment","customer":"cus_1","subscription":null,"metadata":{"user_id":%q,"price_id":"price_guide_a"}}`,
		userID))

	evt, err := NewVerifier(testSecret).Verify(payload, signed(t, payload))
	require.NoError(t, err)

	cc, ok := evt.(domain.CheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt_1", cc.EventID())
	assert.Equal(t, "cs_1", cc.SessionID)
	assert.Equal(t, domain.CheckoutModePayment, cc.Mode)
	assert.Equal(t, userID, cc.UserID)
	assert.Equal(t, "price_guide_a", cc.PriceID)
	assert.Equal(t, "cus_1", cc.CustomerID)
	assert.Empty(t, cc.SubscriptionID)
}

func TestVerifier_RejectsBadSignature(t *testing.T) {
	payload := envelope("evt_1", domain.EventCheckoutCompleted, `{"id":"cs_1"}`)
	header := signed(t, payload)

	tests := []struct {
		name      string
		verifier  *Verifier
		payload   []byte
		signature string
	}{
		{"missing header", NewVerifier(testSecret), payload, ""},
		{"wrong secret", NewVerifier("whsec_other"), payload, header},
		{"tampered body", NewVerifier(testSecret), append([]byte(nil), envelope("evt_2", domain.EventCheckoutCompleted, `{"id":"cs_1"}`)...), header},
		{"no secret configured", NewVerifier(""), payload, header},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.Verify(tt.payload, tt.signature)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
		})
	}
}

func TestDecoder_SubscriptionUpdated(t *testing.T) {
	userID := uuid.New()
	payload := envelope("evt_2", domain.EventSubscriptionUpdated, fmt.Sprintf(`{
		"id":"sub_1","object":"subscription","customer":{"id":"cus_9","object":"customer"},
		"status":"active","metadata":{"user_id":%q},
		"billing_cycle_anchor":1700000000,"created":1699990000,
		"cancel_at_period_end":false,"cancel_at":1702592000,
		"items":{"data":[{"current_period_end":1702592000,"price":{"id":"price_core"}}]}
	}`, userID))

	evt, err := Decoder{}.Decode(payload)
	require.NoError(t, err)

	su, ok := evt.(domain.SubscriptionUpdated)
	require.True(t, ok)
	sub := su.Subscription
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_9", sub.CustomerID)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.Equal(t, "price_core", sub.PriceID)
	assert.Equal(t, userID, sub.UserID)
	assert.Nil(t, sub.CurrentPeriodEnd)
	require.NotNil(t, sub.ItemPeriodEnd)
	assert.Equal(t, int64(1702592000), *sub.ItemPeriodEnd)
	require.NotNil(t, sub.BillingCycleAnchor)
	assert.Equal(t, int64(1699990000), sub.Created)
	assert.True(t, sub.EndsAtPeriodEnd())
}

func TestDecoder_SubscriptionCreatedAndDeleted(t *testing.T) {
	created, err := Decoder{}.Decode(envelope("evt_3", domain.EventSubscriptionCreated,
		`{"id":"sub_2","status":"incomplete","current_period_end":1702592000,"cancel_at":0,"metadata":{}}`))
	require.NoError(t, err)
	sc, ok := created.(domain.SubscriptionCreated)
	require.True(t, ok)
	assert.Equal(t, domain.SubscriptionStatus("incomplete"), sc.Subscription.Status)
	require.NotNil(t, sc.Subscription.CurrentPeriodEnd)
	assert.Nil(t, sc.Subscription.CancelAt)
	assert.False(t, sc.Subscription.EndsAtPeriodEnd())
	assert.Equal(t, uuid.Nil, sc.Subscription.UserID)

	deleted, err := Decoder{}.Decode(envelope("evt_4", domain.EventSubscriptionDeleted,
		`{"id":"sub_2","status":"canceled","metadata":{"user_id":"not-a-uuid"}}`))
	require.NoError(t, err)
	sd, ok := deleted.(domain.SubscriptionDeleted)
	require.True(t, ok)
	assert.Equal(t, "sub_2", sd.SubscriptionID)
	assert.Equal(t, uuid.Nil, sd.UserID)
}

func TestDecoder_InvoiceSubscriptionReference(t *testing.T) {
	tests := []struct {
		name   string
		object string
		want   string
	}{
		{"top-level id", `{"id":"in_1","subscription":"sub_a"}`, "sub_a"},
		{"expanded object", `{"id":"in_1","subscription":{"id":"sub_b","object":"subscription"}}`, "sub_b"},
		{"parent details", `{"id":"in_1","subscription":null,"parent":{"subscription_details":{"subscription":"sub_c"}}}`, "sub_c"},
		{"absent", `{"id":"in_1"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := Decoder{}.Decode(envelope("evt_5", domain.EventInvoicePaymentFailed, tt.object))
			require.NoError(t, err)
			failed, ok := evt.(domain.InvoicePaymentFailed)
			require.True(t, ok)
			assert.Equal(t, tt.want, failed.SubscriptionID)
		})
	}

	evt, err := Decoder{}.Decode(envelope("evt_6", domain.EventInvoicePaymentSucceeded, `{"id":"in_2","subscription":"sub_a"}`))
	require.NoError(t, err)
	succeeded, ok := evt.(domain.InvoicePaymentSucceeded)
	require.True(t, ok)
	assert.Equal(t, "sub_a", succeeded.SubscriptionID)
}

func TestDecoder_UnhandledAndMalformed(t *testing.T) {
	evt, err := Decoder{}.Decode(envelope("evt_7", "charge.refunded", `{"id":"ch_1"}`))
	require.NoError(t, err)
	_, ok := evt.(domain.Unhandled)
	assert.True(t, ok)
	assert.Equal(t, "charge.refunded", evt.EventType())

	_, err = Decoder{}.Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Decoder{}.Decode([]byte(`{"object":"event"}`))
	assert.Error(t, err)
}
