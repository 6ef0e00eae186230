package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBuildAccessSummary(t *testing.T) {
	userID := uuid.New()
	subs := []Subscription{
		{UserID: userID, PriceID: "price_plan", Status: SubscriptionActive},
		{UserID: userID, PriceID: "price_old", Status: SubscriptionCanceled},
		{UserID: userID, PriceID: "price_late", Status: SubscriptionPastDue},
	}
	purchases := []OneTimePurchase{
		{UserID: userID, PriceID: "price_guide", Status: PurchaseCompleted},
		{UserID: userID, PriceID: "price_plan", Status: PurchaseCompleted},
		{UserID: userID, PriceID: "price_pending", Status: "pending"},
	}

	summary := BuildAccessSummary(userID, subs, purchases)

	assert.Equal(t, userID, summary.UserID)
	assert.True(t, summary.HasActiveSubscription)
	assert.Len(t, summary.Subscriptions, 1)
	assert.Len(t, summary.Purchases, 2)
	assert.Equal(t, []string{"price_guide", "price_plan"}, summary.AccessiblePriceIDs)
	assert.True(t, summary.HasPriceAccess("price_guide"))
	assert.False(t, summary.HasPriceAccess("price_old"))
	assert.True(t, summary.HasSubscriptionTo("price_plan"))
	assert.False(t, summary.HasSubscriptionTo("price_guide"))
	assert.True(t, summary.HasPurchased("price_guide"))
	assert.False(t, summary.HasPurchased("price_pending"))
}

func TestAccessSummary_LatestActive(t *testing.T) {
	userID := uuid.New()
	now := time.Now()
	subs := []Subscription{
		{UserID: userID, StripeSubscriptionID: "sub_old", Status: SubscriptionActive, CreatedAt: now.Add(-48 * time.Hour)},
		{UserID: userID, StripeSubscriptionID: "sub_new", Status: SubscriptionActive, CreatedAt: now.Add(-time.Hour)},
		{UserID: userID, StripeSubscriptionID: "sub_gone", Status: SubscriptionCanceled, CreatedAt: now},
	}

	latest := BuildAccessSummary(userID, subs, nil).LatestActive()
	if assert.NotNil(t, latest) {
		assert.Equal(t, "sub_new", latest.StripeSubscriptionID)
	}

	onlyCanceled := BuildAccessSummary(userID, subs[2:], nil)
	assert.Nil(t, onlyCanceled.LatestActive())
}

func TestBuildAccessSummary_Empty(t *testing.T) {
	summary := BuildAccessSummary(uuid.New(), nil, nil)

	assert.False(t, summary.HasActiveSubscription)
	assert.NotNil(t, summary.AccessiblePriceIDs)
	assert.Empty(t, summary.AccessiblePriceIDs)
	assert.NotNil(t, summary.Subscriptions)
	assert.NotNil(t, summary.Purchases)
}

func TestAccessDecision_Err(t *testing.T) {
	assert.NoError(t, AccessDecision{Allowed: true}.Err())

	err := AccessDecision{Reason: ReasonPurchaseRequired}.Err()
	var denied *AccessDeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonPurchaseRequired, denied.Reason)
	assert.Equal(t, "Guide purchase required", denied.Reason.Message())
	assert.Equal(t, "Active subscription required", ReasonSubscriptionRequired.Message())
}

func TestPaymentType_CheckoutMode(t *testing.T) {
	assert.Equal(t, CheckoutModeSubscription, PaymentTypeSubscription.CheckoutMode())
	assert.Equal(t, CheckoutModePayment, PaymentTypeOneTime.CheckoutMode())
}

func TestSubscriptionPatch_IsEmpty(t *testing.T) {
	assert.True(t, SubscriptionPatch{}.IsEmpty())
	assert.False(t, StatusPatch(SubscriptionPastDue).IsEmpty())
	assert.False(t, SubscriptionPatch{SetPeriodEnd: true}.IsEmpty())
}
