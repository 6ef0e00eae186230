package domain

import "time"

// PeriodEndStrategy extracts one candidate for the end of the current billing period.
type PeriodEndStrategy func(ProviderSubscription) (time.Time, bool)

// UpdatePeriodEndChain is used when reconciling subscription updates.
var UpdatePeriodEndChain = []PeriodEndStrategy{
	DirectPeriodEnd,
	ItemPeriodEnd,
}

// CheckoutPeriodEndChain is used when the first row is inserted after checkout.
// It derives a value from the anchor or creation date when the processor omits one.
var CheckoutPeriodEndChain = []PeriodEndStrategy{
	DirectPeriodEnd,
	ItemPeriodEnd,
	AnchorPlusMonth,
	CreatedPlusMonth,
}

// ResolvePeriodEnd returns the first value produced by the chain, or nil when
// every strategy comes up empty. Nil is the "unknown" renewal date.
func ResolvePeriodEnd(sub ProviderSubscription, chain []PeriodEndStrategy) *time.Time {
	for _, strategy := range chain {
		if t, ok := strategy(sub); ok {
			return &t
		}
	}
	return nil
}

// DirectPeriodEnd reads the subscription-level current_period_end.
func DirectPeriodEnd(sub ProviderSubscription) (time.Time, bool) {
	return epochField(sub.CurrentPeriodEnd)
}

// ItemPeriodEnd reads current_period_end from the first line item.
func ItemPeriodEnd(sub ProviderSubscription) (time.Time, bool) {
	return epochField(sub.ItemPeriodEnd)
}

// AnchorPlusMonth derives the period end as one calendar month after the billing anchor.
func AnchorPlusMonth(sub ProviderSubscription) (time.Time, bool) {
	t, ok := epochField(sub.BillingCycleAnchor)
	if !ok {
		return time.Time{}, false
	}
	return t.AddDate(0, 1, 0), true
}

// CreatedPlusMonth derives the period end as one calendar month after creation.
func CreatedPlusMonth(sub ProviderSubscription) (time.Time, bool) {
	if sub.Created <= 0 {
		return time.Time{}, false
	}
	return FromEpoch(sub.Created).AddDate(0, 1, 0), true
}

// FromEpoch converts processor epoch seconds to an absolute UTC instant.
func FromEpoch(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

func epochField(v *int64) (time.Time, bool) {
	if v == nil || *v <= 0 {
		return time.Time{}, false
	}
	return FromEpoch(*v), true
}
