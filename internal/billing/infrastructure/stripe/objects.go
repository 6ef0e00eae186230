package stripe

import (
	"bytes"
	"encoding/json"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

// objectRef is an API reference that is either an id string or an expanded
// object carrying an id.
type objectRef string

func (r *objectRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = objectRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = objectRef(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     objectRef         `json:"customer"`
	Subscription objectRef         `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           objectRef         `json:"customer"`
	Status             string            `json:"status"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodEnd   *int64            `json:"current_period_end"`
	BillingCycleAnchor *int64            `json:"billing_cycle_anchor"`
	Created            int64             `json:"created"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CancelAt           *int64            `json:"cancel_at"`
	Items              struct {
		Data []struct {
			CurrentPeriodEnd *int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscriptionObject) toProvider() domain.ProviderSubscription {
	p := domain.ProviderSubscription{
		ID:                 s.ID,
		CustomerID:         string(s.Customer),
		Status:             domain.SubscriptionStatus(s.Status),
		UserID:             userIDFrom(s.Metadata),
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		BillingCycleAnchor: s.BillingCycleAnchor,
		Created:            s.Created,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CancelAt:           positive(s.CancelAt),
	}
	if len(s.Items.Data) > 0 {
		p.PriceID = s.Items.Data[0].Price.ID
		p.ItemPeriodEnd = s.Items.Data[0].CurrentPeriodEnd
	}
	return p
}

type invoiceObject struct {
	ID           string    `json:"id"`
	Subscription objectRef `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription objectRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionID reads the legacy top-level field first, then the
// parent.subscription_details location used by newer API versions.
func (i invoiceObject) subscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// userIDFrom returns uuid.Nil for a missing or malformed user_id.
func userIDFrom(metadata map[string]string) uuid.UUID {
	id, err := uuid.Parse(metadata["user_id"])
	if err != nil {
		return uuid.Nil
	}
	return id
}

// positive drops the zero values some API versions send instead of null.
func positive(v *int64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}
