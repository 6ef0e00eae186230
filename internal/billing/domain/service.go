package domain

import (
	"context"

	"github.com/google/uuid"
)

// BillingService is the operator-facing view of billing state, shared by the
// CLI and the MCP tools.
type BillingService interface {
	// LatestSubscription returns the user's most recent subscription, if any.
	LatestSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// AccessSummary returns the user's current entitlements.
	AccessSummary(ctx context.Context, userID uuid.UUID) (AccessSummary, error)

	// VideoAccess decides whether the user may watch the video.
	VideoAccess(ctx context.Context, userID, videoID uuid.UUID) (AccessDecision, error)

	// GuideAccess decides whether the user may download the guide.
	GuideAccess(ctx context.Context, userID, guideID uuid.UUID) (AccessDecision, error)

	// Replay applies a stored processor event without signature verification.
	Replay(ctx context.Context, payload []byte) (ReconcileResult, error)

	// Invalidate drops the user's cached access summary.
	Invalidate(ctx context.Context, userID uuid.UUID) error

	// InvalidateCatalog drops the cached product catalog.
	InvalidateCatalog(ctx context.Context) error
}

// ReconcileOutcome classifies what the reconciler did with an event.
type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeNoop      ReconcileOutcome = "noop"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeSkipped   ReconcileOutcome = "skipped"
	OutcomeIgnored   ReconcileOutcome = "ignored"
)

// ReconcileResult reports the outcome for one event.
type ReconcileResult struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Outcome   ReconcileOutcome `json:"outcome"`
	UserID    *uuid.UUID       `json:"user_id,omitempty"`
	Detail    string           `json:"detail,omitempty"`
}
