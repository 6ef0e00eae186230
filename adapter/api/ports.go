package api

import (
	"context"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

// WebhookVerifier authenticates and decodes a processor webhook body.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (domain.WebhookEvent, error)
}

// EventReconciler applies a verified webhook event.
type EventReconciler interface {
	Reconcile(ctx context.Context, evt domain.WebhookEvent) (domain.ReconcileResult, error)
}

// CheckoutStarter starts a hosted checkout.
type CheckoutStarter interface {
	Start(ctx context.Context, in application.CheckoutInput) (string, error)
}

// PortalOpener opens the billing self-service portal.
type PortalOpener interface {
	Open(ctx context.Context, userID uuid.UUID, origin string) (string, error)
}

// PlaybackIssuer issues playback credentials to entitled viewers.
type PlaybackIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, email string, videoID uuid.UUID) (*application.PlaybackCredential, error)
}

// AccessReader serves the cached catalog and per-user summaries.
type AccessReader interface {
	Products(ctx context.Context) (domain.Catalog, error)
	Summary(ctx context.Context, userID uuid.UUID) (domain.AccessSummary, error)
}

// VideoLister lists videos annotated with the user's access.
type VideoLister interface {
	ListVideos(ctx context.Context, userID uuid.UUID) ([]application.VideoWithAccess, error)
}
