package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/security"
	"github.com/google/uuid"
)

type billingUserInput struct {
	UserID string `json:"user_id" jsonschema:"required"`
}

type billingAccessInput struct {
	UserID  string `json:"user_id" jsonschema:"required"`
	VideoID string `json:"video_id,omitempty"`
	GuideID string `json:"guide_id,omitempty"`
}

type billingInvalidateInput struct {
	UserID   string `json:"user_id,omitempty"`
	Products bool   `json:"products,omitempty"`
}

type billingReplayInput struct {
	EventPath string `json:"event_path,omitempty"`
	EventJSON string `json:"event_json,omitempty"`
}

var errNoDatabase = errors.New("billing tools require database connection")

// billingTools holds the handlers so they can be exercised without a transport.
type billingTools struct {
	svc domain.BillingService
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) {
	tools := &billingTools{svc: deps.App.Billing}

	srv.Tool("billing.status").
		Description("Latest subscription for a user; null when none exists").
		Handler(tools.status)

	srv.Tool("billing.access").
		Description("Accessible price ids for a user, or the access decision for one video or guide").
		Handler(tools.access)

	srv.Tool("billing.replay").
		Description("Apply a stored processor event without signature verification").
		Handler(tools.replay)

	srv.Tool("billing.invalidate").
		Description("Drop a user's cached access summary and/or the cached product catalog").
		Handler(tools.invalidate)
}

func (t *billingTools) status(ctx context.Context, input billingUserInput) (map[string]any, error) {
	if t.svc == nil {
		return nil, errNoDatabase
	}
	userID, err := uuidArg("user_id", input.UserID, true)
	if err != nil {
		return nil, err
	}
	sub, err := t.svc.LatestSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"subscription": sub}, nil
}

func (t *billingTools) access(ctx context.Context, input billingAccessInput) (map[string]any, error) {
	if t.svc == nil {
		return nil, errNoDatabase
	}
	userID, err := uuidArg("user_id", input.UserID, true)
	if err != nil {
		return nil, err
	}
	if input.VideoID != "" && input.GuideID != "" {
		return nil, errors.New("video_id and guide_id are mutually exclusive")
	}
	videoID, err := uuidArg("video_id", input.VideoID, false)
	if err != nil {
		return nil, err
	}
	guideID, err := uuidArg("guide_id", input.GuideID, false)
	if err != nil {
		return nil, err
	}

	switch {
	case videoID != uuid.Nil:
		decision, err := t.svc.VideoAccess(ctx, userID, videoID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"video_id": videoID, "decision": decision}, nil
	case guideID != uuid.Nil:
		decision, err := t.svc.GuideAccess(ctx, userID, guideID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"guide_id": guideID, "decision": decision}, nil
	}

	summary, err := t.svc.AccessSummary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"user_id":                 userID,
		"accessible_price_ids":    summary.AccessiblePriceIDs,
		"has_active_subscription": summary.HasActiveSubscription,
	}, nil
}

func (t *billingTools) replay(ctx context.Context, input billingReplayInput) (domain.ReconcileResult, error) {
	if t.svc == nil {
		return domain.ReconcileResult{}, errNoDatabase
	}
	payload, err := loadEventPayload(input.EventPath, input.EventJSON)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	return t.svc.Replay(ctx, payload)
}

func (t *billingTools) invalidate(ctx context.Context, input billingInvalidateInput) (map[string]any, error) {
	if t.svc == nil {
		return nil, errNoDatabase
	}
	userID, err := uuidArg("user_id", input.UserID, !input.Products)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"invalidated": true}
	if userID != uuid.Nil {
		if err := t.svc.Invalidate(ctx, userID); err != nil {
			return nil, err
		}
		out["user_id"] = userID
	}
	if input.Products {
		if err := t.svc.InvalidateCatalog(ctx); err != nil {
			return nil, err
		}
		out["products"] = true
	}
	return out, nil
}

func loadEventPayload(path, payload string) ([]byte, error) {
	if payload != "" {
		return []byte(payload), nil
	}
	if path == "" {
		return nil, errors.New("event_path or event_json is required")
	}
	return security.SafeReadFile(path)
}

// uuidArg parses a tool argument. An empty optional argument is uuid.Nil.
func uuidArg(name, value string, required bool) (uuid.UUID, error) {
	if value == "" {
		if required {
			return uuid.Nil, fmt.Errorf("%s is required", name)
		}
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}
