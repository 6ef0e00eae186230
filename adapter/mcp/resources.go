package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
)

// handledEvents documents how each processor event type is reconciled.
var handledEvents = []map[string]string{
	{"type": "checkout.session.completed", "effect": "creates the subscription row or records the one-time purchase"},
	{"type": "customer.subscription.created", "effect": "upserts the subscription with its resolved period end"},
	{"type": "customer.subscription.updated", "effect": "patches status, price, period end and cancel flag"},
	{"type": "customer.subscription.deleted", "effect": "marks the subscription canceled"},
	{"type": "invoice.payment_failed", "effect": "marks the subscription past_due"},
	{"type": "invoice.payment_succeeded", "effect": "marks the subscription active"},
}

// RegisterResources registers MCP resources that expose billing reference data.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Resource("reformer://billing/events").
		Name("Handled Events").
		Description("Processor event types the reconciler applies and their effect").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			return jsonResource(uri, map[string]any{
				"events": handledEvents,
				"outcomes": []domain.ReconcileOutcome{
					domain.OutcomeApplied,
					domain.OutcomeNoop,
					domain.OutcomeDuplicate,
					domain.OutcomeSkipped,
					domain.OutcomeIgnored,
				},
			})
		})

	catalog := deps.Catalog
	srv.Resource("reformer://billing/products").
		Name("Products").
		Description("The product catalog, including retired products").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if catalog == nil {
				return nil, fmt.Errorf("product catalog requires database connection")
			}
			products, err := catalog.Products(ctx)
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, products)
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
