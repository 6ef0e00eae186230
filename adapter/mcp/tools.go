// Package mcp exposes the operator billing commands as MCP tools.
package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reformer/adapter/cli"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
)

// ProductCatalog lists every product, active or not.
type ProductCatalog interface {
	Products(ctx context.Context) (domain.Catalog, error)
}

// ToolDependencies provides the application behind the MCP tools.
type ToolDependencies struct {
	App     *cli.App
	Catalog ProductCatalog
}

// RegisterCLITools registers MCP tools that mirror CLI functionality.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	registerCoreTools(srv, deps)
	registerBillingTools(srv, deps)
	return nil
}

func registerCoreTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("cli.health").
		Description("Check that the billing backend is wired").
		Handler(func(ctx context.Context, input struct{}) (map[string]any, error) {
			return map[string]any{
				"status":   "ok",
				"database": app.Billing != nil,
			}, nil
		})
}
