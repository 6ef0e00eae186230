// Package mcp runs the admin MCP server over HTTP.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"
	"github.com/felixgeelhaar/reformer/adapter/cli"
	mcplocal "github.com/felixgeelhaar/reformer/adapter/mcp"
	"github.com/felixgeelhaar/reformer/pkg/config"
)

const serverName = "reformer-mcp"

// Serve starts an MCP server exposing the billing tools and blocks until
// ctx is canceled.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, catalog mcplocal.ProductCatalog, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := build(mcplocal.ToolDependencies{App: cliApp, Catalog: catalog}, logger)
	if err != nil {
		return err
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr, "authenticated", cfg.MCPAuthToken != "")
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(middlewareStack(cfg.MCPAuthToken, logger)...))
}

// build registers tools, resources and prompts. Only the tools are mandatory.
func build(deps mcplocal.ToolDependencies, logger *slog.Logger) (*mcpgo.Server, error) {
	if deps.App == nil {
		return nil, errors.New("CLI app is required")
	}
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:         serverName,
		Version:      cli.Version,
		Capabilities: mcpgo.Capabilities{Tools: true, Resources: true, Prompts: true},
	})
	if err := mcplocal.RegisterCLITools(srv, deps); err != nil {
		return nil, err
	}

	optional := []struct {
		kind     string
		register func(*mcpgo.Server, mcplocal.ToolDependencies) error
	}{
		{"resources", mcplocal.RegisterResources},
		{"prompts", mcplocal.RegisterPrompts},
	}
	for _, o := range optional {
		if err := o.register(srv, deps); err != nil {
			logger.Warn("mcp registration skipped", "kind", o.kind, "error", err)
		}
	}
	return srv, nil
}

// middlewareStack puts bearer auth in front of the default stack when a
// token is configured.
func middlewareStack(token string, logger *slog.Logger) []middleware.Middleware {
	log := slogAdapter{logger}
	stack := middleware.DefaultStack(log)
	if token == "" {
		logger.Warn("MCP_AUTH_TOKEN is empty; admin tools are unauthenticated")
		return stack
	}
	tokens := middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: "operator", Name: "operator"},
	})
	auth := middleware.Auth(middleware.BearerTokenAuthenticator(tokens), middleware.WithAuthLogger(log))
	return append([]middleware.Middleware{auth}, stack...)
}

type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(msg string, fields ...middleware.Field) { a.l.Debug(msg, attrs(fields)...) }
func (a slogAdapter) Info(msg string, fields ...middleware.Field)  { a.l.Info(msg, attrs(fields)...) }
func (a slogAdapter) Warn(msg string, fields ...middleware.Field)  { a.l.Warn(msg, attrs(fields)...) }
func (a slogAdapter) Error(msg string, fields ...middleware.Field) { a.l.Error(msg, attrs(fields)...) }

func attrs(fields []middleware.Field) []any {
	out := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
