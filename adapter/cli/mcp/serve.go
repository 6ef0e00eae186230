package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/reformer/internal/app"
	mcpinternal "github.com/felixgeelhaar/reformer/internal/mcp"
	"github.com/felixgeelhaar/reformer/pkg/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := app.NewLogger(cfg)
		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		err = mcpinternal.Serve(ctx, cfg, container.CLIApp(), container.AccessCache, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
