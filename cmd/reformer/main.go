package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/reformer/adapter/cli"
	cliBilling "github.com/felixgeelhaar/reformer/adapter/cli/billing"
	"github.com/felixgeelhaar/reformer/adapter/cli/mcp"
	"github.com/felixgeelhaar/reformer/internal/app"
	"github.com/felixgeelhaar/reformer/pkg/config"
	"github.com/felixgeelhaar/reformer/pkg/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFromEnv().Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	cli.SetLogger(logger)

	// Commands that need no database still run when the container fails in
	// development; billing commands report the missing connection.
	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()
		cliApp = container.CLIApp()
	}

	cli.SetApp(cliApp)

	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}
