package cli

import (
	"context"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
)

// App holds the CLI application dependencies.
type App struct {
	// Billing is the operator view of billing state.
	Billing domain.BillingService

	// Serve runs the HTTP API until ctx is canceled.
	Serve func(ctx context.Context) error

	// Migrate applies pending schema migrations.
	Migrate func(ctx context.Context) error
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
