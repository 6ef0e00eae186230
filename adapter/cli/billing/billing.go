package billing

import (
	"fmt"

	"github.com/felixgeelhaar/reformer/adapter/cli"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Inspect and repair billing state",
	Long:  `Inspect subscriptions and access, replay stored processor events and drop cached summaries.`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(accessCmd)
	Cmd.AddCommand(replayCmd)
	Cmd.AddCommand(invalidateCmd)
}

// service returns the billing service, or nil when the CLI runs without a
// database. The caller prints a notice in that case.
func service(cmd *cobra.Command, action string) domain.BillingService {
	app := cli.GetApp()
	if app == nil || app.Billing == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s requires database connection.\n", action)
		return nil
	}
	return app.Billing
}

func parseUser(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--user is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return id, nil
}
