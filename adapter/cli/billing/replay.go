package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

var replayEventPath string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Apply a stored processor event",
	Long: `Apply a stored webhook event JSON through the reconciler.

The signature is not checked and the duplicate ledger is bypassed, so an
event that was already processed is applied again.

Examples:
  reformer billing replay --event ./evt_1QxYz.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayEventPath == "" {
			return errors.New("event path is required")
		}
		payload, err := security.SafeReadFile(replayEventPath)
		if err != nil {
			return err
		}
		svc := service(cmd, "Event replay")
		if svc == nil {
			return nil
		}

		result, err := svc.Replay(cmd.Context(), payload)
		if err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Event %s (%s): %s\n", result.EventID, result.EventType, result.Outcome)
		if result.UserID != nil {
			fmt.Fprintf(out, "User: %s\n", result.UserID)
		}
		if result.Detail != "" {
			fmt.Fprintf(out, "Detail: %s\n", result.Detail)
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayEventPath, "event", "", "path to webhook event JSON")
}
