package billing

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	accessUser  string
	accessVideo string
	accessGuide string
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Show what a user can access",
	Long: `List the price ids a user is entitled to, or decide access to one video
or guide.

Examples:
  reformer billing access --user <uuid>
  reformer billing access --user <uuid> --video <uuid>
  reformer billing access --user <uuid> --guide <uuid>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUser(accessUser)
		if err != nil {
			return err
		}
		if accessVideo != "" && accessGuide != "" {
			return errors.New("--video and --guide are mutually exclusive")
		}
		videoID, err := parseContent("video", accessVideo)
		if err != nil {
			return err
		}
		guideID, err := parseContent("guide", accessGuide)
		if err != nil {
			return err
		}
		svc := service(cmd, "Access lookup")
		if svc == nil {
			return nil
		}
		out := cmd.OutOrStdout()

		switch {
		case videoID != uuid.Nil:
			decision, err := svc.VideoAccess(cmd.Context(), userID, videoID)
			if err != nil {
				return err
			}
			printDecision(out, decision)
			return nil
		case guideID != uuid.Nil:
			decision, err := svc.GuideAccess(cmd.Context(), userID, guideID)
			if err != nil {
				return err
			}
			printDecision(out, decision)
			return nil
		}

		summary, err := svc.AccessSummary(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Active subscription: %t\n", summary.HasActiveSubscription)
		if len(summary.AccessiblePriceIDs) == 0 {
			fmt.Fprintln(out, "No accessible prices.")
			return nil
		}
		fmt.Fprintf(out, "Accessible prices (%d): %s\n", len(summary.AccessiblePriceIDs), strings.Join(summary.AccessiblePriceIDs, ", "))
		return nil
	},
}

func init() {
	accessCmd.Flags().StringVar(&accessUser, "user", "", "user id")
	accessCmd.Flags().StringVar(&accessVideo, "video", "", "video id to decide access for")
	accessCmd.Flags().StringVar(&accessGuide, "guide", "", "guide id to decide access for")
}

// parseContent returns uuid.Nil for an empty flag.
func parseContent(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, raw, err)
	}
	return id, nil
}

func printDecision(out io.Writer, decision domain.AccessDecision) {
	if decision.Allowed {
		fmt.Fprintln(out, "Access: allowed")
		return
	}
	fmt.Fprintf(out, "Access: denied (%s)\n", decision.Reason)
	if decision.PriceID != "" {
		fmt.Fprintf(out, "Requires: %s\n", decision.PriceID)
	}
}
