package billing

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's latest subscription",
	Long: `Show the latest subscription for a user.

Examples:
  reformer billing status --user 7d0f2c1e-8a4b-4c61-9f3e-2b5d6a7c8e90`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUser(statusUser)
		if err != nil {
			return err
		}
		svc := service(cmd, "Billing status")
		if svc == nil {
			return nil
		}

		subscription, err := svc.LatestSubscription(cmd.Context(), userID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if subscription == nil {
			fmt.Fprintln(out, "No subscription found.")
			return nil
		}

		statusLine := string(subscription.Status)
		if subscription.PriceID != "" {
			statusLine = fmt.Sprintf("%s (%s)", subscription.PriceID, statusLine)
		}
		fmt.Fprintf(out, "Subscription: %s\n", statusLine)

		renews := "unknown"
		if subscription.CurrentPeriodEnd != nil {
			renews = subscription.CurrentPeriodEnd.UTC().Format(time.RFC1123)
		}
		label := "Renews"
		if subscription.CancelAtPeriodEnd {
			label = "Ends"
		}
		fmt.Fprintf(out, "%s: %s\n", label, renews)

		if subscription.StripeCustomerID != "" {
			fmt.Fprintf(out, "Stripe customer: %s\n", subscription.StripeCustomerID)
		}
		if subscription.StripeSubscriptionID != "" {
			fmt.Fprintf(out, "Stripe subscription: %s\n", subscription.StripeSubscriptionID)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user id")
}
