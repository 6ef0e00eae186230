package billing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	invalidateUser     string
	invalidateProducts bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached access summaries or the product catalog",
	Long: `Drop a user's cached access summary, the cached product catalog, or both.

Examples:
  reformer billing invalidate --user <uuid>
  reformer billing invalidate --products`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var userID uuid.UUID
		if invalidateUser != "" || !invalidateProducts {
			id, err := parseUser(invalidateUser)
			if err != nil {
				return err
			}
			userID = id
		}
		svc := service(cmd, "Cache invalidation")
		if svc == nil {
			return nil
		}
		out := cmd.OutOrStdout()
		if userID != uuid.Nil {
			if err := svc.Invalidate(cmd.Context(), userID); err != nil {
				return err
			}
			fmt.Fprintf(out, "Cache cleared for %s\n", userID)
		}
		if invalidateProducts {
			if err := svc.InvalidateCatalog(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Product catalog cache cleared")
		}
		return nil
	},
}

func init() {
	invalidateCmd.Flags().StringVar(&invalidateUser, "user", "", "user id")
	invalidateCmd.Flags().BoolVar(&invalidateProducts, "products", false, "also drop the cached product catalog")
}
