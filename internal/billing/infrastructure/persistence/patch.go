package persistence

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
)

// buildPatch renders the SET list for a subscription patch. placeholder
// returns the bind marker for the n-th argument.
func buildPatch(patch domain.SubscriptionPatch, now time.Time, placeholder func(n int) string, periodEnd func(*time.Time) any, flag func(bool) any, ts func(time.Time) any) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = %s", column, placeholder(len(args))))
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.SetPeriodEnd {
		add("current_period_end", periodEnd(patch.CurrentPeriodEnd))
	}
	if patch.CancelAtPeriodEnd != nil {
		add("cancel_at_period_end", flag(*patch.CancelAtPeriodEnd))
	}
	add("updated_at", ts(now))

	return strings.Join(sets, ", "), args
}
