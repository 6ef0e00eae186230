// Package cli is the reformer operator command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/reformer/pkg/observability"
	"github.com/spf13/cobra"
)

var logger = slog.Default()

type startedAtKey struct{}

var rootCmd = &cobra.Command{
	Use:   "reformer",
	Short: "Reformer - membership billing for the studio",
	Long: `Reformer runs the studio's billing core: the payment webhook
receiver, checkout and portal sessions, the entitlement resolver
and gated video playback.

The billing subcommands let operators inspect and repair billing state.`,
	SilenceUsage: true,
	// Each invocation gets a correlation id, so log lines from one command
	// (including a replayed webhook) can be grouped.
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = observability.WithCorrelationID(ctx, "")
		ctx = context.WithValue(ctx, startedAtKey{}, time.Now())
		cmd.SetContext(ctx)
		logger.DebugContext(ctx, "command start", "command", cmd.CommandPath())
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		started, ok := ctx.Value(startedAtKey{}).(time.Time)
		if !ok {
			return
		}
		logger.DebugContext(ctx, "command end",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	},
}

// Execute runs the root command with ctx and exits non-zero on error.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger sets the CLI logger. A nil logger is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
