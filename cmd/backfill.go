package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/ingest"
	"github.com/sells-group/noise-cli/internal/store"
)

var (
	backfillEmptyDays int
	backfillMaxYears  int
	backfillEarliest  string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Walk backwards from yesterday ingesting each day",
	Long: "Walks backwards one local day at a time from yesterday, fetching and upserting every device, " +
		"until enough consecutive empty days, the max-years horizon or the earliest date is reached.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("empty-days") {
			cfg.Backfill.EmptyDaysToStop = max(backfillEmptyDays, 1)
		}
		if cmd.Flags().Changed("max-years") {
			cfg.Backfill.MaxYears = backfillMaxYears
		}
		if cmd.Flags().Changed("earliest") {
			cfg.Backfill.EarliestDate = backfillEarliest
		}

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := backfill(ctx, env); err != nil {
			return eris.Wrap(err, "backfill")
		}
		return nil
	},
}

// backfill runs the walker to a stop condition and refreshes the wide view.
// The walker logs the run summary.
func backfill(ctx context.Context, env *appEnv) (*ingest.BackfillRun, error) {
	walker, err := env.newWalker()
	if err != nil {
		return nil, err
	}

	run, runErr := walker.Run(ctx)

	// Refresh whatever was written, even when the walk was interrupted.
	refreshView(context.WithoutCancel(ctx), env.Store)
	return run, runErr
}

// refreshView logs rather than fails: the readings are already durable.
func refreshView(ctx context.Context, st store.Store) {
	if err := st.RefreshView(ctx); err != nil {
		zap.L().Error("refresh wide view failed", zap.Error(err))
	}
}

func init() {
	backfillCmd.Flags().IntVar(&backfillEmptyDays, "empty-days", 0, "consecutive empty days before stopping (default from config)")
	backfillCmd.Flags().IntVar(&backfillMaxYears, "max-years", 0, "max years back from yesterday, 0 disables (default from config)")
	backfillCmd.Flags().StringVar(&backfillEarliest, "earliest", "", "earliest day to process, YYYY-MM-DD (default from config)")
	rootCmd.AddCommand(backfillCmd)
}
