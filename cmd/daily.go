package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/ingest"
	"github.com/sells-group/noise-cli/internal/model"
)

var dailyDate string

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Ingest one local day for every device",
	Long:  "Fetches and upserts one local day (default yesterday in the reporting timezone) for every registered device.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		day, err := resolveDay(dailyDate, time.Now(), env.Location)
		if err != nil {
			return err
		}

		walker, err := env.newWalker()
		if err != nil {
			return err
		}

		res := walker.RunDay(ctx, day)
		refreshView(context.WithoutCancel(ctx), env.Store)

		for _, d := range env.Registry.All() {
			zap.L().Info("device rows",
				zap.String("day", day.String()),
				zap.String("device_id", d.ID),
				zap.String("device_name", d.Name),
				zap.Int("rows", res.PerDevice[d.ID]),
			)
		}

		zap.L().Info("daily ingest finished",
			zap.String("day", day.String()),
			zap.Int("rows", res.Rows),
			zap.Int64("affected", res.Affected),
			zap.Int("fetch_failures", res.FetchFailures),
			zap.Int("failed_chunks", res.FailedChunks),
		)

		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "daily")
		}
		if res.Rows > 0 && res.Affected == 0 {
			return eris.Errorf("daily: store rejected every row for %s", day)
		}
		return nil
	},
}

// resolveDay parses a YYYY-MM-DD flag, defaulting to yesterday in loc.
func resolveDay(s string, now time.Time, loc *time.Location) (model.Day, error) {
	if s == "" {
		return ingest.Yesterday(now, loc), nil
	}
	d, err := model.ParseDay(s)
	if err != nil {
		return model.Day{}, eris.Wrap(err, "invalid --date")
	}
	return d, nil
}

func init() {
	dailyCmd.Flags().StringVar(&dailyDate, "date", "", "local day to ingest, YYYY-MM-DD (default yesterday)")
	rootCmd.AddCommand(dailyCmd)
}
