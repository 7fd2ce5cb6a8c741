package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the readings table and wide view",
	Long:  "Creates the readings table (unique on device_id, instant) and rebuilds the wide view with one column per registered device.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("migrations applied",
			zap.String("table", cfg.Store.Table),
			zap.String("view", cfg.Store.View),
			zap.Int("devices", env.Registry.Len()),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
