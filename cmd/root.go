package main

import (
	"os"
	_ "time/tzdata" // reporting timezones must load on hosts without zoneinfo

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/config"
)

var cfg *config.Config

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:     "noise-cli",
	Short:   "Noise sensor ingestion and health reporting",
	Long:    "Pulls per-minute noise readings from the sensor API, upserts them into the readings store, and reports per-device health.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// setup loads config, applies the logging flags over it and installs the
// global logger. Commands validate the sections they need themselves.
func setup() error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	zap.L().Debug("config loaded",
		zap.String("version", version),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("log_level", cfg.Log.Level),
	)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or console (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
