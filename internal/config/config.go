package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/noise-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Sensor     SensorConfig     `yaml:"sensor" mapstructure:"sensor"`
	Backfill   BackfillConfig   `yaml:"backfill" mapstructure:"backfill"`
	Health     HealthConfig     `yaml:"health" mapstructure:"health"`
	Devices    DevicesConfig    `yaml:"devices" mapstructure:"devices"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the readings database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	View        string `yaml:"view" mapstructure:"view"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SensorConfig configures the upstream sensor API client.
type SensorConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	BreakerFailures  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// BackfillConfig configures the backward day walker.
type BackfillConfig struct {
	EmptyDaysToStop int    `yaml:"empty_days_to_stop" mapstructure:"empty_days_to_stop"`
	MaxYears        int    `yaml:"max_years" mapstructure:"max_years"`
	EarliestDate    string `yaml:"earliest_date" mapstructure:"earliest_date"`
	ChunkSize       int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
	ProgressEvery   int    `yaml:"progress_every" mapstructure:"progress_every"`
	CircuitRetries  int    `yaml:"circuit_retries" mapstructure:"circuit_retries"`
}

// HealthConfig holds the completeness thresholds.
type HealthConfig struct {
	ReadingsPerDay           int     `yaml:"readings_per_day" mapstructure:"readings_per_day"`
	SingleDegradedThreshold  float64 `yaml:"single_degraded_threshold" mapstructure:"single_degraded_threshold"`
	SingleOfflineThreshold   float64 `yaml:"single_offline_threshold" mapstructure:"single_offline_threshold"`
	OverallOnlineThreshold   float64 `yaml:"overall_online_threshold" mapstructure:"overall_online_threshold"`
	OverallDegradedThreshold float64 `yaml:"overall_degraded_threshold" mapstructure:"overall_degraded_threshold"`
}

// DevicesConfig points at an optional device registry file.
type DevicesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port     int `yaml:"port" mapstructure:"port"`
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// MonitoringConfig configures the background device health checker.
type MonitoringConfig struct {
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Location loads the reporting timezone.
func (c BackfillConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Timezone)
	}
	return loc, nil
}

// Earliest parses EarliestDate. A blank value yields the zero Day (no bound).
func (c BackfillConfig) Earliest() (model.Day, error) {
	if c.EarliestDate == "" {
		return model.Day{}, nil
	}
	return model.ParseDay(c.EarliestDate)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NOISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.table", "meter_readings")
	v.SetDefault("store.view", "wide_view_mv")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("sensor.base_url", "http://139.59.223.231:3000/api/meter-sound")
	v.SetDefault("sensor.timeout_secs", 30)
	v.SetDefault("sensor.max_retries", 1)
	v.SetDefault("sensor.rate_per_sec", 20.0)
	v.SetDefault("sensor.concurrency", 4)
	v.SetDefault("sensor.breaker_failures", 20)
	v.SetDefault("sensor.breaker_reset_secs", 30)
	v.SetDefault("backfill.empty_days_to_stop", 7)
	v.SetDefault("backfill.max_years", 5)
	v.SetDefault("backfill.earliest_date", "2025-05-01")
	v.SetDefault("backfill.chunk_size", 1000)
	v.SetDefault("backfill.timezone", "Asia/Singapore")
	v.SetDefault("backfill.progress_every", 10)
	v.SetDefault("backfill.circuit_retries", 3)
	v.SetDefault("health.readings_per_day", 1440)
	v.SetDefault("health.single_degraded_threshold", 0.70)
	v.SetDefault("health.single_offline_threshold", 0.30)
	v.SetDefault("health.overall_online_threshold", 0.70)
	v.SetDefault("health.overall_degraded_threshold", 0.40)
	v.SetDefault("devices.file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.page_size", 200)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// A streak threshold below 1 would stop before the first day.
	if cfg.Backfill.EmptyDaysToStop < 1 {
		cfg.Backfill.EmptyDaysToStop = 1
	}

	return &cfg, nil
}

// Validate checks the parameters a command depends on. Mode is one of
// "ingest" (backfill, daily), "read" (health, migrate) or "serve". All
// problems are reported together; a validation error is fatal at startup.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "ingest", "read", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required (NOISE_STORE_DATABASE_URL)")
	}
	if c.Store.Table == "" || c.Store.View == "" {
		errs = append(errs, "store.table and store.view are required")
	}
	if _, err := c.Backfill.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("backfill.timezone %q is not a valid timezone", c.Backfill.Timezone))
	}
	if err := c.Health.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if mode == "ingest" {
		if c.Sensor.BaseURL == "" {
			errs = append(errs, "sensor.base_url is required (NOISE_SENSOR_BASE_URL)")
		}
		if _, err := c.Backfill.Earliest(); err != nil {
			errs = append(errs, fmt.Sprintf("backfill.earliest_date %q must be YYYY-MM-DD", c.Backfill.EarliestDate))
		}
		if c.Backfill.ChunkSize <= 0 {
			errs = append(errs, "backfill.chunk_size must be > 0")
		}
		if c.Sensor.Concurrency < 1 {
			errs = append(errs, "sensor.concurrency must be >= 1")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.PageSize <= 0 {
			errs = append(errs, "server.page_size must be > 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks threshold ranges and ordering.
func (h HealthConfig) Validate() error {
	if h.ReadingsPerDay <= 0 {
		return eris.New("health.readings_per_day must be > 0")
	}
	for name, v := range map[string]float64{
		"single_degraded_threshold":  h.SingleDegradedThreshold,
		"single_offline_threshold":   h.SingleOfflineThreshold,
		"overall_online_threshold":   h.OverallOnlineThreshold,
		"overall_degraded_threshold": h.OverallDegradedThreshold,
	} {
		if v < 0 || v > 1 {
			return eris.Errorf("health.%s must be within [0,1], got %v", name, v)
		}
	}
	if h.SingleOfflineThreshold > h.SingleDegradedThreshold {
		return eris.New("health.single_offline_threshold exceeds single_degraded_threshold")
	}
	if h.OverallDegradedThreshold > h.OverallOnlineThreshold {
		return eris.New("health.overall_degraded_threshold exceeds overall_online_threshold")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
