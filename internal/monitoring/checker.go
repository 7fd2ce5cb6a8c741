package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/config"
)

// Checker runs periodic device health checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect health", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	for _, a := range alerts {
		log.Warn(a.Message, zap.String("type", string(a.Type)), zap.String("severity", a.Severity))
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: health check complete",
		zap.String("day", snap.Day),
		zap.Int("online", snap.Online),
		zap.Int("degraded", snap.Degraded),
		zap.Int("offline", snap.Offline),
		zap.Int("alerts_sent", sent),
	)
}
