package resilience

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/config"
)

// SensorBreakerConfig builds the upstream breaker from the sensor config
// section. Non-positive values keep the defaults. Every state change is
// logged, since an open circuit pauses ingestion.
func SensorBreakerConfig(c config.SensorConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c.BreakerFailures > 0 {
		cfg.FailureThreshold = c.BreakerFailures
	}
	if c.BreakerResetSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.BreakerResetSecs) * time.Second
	}
	cfg.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("sensor circuit breaker state change",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Duration("reset_timeout", cfg.ResetTimeout),
		)
	}
	return cfg
}
