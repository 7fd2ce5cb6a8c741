package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/config"
	"github.com/sells-group/noise-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDeviceDegraded AlertType = "device_degraded"
	AlertDeviceOffline  AlertType = "device_offline"
	AlertFleetOffline   AlertType = "fleet_offline"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns a HealthSnapshot into alerts and delivers them via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns one alert per non-online device, plus a fleet alert when
// every device is offline (usually an upstream or ingestion outage).
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Devices() > 0 && snap.Offline == snap.Devices() {
		alerts = append(alerts, Alert{
			Type:     AlertFleetOffline,
			Severity: "critical",
			Message:  fmt.Sprintf("All %d devices offline on %s", snap.Devices(), snap.Day),
			Details: map[string]any{
				"day":     snap.Day,
				"devices": snap.Devices(),
			},
			Timestamp: now,
		})
	}

	for _, r := range snap.Records {
		var typ AlertType
		severity := "medium"
		switch r.Status {
		case model.StatusDegraded:
			typ = AlertDeviceDegraded
		case model.StatusOffline:
			typ = AlertDeviceOffline
			severity = "high"
		default:
			continue
		}
		alerts = append(alerts, Alert{
			Type:     typ,
			Severity: severity,
			Message: fmt.Sprintf(
				"Device %s %s on %s: %d/%d readings (%.1f%%)",
				r.DeviceID, r.Status, snap.Day, r.ObservedCount, r.ExpectedCount, r.CompletenessRatio*100,
			),
			Details: map[string]any{
				"device_id":    r.DeviceID,
				"day":          snap.Day,
				"observed":     r.ObservedCount,
				"expected":     r.ExpectedCount,
				"completeness": r.CompletenessRatio,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
