package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/noise-cli/internal/model"
)

// HealthSnapshot is the fleet health for one local day.
type HealthSnapshot struct {
	Day         string               `json:"day"`
	Online      int                  `json:"online"`
	Degraded    int                  `json:"degraded"`
	Offline     int                  `json:"offline"`
	Records     []model.HealthRecord `json:"records"`
	CollectedAt time.Time            `json:"collected_at"`
}

// Devices returns the number of classified devices.
func (s *HealthSnapshot) Devices() int {
	return len(s.Records)
}

// HealthReader abstracts the read API health query.
type HealthReader interface {
	Health(ctx context.Context, start, end model.Day, deviceIDs []string) ([]model.HealthRecord, error)
}

// Collector computes yesterday's single-day health for every device.
type Collector struct {
	reader HealthReader
	loc    *time.Location

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCollector creates a collector for the given reporting timezone.
func NewCollector(reader HealthReader, loc *time.Location) *Collector {
	if loc == nil {
		loc = time.UTC
	}
	return &Collector{reader: reader, loc: loc, nowFunc: time.Now}
}

// Collect classifies every device over yesterday in local time.
func (c *Collector) Collect(ctx context.Context) (*HealthSnapshot, error) {
	now := c.nowFunc()
	day := model.DayOf(now, c.loc).AddDays(-1)

	records, err := c.reader.Health(ctx, day, day, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: health for %s", day)
	}

	snap := &HealthSnapshot{
		Day:         day.String(),
		Records:     records,
		CollectedAt: now.UTC(),
	}
	for _, r := range records {
		switch r.Status {
		case model.StatusOnline:
			snap.Online++
		case model.StatusDegraded:
			snap.Degraded++
		case model.StatusOffline:
			snap.Offline++
		}
	}
	return snap, nil
}
