// Package health derives ONLINE/DEGRADED/OFFLINE status from stored
// per-minute readings.
//
// A single-day window is judged on that day's completeness alone. A
// multi-day window records which days had any data, but its status follows
// the aggregate completeness over the whole window, so a few sparse days
// cannot hide systemic data loss.
package health

import (
	"github.com/sells-group/noise-cli/internal/config"
	"github.com/sells-group/noise-cli/internal/model"
)

// Thresholds are the completeness cut-offs. A ratio at or above a
// threshold qualifies for the better status.
type Thresholds struct {
	// ReadingsPerDay is the expected per-minute sample count of a full day.
	ReadingsPerDay int
	// SingleDegraded is the single-day ratio needed for ONLINE.
	SingleDegraded float64
	// SingleOffline is the single-day ratio needed for DEGRADED.
	SingleOffline float64
	// OverallOnline is the multi-day aggregate ratio needed for ONLINE.
	OverallOnline float64
	// OverallDegraded is the multi-day aggregate ratio needed for DEGRADED.
	OverallDegraded float64
}

// Default threshold values.
const (
	DefaultReadingsPerDay  = 1440
	DefaultSingleDegraded  = 0.70
	DefaultSingleOffline   = 0.30
	DefaultOverallOnline   = 0.70
	DefaultOverallDegraded = 0.40
)

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReadingsPerDay:  DefaultReadingsPerDay,
		SingleDegraded:  DefaultSingleDegraded,
		SingleOffline:   DefaultSingleOffline,
		OverallOnline:   DefaultOverallOnline,
		OverallDegraded: DefaultOverallDegraded,
	}
}

// FromConfig converts the health config section.
func FromConfig(cfg config.HealthConfig) Thresholds {
	return Thresholds{
		ReadingsPerDay:  cfg.ReadingsPerDay,
		SingleDegraded:  cfg.SingleDegradedThreshold,
		SingleOffline:   cfg.SingleOfflineThreshold,
		OverallOnline:   cfg.OverallOnlineThreshold,
		OverallDegraded: cfg.OverallDegradedThreshold,
	}
}

func (t Thresholds) single(ratio float64) model.HealthStatus {
	switch {
	case ratio >= t.SingleDegraded:
		return model.StatusOnline
	case ratio >= t.SingleOffline:
		return model.StatusDegraded
	default:
		return model.StatusOffline
	}
}

func (t Thresholds) overall(ratio float64) model.HealthStatus {
	switch {
	case ratio >= t.OverallOnline:
		return model.StatusOnline
	case ratio >= t.OverallDegraded:
		return model.StatusDegraded
	default:
		return model.StatusOffline
	}
}

// Classify computes a HealthRecord per device for the inclusive local-date
// window [start, end]. start == end selects single-day mode. Rows outside
// the window or with an unparseable Date are ignored; a day missing from
// rows counts exactly like a day with no observations. Reversed bounds are
// swapped.
func Classify(rows []model.WideRow, start, end model.Day, deviceIDs []string, th Thresholds) map[string]model.HealthRecord {
	if end.Before(start) {
		start, end = end, start
	}
	if th.ReadingsPerDay <= 0 {
		th.ReadingsPerDay = DefaultReadingsPerDay
	}

	counts := countByDay(rows, start, end, deviceIDs)
	days := model.DaysInRange(start, end)

	out := make(map[string]model.HealthRecord, len(deviceIDs))
	for _, id := range deviceIDs {
		if start == end {
			out[id] = classifySingle(id, counts[id][start], th)
		} else {
			out[id] = classifyMulti(id, counts[id], days, th)
		}
	}
	return out
}

// Ordered returns the records in deviceIDs order, skipping unknown ids.
func Ordered(records map[string]model.HealthRecord, deviceIDs []string) []model.HealthRecord {
	out := make([]model.HealthRecord, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		if rec, ok := records[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func classifySingle(id string, observed int, th Thresholds) model.HealthRecord {
	ratio := float64(observed) / float64(th.ReadingsPerDay)
	return model.HealthRecord{
		DeviceID:          id,
		ObservedCount:     observed,
		ExpectedCount:     th.ReadingsPerDay,
		CompletenessRatio: ratio,
		Status:            th.single(ratio),
	}
}

func classifyMulti(id string, perDay map[model.Day]int, days []model.Day, th Thresholds) model.HealthRecord {
	md := &model.MultiDay{
		Days:          len(days),
		OfflineDates:  []string{},
		DegradedDates: []string{},
	}

	observed := 0
	for _, d := range days {
		n := perDay[d]
		observed += n
		if n == 0 {
			md.OfflineDays++
			md.OfflineDates = append(md.OfflineDates, d.String())
			continue
		}
		md.OnlineDays++
		if float64(n)/float64(th.ReadingsPerDay) < th.SingleDegraded {
			md.DegradedDates = append(md.DegradedDates, d.String())
		}
	}

	expected := th.ReadingsPerDay * len(days)
	ratio := float64(observed) / float64(expected)
	return model.HealthRecord{
		DeviceID:          id,
		ObservedCount:     observed,
		ExpectedCount:     expected,
		CompletenessRatio: ratio,
		Status:            th.overall(ratio),
		Multi:             md,
	}
}

// countByDay counts non-null values per device per local day.
func countByDay(rows []model.WideRow, start, end model.Day, deviceIDs []string) map[string]map[model.Day]int {
	counts := make(map[string]map[model.Day]int, len(deviceIDs))
	for _, id := range deviceIDs {
		counts[id] = make(map[model.Day]int)
	}

	for _, row := range rows {
		day, err := model.ParseDay(row.Date)
		if err != nil || day.Before(start) || day.After(end) {
			continue
		}
		for _, id := range deviceIDs {
			if v, ok := row.Values[id]; ok && v != nil {
				counts[id][day]++
			}
		}
	}
	return counts
}
