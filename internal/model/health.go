package model

// HealthStatus is the derived operational state of a device over a window.
type HealthStatus string

const (
	StatusOnline   HealthStatus = "ONLINE"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusOffline  HealthStatus = "OFFLINE"
)

// HealthRecord is computed on demand from stored readings and never persisted.
// Multi is set only for windows spanning more than one day.
type HealthRecord struct {
	DeviceID          string       `json:"device_id"`
	ObservedCount     int          `json:"observed_count"`
	ExpectedCount     int          `json:"expected_count"`
	CompletenessRatio float64      `json:"completeness_ratio"`
	Status            HealthStatus `json:"status"`
	Multi             *MultiDay    `json:"multi_day,omitempty"`
}

// MultiDay carries the per-day diagnostics of a multi-day HealthRecord.
// None of these fields gate Status.
type MultiDay struct {
	Days          int      `json:"days"`
	OnlineDays    int      `json:"online_days"`
	OfflineDays   int      `json:"offline_days"`
	OfflineDates  []string `json:"offline_dates"`
	DegradedDates []string `json:"degraded_dates"`
}
