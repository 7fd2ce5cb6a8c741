package model

import "time"

// Device is a fixed remote noise sensor.
type Device struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Timezone string         `json:"timezone" yaml:"timezone"`
	Location *time.Location `json:"-" yaml:"-"`
}

// Reading is one persisted per-minute observation. (DeviceID, Instant) is
// the natural key; a later write with the same key replaces Value.
type Reading struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Value      *float64  `json:"value"`
	Instant    time.Time `json:"instant"`
	IngestedAt time.Time `json:"ingested_at"`
}

// WideRow is one row of the pivoted read view: a local date and time with
// one value per device id. A missing or nil entry means no observation.
type WideRow struct {
	Date   string              `json:"Date"`
	Time   string              `json:"Time"`
	Values map[string]*float64 `json:"values"`
}
