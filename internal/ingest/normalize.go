// Package ingest turns upstream sensor observations into stored readings:
// timestamp normalization, per-device row building, chunked upserts and the
// backward day walker that drives them.
package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/noise-cli/internal/model"
	"github.com/sells-group/noise-cli/internal/sensor"
)

// MaxClockSkew is how far ahead of now an observation may be stamped.
const MaxClockSkew = time.Hour

var (
	// ErrMalformedTimestamp marks an observation whose dt could not be parsed.
	ErrMalformedTimestamp = eris.New("ingest: malformed timestamp")
	// ErrFutureReading marks an observation stamped more than MaxClockSkew ahead of now.
	ErrFutureReading = eris.New("ingest: reading is in the future")
)

// Layouts tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// TimeNormalizer converts raw observations to canonical UTC instants.
type TimeNormalizer struct {
	nowFunc func() time.Time
}

// NewTimeNormalizer returns a normalizer that uses the wall clock.
func NewTimeNormalizer() *TimeNormalizer {
	return &TimeNormalizer{nowFunc: time.Now}
}

// Normalize parses the observation timestamp and reading. It returns
// ErrMalformedTimestamp or ErrFutureReading when the observation must be
// dropped. An unusable reading yields a nil value, never an error.
func (n *TimeNormalizer) Normalize(obs sensor.RawObservation) (time.Time, *float64, error) {
	instant, err := ParseTimestamp(obs.DT)
	if err != nil {
		return time.Time{}, nil, err
	}
	if instant.After(n.nowFunc().Add(MaxClockSkew)) {
		return time.Time{}, nil, eris.Wrapf(ErrFutureReading, "dt %s", obs.DT)
	}
	return instant, ParseReading(obs.Reading), nil
}

// ParseTimestamp parses a vendor timestamp such as 2025-05-06T23:00:00.000Z.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.Wrap(ErrMalformedTimestamp, "empty dt")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrMalformedTimestamp, "dt %q", s)
}

// ParseReading returns the numeric reading, or nil when it is null, missing
// or not a finite number. Numeric strings are accepted.
func ParseReading(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// toReading builds the persisted unit for one normalized observation.
func toReading(d model.Device, instant time.Time, value *float64, ingestedAt time.Time) model.Reading {
	return model.Reading{
		DeviceID:   d.ID,
		DeviceName: d.Name,
		Value:      value,
		Instant:    instant,
		IngestedAt: ingestedAt,
	}
}
