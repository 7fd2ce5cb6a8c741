package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/noise-cli/internal/config"
	"github.com/sells-group/noise-cli/internal/model"
)

var day1 = model.NewDay(2025, time.May, 5)

// wideRows builds n per-minute rows on day where device id has a value.
func wideRows(day model.Day, id string, n int) []model.WideRow {
	rows := make([]model.WideRow, n)
	for i := range rows {
		v := 50.0
		rows[i] = model.WideRow{
			Date:   day.String(),
			Time:   fmt.Sprintf("%02d:%02d:00", i/60, i%60),
			Values: map[string]*float64{id: &v},
		}
	}
	return rows
}

func TestClassify_SingleDayBoundaries(t *testing.T) {
	tests := []struct {
		observed int
		want     model.HealthStatus
	}{
		{1440, model.StatusOnline},
		{1008, model.StatusOnline},
		{1007, model.StatusDegraded},
		{432, model.StatusDegraded},
		{431, model.StatusOffline},
		{0, model.StatusOffline},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("observed=%d", tt.observed), func(t *testing.T) {
			got := Classify(wideRows(day1, "15490", tt.observed), day1, day1, []string{"15490"}, DefaultThresholds())
			rec := got["15490"]
			assert.Equal(t, tt.want, rec.Status)
			assert.Equal(t, tt.observed, rec.ObservedCount)
			assert.Equal(t, 1440, rec.ExpectedCount)
			assert.InDelta(t, float64(tt.observed)/1440, rec.CompletenessRatio, 1e-12)
			assert.Nil(t, rec.Multi)
		})
	}
}

func TestClassify_NullValuesAreNotObservations(t *testing.T) {
	rows := wideRows(day1, "15490", 1008)
	for i := range 10 {
		rows[i].Values["15490"] = nil
	}
	rec := Classify(rows, day1, day1, []string{"15490"}, DefaultThresholds())["15490"]
	assert.Equal(t, 998, rec.ObservedCount)
	assert.Equal(t, model.StatusDegraded, rec.Status)
}

func TestClassify_MultiDayAggregateAsymmetry(t *testing.T) {
	day2, day3 := day1.AddDays(1), day1.AddDays(2)
	rows := append(wideRows(day1, "15490", 1), wideRows(day3, "15490", 1440)...)

	rec := Classify(rows, day1, day3, []string{"15490"}, DefaultThresholds())["15490"]
	require.NotNil(t, rec.Multi)

	assert.Equal(t, 3, rec.Multi.Days)
	assert.Equal(t, 2, rec.Multi.OnlineDays)
	assert.Equal(t, 1, rec.Multi.OfflineDays)
	assert.Equal(t, []string{day2.String()}, rec.Multi.OfflineDates)
	assert.Equal(t, []string{day1.String()}, rec.Multi.DegradedDates)
	assert.Equal(t, 1441, rec.ObservedCount)
	assert.Equal(t, 4320, rec.ExpectedCount)
	assert.InDelta(t, 0.3336, rec.CompletenessRatio, 1e-4)
	assert.Equal(t, model.StatusOffline, rec.Status)
}

func TestClassify_MultiDayStatuses(t *testing.T) {
	day2 := day1.AddDays(1)
	tests := []struct {
		name   string
		d1, d2 int
		want   model.HealthStatus
	}{
		{"full", 1440, 1440, model.StatusOnline},
		{"exactly online", 1008, 1008, model.StatusOnline},
		{"exactly degraded", 1152, 0, model.StatusDegraded},
		{"just below degraded", 1151, 0, model.StatusOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := append(wideRows(day1, "16034", tt.d1), wideRows(day2, "16034", tt.d2)...)
			rec := Classify(rows, day1, day2, []string{"16034"}, DefaultThresholds())["16034"]
			assert.Equal(t, tt.want, rec.Status)
		})
	}
}

func TestClassify_MissingDayEqualsEmptyDay(t *testing.T) {
	day2 := day1.AddDays(1)
	withEmpty := append(wideRows(day1, "15490", 700), model.WideRow{
		Date:   day2.String(),
		Time:   "00:00:00",
		Values: map[string]*float64{"15490": nil, "16034": nil},
	})
	without := wideRows(day1, "15490", 700)

	a := Classify(withEmpty, day1, day2, []string{"15490"}, DefaultThresholds())
	b := Classify(without, day1, day2, []string{"15490"}, DefaultThresholds())
	assert.Equal(t, a, b)

	single := Classify(nil, day2, day2, []string{"15490"}, DefaultThresholds())["15490"]
	assert.Equal(t, model.StatusOffline, single.Status)
	assert.Equal(t, 0, single.ObservedCount)
}

func TestClassify_IgnoresRowsOutsideWindow(t *testing.T) {
	rows := append(wideRows(day1.AddDays(-1), "15490", 1440), wideRows(day1, "15490", 100)...)
	rows = append(rows, model.WideRow{Date: "garbage", Values: map[string]*float64{}})

	rec := Classify(rows, day1, day1, []string{"15490"}, DefaultThresholds())["15490"]
	assert.Equal(t, 100, rec.ObservedCount)
}

func TestClassify_DeviceWithoutColumn(t *testing.T) {
	got := Classify(wideRows(day1, "15490", 1440), day1, day1, []string{"15490", "16041"}, DefaultThresholds())
	require.Len(t, got, 2)
	assert.Equal(t, model.StatusOnline, got["15490"].Status)
	assert.Equal(t, model.StatusOffline, got["16041"].Status)
}

func TestClassify_ReversedBounds(t *testing.T) {
	day2 := day1.AddDays(1)
	rec := Classify(wideRows(day1, "15490", 1440), day2, day1, []string{"15490"}, DefaultThresholds())["15490"]
	require.NotNil(t, rec.Multi)
	assert.Equal(t, 2, rec.Multi.Days)
}

func TestOrdered(t *testing.T) {
	recs := map[string]model.HealthRecord{
		"a": {DeviceID: "a"},
		"b": {DeviceID: "b"},
	}
	got := Ordered(recs, []string{"b", "x", "a"})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].DeviceID)
	assert.Equal(t, "a", got[1].DeviceID)
}

func TestFromConfig(t *testing.T) {
	th := FromConfig(config.HealthConfig{
		ReadingsPerDay:           720,
		SingleDegradedThreshold:  0.8,
		SingleOfflineThreshold:   0.2,
		OverallOnlineThreshold:   0.6,
		OverallDegradedThreshold: 0.3,
	})
	assert.Equal(t, Thresholds{ReadingsPerDay: 720, SingleDegraded: 0.8, SingleOffline: 0.2, OverallOnline: 0.6, OverallDegraded: 0.3}, th)
}
