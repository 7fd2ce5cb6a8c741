package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/noise-cli/internal/model"
)

// fakeReader records the window it was asked for and returns fixed records.
type fakeReader struct {
	records []model.HealthRecord
	err     error

	start, end model.Day
	ids        []string
}

func (f *fakeReader) Health(_ context.Context, start, end model.Day, ids []string) ([]model.HealthRecord, error) {
	f.start, f.end, f.ids = start, end, ids
	return f.records, f.err
}

func sampleRecords() []model.HealthRecord {
	return []model.HealthRecord{
		{DeviceID: "15490", ObservedCount: 1440, ExpectedCount: 1440, CompletenessRatio: 1, Status: model.StatusOnline},
		{DeviceID: "16034", ObservedCount: 720, ExpectedCount: 1440, CompletenessRatio: 0.5, Status: model.StatusDegraded},
		{DeviceID: "16041", ObservedCount: 0, ExpectedCount: 1440, CompletenessRatio: 0, Status: model.StatusOffline},
	}
}

func TestCollector_CollectYesterday(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*3600)
	reader := &fakeReader{records: sampleRecords()}
	c := NewCollector(reader, sgt)
	// 2025-05-08 02:00 UTC is 10:00 local on 2025-05-08.
	c.nowFunc = func() time.Time { return time.Date(2025, 5, 8, 2, 0, 0, 0, time.UTC) }

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	want := model.NewDay(2025, time.May, 7)
	assert.Equal(t, want, reader.start)
	assert.Equal(t, want, reader.end)
	assert.Nil(t, reader.ids)

	assert.Equal(t, "2025-05-07", snap.Day)
	assert.Equal(t, 1, snap.Online)
	assert.Equal(t, 1, snap.Degraded)
	assert.Equal(t, 1, snap.Offline)
	assert.Equal(t, 3, snap.Devices())
}

func TestCollector_LocalMidnightBoundary(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*3600)
	reader := &fakeReader{}
	c := NewCollector(reader, sgt)
	// 15:59 UTC is 23:59 local, still 2025-05-07.
	c.nowFunc = func() time.Time { return time.Date(2025, 5, 7, 15, 59, 0, 0, time.UTC) }

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.NewDay(2025, time.May, 6), reader.start)
}

func TestCollector_NilLocationDefaultsUTC(t *testing.T) {
	c := NewCollector(&fakeReader{}, nil)
	assert.Equal(t, time.UTC, c.loc)
}

func TestCollector_ReaderError(t *testing.T) {
	c := NewCollector(&fakeReader{err: errors.New("db down")}, time.UTC)

	snap, err := c.Collect(context.Background())
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
