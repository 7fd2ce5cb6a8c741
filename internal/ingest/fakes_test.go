package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/noise-cli/internal/model"
	"github.com/sells-group/noise-cli/internal/sensor"
)

var sgt = time.FixedZone("SGT", 8*3600)

func testDevices(ids ...string) []model.Device {
	out := make([]model.Device, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Device{ID: id, Name: "Device " + id, Timezone: "Asia/Singapore", Location: sgt})
	}
	return out
}

// clientFunc adapts a function to sensor.Client.
type clientFunc func(ctx context.Context, deviceID string, day model.Day) ([]sensor.RawObservation, error)

func (f clientFunc) FetchDay(ctx context.Context, deviceID string, day model.Day) ([]sensor.RawObservation, error) {
	return f(ctx, deviceID, day)
}

// minuteObservations returns n per-minute observations starting at the
// local midnight of day in SGT.
func minuteObservations(day model.Day, n int, value float64) []sensor.RawObservation {
	start, _ := day.Window(sgt)
	out := make([]sensor.RawObservation, 0, n)
	for i := range n {
		out = append(out, sensor.RawObservation{
			DT:      start.Add(time.Duration(i) * time.Minute).Format("2006-01-02T15:04:05.000Z"),
			Reading: json.RawMessage(fmt.Sprintf("%g", value)),
		})
	}
	return out
}

type readingKey struct {
	deviceID string
	instant  time.Time
}

// memStore is an in-memory merge-upsert store.
type memStore struct {
	mu     sync.Mutex
	rows   map[readingKey]model.Reading
	calls  int
	failOn func(call int, rows []model.Reading) error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[readingKey]model.Reading)}
}

func (s *memStore) UpsertReadings(_ context.Context, rows []model.Reading) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failOn != nil {
		if err := s.failOn(s.calls, rows); err != nil {
			return 0, err
		}
	}
	for _, r := range rows {
		s.rows[readingKey{r.DeviceID, r.Instant.UTC()}] = r
	}
	return int64(len(rows)), nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// callLog records fetched device-days.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(deviceID string, day model.Day) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, deviceID+"@"+day.String())
}

func (c *callLog) sorted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.calls...)
	sort.Strings(out)
	return out
}

func (c *callLog) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
