package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/noise-cli/internal/model"
	"github.com/sells-group/noise-cli/internal/resilience"
	"github.com/sells-group/noise-cli/internal/sensor"
)

// BuildResult is the outcome of building one device-day.
type BuildResult struct {
	DeviceID string
	Rows     []model.Reading
	// Err is the fetch error, if any. Rows is empty when Err is set.
	Err error
	// ShortCircuited is set when the breaker rejected the fetch without
	// reaching upstream.
	ShortCircuited bool

	Malformed     int
	Future        int
	OutsideWindow int
}

// RowBuilder fetches one device-day from the sensor API and normalizes it.
type RowBuilder struct {
	client      sensor.Client
	normalizer  *TimeNormalizer
	timeout     time.Duration
	concurrency int
}

// BuilderOption configures a RowBuilder.
type BuilderOption func(*RowBuilder)

// WithFetchTimeout bounds each device fetch. Default: 30s.
func WithFetchTimeout(d time.Duration) BuilderOption {
	return func(b *RowBuilder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithConcurrency sets how many devices are fetched in parallel for one day.
func WithConcurrency(n int) BuilderOption {
	return func(b *RowBuilder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithNormalizer replaces the default wall-clock normalizer.
func WithNormalizer(n *TimeNormalizer) BuilderOption {
	return func(b *RowBuilder) {
		b.normalizer = n
	}
}

// NewRowBuilder creates a RowBuilder over the given sensor client.
func NewRowBuilder(client sensor.Client, opts ...BuilderOption) *RowBuilder {
	b := &RowBuilder{
		client:      client,
		normalizer:  NewTimeNormalizer(),
		timeout:     30 * time.Second,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build fetches and normalizes the device's observations for the local day.
// A fetch failure is logged and returned in the result with no rows; it is
// never fatal to the caller.
func (b *RowBuilder) Build(ctx context.Context, d model.Device, day model.Day) BuildResult {
	log := zap.L().With(
		zap.String("component", "ingest.rows"),
		zap.String("device_id", d.ID),
		zap.String("day", day.String()),
	)
	res := BuildResult{DeviceID: d.ID}

	fetchCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	raw, err := b.client.FetchDay(fetchCtx, d.ID, day)
	if err != nil {
		res.Err = err
		res.ShortCircuited = errors.Is(err, resilience.ErrCircuitOpen)
		if res.ShortCircuited {
			log.Debug("fetch skipped, circuit open")
		} else {
			log.Warn("fetch failed", zap.Error(err))
		}
		return res
	}
	if len(raw) == 0 {
		log.Debug("no data returned")
		return res
	}

	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	winStart, winEnd := day.Window(loc)
	ingestedAt := b.normalizer.nowFunc().UTC()

	res.Rows = make([]model.Reading, 0, len(raw))
	for _, obs := range raw {
		instant, value, err := b.normalizer.Normalize(obs)
		switch {
		case errors.Is(err, ErrFutureReading):
			res.Future++
			continue
		case err != nil:
			res.Malformed++
			log.Warn("invalid timestamp", zap.String("dt", obs.DT), zap.Error(err))
			continue
		}
		// Kept regardless: the upsert is keyed on the instant, so an
		// adjacent-day reading lands on the same row either run.
		if instant.Before(winStart) || !instant.Before(winEnd) {
			res.OutsideWindow++
		}
		res.Rows = append(res.Rows, toReading(d, instant, value, ingestedAt))
	}

	if res.Future > 0 {
		log.Debug("dropped future readings", zap.Int("count", res.Future))
	}
	if res.OutsideWindow > 0 {
		log.Debug("readings outside local day window",
			zap.Int("count", res.OutsideWindow),
			zap.Time("window_start", winStart),
			zap.Time("window_end", winEnd),
		)
	}
	log.Debug("built rows", zap.Int("rows", len(res.Rows)))
	return res
}

// DayBuild is the combined result of building one day for every device.
type DayBuild struct {
	Rows          []model.Reading
	PerDevice     map[string]int
	FetchFailures int
	// ShortCircuited counts devices never fetched because the circuit was open.
	ShortCircuited int
}

// BuildDay builds the day for all devices, at most concurrency at a time.
// Per-device failures are counted, never propagated.
func (b *RowBuilder) BuildDay(ctx context.Context, devices []model.Device, day model.Day) DayBuild {
	out := DayBuild{PerDevice: make(map[string]int, len(devices))}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for _, d := range devices {
		g.Go(func() error {
			res := b.Build(ctx, d, day)

			mu.Lock()
			defer mu.Unlock()
			out.PerDevice[d.ID] = len(res.Rows)
			switch {
			case res.ShortCircuited:
				out.ShortCircuited++
			case res.Err != nil:
				out.FetchFailures++
			}
			out.Rows = append(out.Rows, res.Rows...)
			return nil
		})
	}
	_ = g.Wait()

	return out
}
