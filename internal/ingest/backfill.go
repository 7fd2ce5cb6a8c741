package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/model"
)

// State is the backfill walker state.
type State string

// Walker states. Every state except StateRunning is terminal.
const (
	StateRunning            State = "RUNNING"
	StateStoppedEmptyStreak State = "STOPPED_EMPTY_STREAK"
	StateStoppedHorizon     State = "STOPPED_HORIZON"
	StateComplete           State = "COMPLETE"
)

// Terminal reports whether the walker has stopped.
func (s State) Terminal() bool {
	return s != StateRunning
}

// WalkerConfig holds the stop conditions of a backfill run.
type WalkerConfig struct {
	// EmptyDaysToStop is the consecutive-empty-day threshold. Minimum 1.
	EmptyDaysToStop int
	// MaxYears bounds how far back from yesterday the walk may go. 0 disables it.
	MaxYears int
	// Earliest is the lowest day processed. The zero Day disables the bound.
	Earliest model.Day
	// Location is the reporting timezone that defines "yesterday".
	Location *time.Location
	// ProgressEvery logs a progress line every N days. 0 disables it.
	ProgressEvery int
	// CircuitWait is how long to pause before replaying a day on which the
	// sensor circuit breaker rejected fetches. Set it to the breaker's reset
	// timeout.
	CircuitWait time.Duration
	// CircuitRetries bounds the replays of one day. 0 records the day as is.
	CircuitRetries int
}

// DayResult records the outcome of one day iteration.
type DayResult struct {
	Day           model.Day
	Rows          int
	Affected      int64
	FetchFailures int
	FailedChunks  int
	// ShortCircuited is the number of devices the breaker kept from fetching.
	ShortCircuited int
	// PerDevice is the number of built rows per device id.
	PerDevice map[string]int
}

// BackfillRun is the in-memory state and statistics of one run.
type BackfillRun struct {
	ID          string
	State       State
	From        model.Day
	Current     model.Day
	Horizon     model.Day
	EmptyStreak int

	DaysProcessed int
	DaysWithData  int
	EmptyDays     int
	// RejectedDays counts days whose built rows were all rejected by the store.
	RejectedDays  int
	FetchFailures int
	FailedChunks  int
	TotalAffected int64
	Days          []DayResult
	// CircuitReplays counts days run again because the breaker was open.
	CircuitReplays int

	StartedAt  time.Time
	FinishedAt time.Time
}

// SuccessRate is the share of processed days that had data.
func (r *BackfillRun) SuccessRate() float64 {
	if r.DaysProcessed == 0 {
		return 0
	}
	return float64(r.DaysWithData) / float64(r.DaysProcessed)
}

// Walker walks local calendar days backwards from yesterday, building and
// upserting every device's readings for each day.
type Walker struct {
	devices []model.Device
	builder *RowBuilder
	writer  *UpsertWriter
	cfg     WalkerConfig

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewWalker creates a backfill walker.
func NewWalker(devices []model.Device, builder *RowBuilder, writer *UpsertWriter, cfg WalkerConfig) *Walker {
	if cfg.EmptyDaysToStop < 1 {
		cfg.EmptyDaysToStop = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Walker{
		devices: devices,
		builder: builder,
		writer:  writer,
		cfg:     cfg,
		nowFunc: time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Yesterday returns the calendar day before now in loc.
func Yesterday(now time.Time, loc *time.Location) model.Day {
	return model.DayOf(now, loc).AddDays(-1)
}

// horizon is the oldest day the walk may reach, or the zero Day if unbounded.
func horizon(from model.Day, maxYears int) model.Day {
	if maxYears <= 0 {
		return model.Day{}
	}
	return model.NewDay(from.Year-maxYears, from.Month, from.Day)
}

// RunDay builds and upserts one day for every device.
func (w *Walker) RunDay(ctx context.Context, day model.Day) DayResult {
	built := w.builder.BuildDay(ctx, w.devices, day)
	written := w.writer.Write(ctx, built.Rows)

	return DayResult{
		Day:            day,
		Rows:           len(built.Rows),
		Affected:       written.Affected,
		FetchFailures:  built.FetchFailures,
		FailedChunks:   written.FailedChunks,
		ShortCircuited: built.ShortCircuited,
		PerDevice:      built.PerDevice,
	}
}

// Run walks backwards from yesterday until a stop condition. It returns the
// run with its final state. A cancelled context ends the run early with the
// context error; days already upserted stay intact.
func (w *Walker) Run(ctx context.Context) (*BackfillRun, error) {
	from := Yesterday(w.nowFunc(), w.cfg.Location)
	run := &BackfillRun{
		ID:        uuid.New().String(),
		State:     StateRunning,
		From:      from,
		Current:   from,
		Horizon:   horizon(from, w.cfg.MaxYears),
		StartedAt: w.nowFunc(),
	}

	log := zap.L().With(zap.String("component", "ingest.backfill"), zap.String("run_id", run.ID))
	log.Info("backfill starting",
		zap.String("from", from.String()),
		zap.String("earliest", w.cfg.Earliest.String()),
		zap.String("horizon", run.Horizon.String()),
		zap.Int("devices", len(w.devices)),
		zap.Int("empty_days_to_stop", w.cfg.EmptyDaysToStop),
	)

	replays := 0
	for !run.State.Terminal() {
		if err := ctx.Err(); err != nil {
			run.FinishedAt = w.nowFunc()
			log.Warn("backfill interrupted", zap.String("day", run.Current.String()), zap.Error(err))
			return run, err
		}

		if !w.cfg.Earliest.IsZero() && run.Current.Before(w.cfg.Earliest) {
			run.State = StateComplete
			break
		}

		dr := w.RunDay(ctx, run.Current)
		if ctx.Err() != nil {
			// The day was cut short; it says nothing about data availability.
			continue
		}
		// Devices skipped by an open breaker were never asked for data, so
		// the day is replayed once the breaker may let requests through.
		if dr.ShortCircuited > 0 && replays < w.cfg.CircuitRetries {
			replays++
			run.CircuitReplays++
			log.Warn("sensor circuit open, replaying day",
				zap.String("day", dr.Day.String()),
				zap.Int("short_circuited", dr.ShortCircuited),
				zap.Int("replay", replays),
				zap.Duration("wait", w.cfg.CircuitWait),
			)
			_ = w.sleep(ctx, w.cfg.CircuitWait)
			continue
		}
		replays = 0
		w.record(run, dr, log)

		switch {
		case run.EmptyStreak >= w.cfg.EmptyDaysToStop:
			run.State = StateStoppedEmptyStreak
		case !run.Horizon.IsZero() && !run.Current.After(run.Horizon):
			run.State = StateStoppedHorizon
		default:
			run.Current = run.Current.AddDays(-1)
		}

		if w.cfg.ProgressEvery > 0 && run.DaysProcessed%w.cfg.ProgressEvery == 0 {
			log.Info("backfill progress",
				zap.Int("days_processed", run.DaysProcessed),
				zap.Int("days_with_data", run.DaysWithData),
				zap.Int64("total_rows", run.TotalAffected),
				zap.Float64("success_rate", run.SuccessRate()),
			)
		}
	}

	run.FinishedAt = w.nowFunc()
	log.Info("backfill finished",
		zap.String("state", string(run.State)),
		zap.String("stopped_at", run.Current.String()),
		zap.Int("days_processed", run.DaysProcessed),
		zap.Int("days_with_data", run.DaysWithData),
		zap.Int("empty_days", run.EmptyDays),
		zap.Int("rejected_days", run.RejectedDays),
		zap.Int("fetch_failures", run.FetchFailures),
		zap.Int("failed_chunks", run.FailedChunks),
		zap.Int("circuit_replays", run.CircuitReplays),
		zap.Int64("total_rows", run.TotalAffected),
		zap.Float64("success_rate", run.SuccessRate()),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

func (w *Walker) record(run *BackfillRun, dr DayResult, log *zap.Logger) {
	run.DaysProcessed++
	run.Days = append(run.Days, dr)
	run.FetchFailures += dr.FetchFailures
	run.FailedChunks += dr.FailedChunks
	run.TotalAffected += dr.Affected

	dayLog := log.With(zap.String("day", dr.Day.String()), zap.Int("day_index", run.DaysProcessed))

	if dr.Affected == 0 {
		run.EmptyStreak++
		run.EmptyDays++
		if dr.Rows > 0 {
			run.RejectedDays++
			dayLog.Error("store rejected every row for day",
				zap.Int("rows", dr.Rows),
				zap.Int("failed_chunks", dr.FailedChunks),
			)
		}
		dayLog.Warn("no data",
			zap.Int("empty_streak", run.EmptyStreak),
			zap.Int("empty_days_to_stop", w.cfg.EmptyDaysToStop),
			zap.Int("fetch_failures", dr.FetchFailures),
			zap.Int("short_circuited", dr.ShortCircuited),
		)
		return
	}

	run.EmptyStreak = 0
	run.DaysWithData++
	dayLog.Info("day upserted",
		zap.Int64("affected", dr.Affected),
		zap.Int("rows", dr.Rows),
		zap.Int("fetch_failures", dr.FetchFailures),
		zap.Int("failed_chunks", dr.FailedChunks),
	)
}
