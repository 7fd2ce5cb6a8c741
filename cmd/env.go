package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/noise-cli/internal/fetcher"
	"github.com/sells-group/noise-cli/internal/health"
	"github.com/sells-group/noise-cli/internal/ingest"
	"github.com/sells-group/noise-cli/internal/readapi"
	"github.com/sells-group/noise-cli/internal/registry"
	"github.com/sells-group/noise-cli/internal/resilience"
	"github.com/sells-group/noise-cli/internal/sensor"
	"github.com/sells-group/noise-cli/internal/store"
)

const userAgent = "noise-cli/1.0"

// appEnv bundles the components shared by every command.
type appEnv struct {
	Registry *registry.DeviceRegistry
	Location *time.Location
	Store    store.Store
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode and opens the registry and store.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	loc, err := cfg.Backfill.Location()
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.Devices.File, cfg.Backfill.Timezone)
	if err != nil {
		return nil, eris.Wrap(err, "load device registry")
	}

	st, err := initStore(ctx, reg, loc)
	if err != nil {
		return nil, err
	}

	return &appEnv{Registry: reg, Location: loc, Store: st}, nil
}

// newWalker wires fetcher, breaker, sensor client, row builder and writer.
func (e *appEnv) newWalker() (*ingest.Walker, error) {
	earliest, err := cfg.Backfill.Earliest()
	if err != nil {
		return nil, eris.Wrap(err, "backfill earliest date")
	}

	timeout := time.Duration(cfg.Sensor.TimeoutSecs) * time.Second
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  userAgent,
		Timeout:    timeout,
		MaxRetries: cfg.Sensor.MaxRetries,
		RatePerSec: cfg.Sensor.RatePerSec,
	})
	breakerCfg := resilience.SensorBreakerConfig(cfg.Sensor)
	cb := resilience.NewCircuitBreaker(breakerCfg)
	client := sensor.NewClient(cfg.Sensor.BaseURL, f, sensor.WithBreaker(cb))

	builder := ingest.NewRowBuilder(client,
		ingest.WithFetchTimeout(timeout),
		ingest.WithConcurrency(cfg.Sensor.Concurrency),
	)
	writer := ingest.NewUpsertWriter(e.Store, cfg.Backfill.ChunkSize)

	return ingest.NewWalker(e.Registry.All(), builder, writer, ingest.WalkerConfig{
		EmptyDaysToStop: cfg.Backfill.EmptyDaysToStop,
		MaxYears:        cfg.Backfill.MaxYears,
		Earliest:        earliest,
		Location:        e.Location,
		ProgressEvery:   cfg.Backfill.ProgressEvery,
		CircuitWait:     breakerCfg.ResetTimeout,
		CircuitRetries:  cfg.Backfill.CircuitRetries,
	}), nil
}

// newReadAPI builds the read surface over the store.
func (e *appEnv) newReadAPI() *readapi.API {
	return readapi.New(e.Store, e.Registry, health.FromConfig(cfg.Health), cfg.Server.PageSize)
}
