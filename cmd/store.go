package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/noise-cli/internal/registry"
	"github.com/sells-group/noise-cli/internal/store"
)

func initStore(ctx context.Context, reg *registry.DeviceRegistry, loc *time.Location) (store.Store, error) {
	opts := store.Options{
		Table:    cfg.Store.Table,
		View:     cfg.Store.View,
		Location: loc,
		Devices:  reg.All(),
	}

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "noise.db"
		}
		return store.NewSQLite(dsn, opts)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, opts, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
