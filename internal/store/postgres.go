package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/noise-cli/internal/db"
	"github.com/sells-group/noise-cli/internal/model"
)

// readingColumns is the COPY column order of the readings table.
var readingColumns = []string{"device_id", "device_name", "value", "instant", "ingested_at"}

// readingKeys is the natural key of a reading.
var readingKeys = []string{"device_id", "instant"}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	opts    Options
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, opts Options, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, opts: opts.withDefaults(), closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close the pool.
func NewPostgresWithPool(pool db.Pool, opts Options) *PostgresStore {
	return &PostgresStore{pool: pool, opts: opts.withDefaults()}
}

func (s *PostgresStore) flatTable() string {
	return strings.ReplaceAll(s.opts.Table, ".", "_")
}

func (s *PostgresStore) tableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	device_id   TEXT NOT NULL,
	device_name TEXT,
	value       DOUBLE PRECISION,
	instant     TIMESTAMPTZ NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT %s UNIQUE (device_id, instant)
);

CREATE INDEX IF NOT EXISTS %s ON %s (instant);`,
		db.SanitizeTable(s.opts.Table),
		pgx.Identifier{s.flatTable() + "_device_instant_key"}.Sanitize(),
		pgx.Identifier{"idx_" + s.flatTable() + "_instant"}.Sanitize(),
		db.SanitizeTable(s.opts.Table),
	)
}

// viewSQL rebuilds the materialized wide view for the registered devices.
// The unique index allows REFRESH ... CONCURRENTLY.
func (s *PostgresStore) viewSQL() string {
	view := db.SanitizeTable(s.opts.View)
	tz := quoteLiteral(s.opts.Location.String())

	cols := pivotSelect(s.opts.deviceIDs(), quoteIdent)
	if cols != "" {
		cols = ",\n\t" + cols
	}

	return fmt.Sprintf(`DROP MATERIALIZED VIEW IF EXISTS %s;

CREATE MATERIALIZED VIEW %s AS
SELECT
	to_char(instant AT TIME ZONE %s, 'YYYY-MM-DD') AS "Date",
	to_char(instant AT TIME ZONE %s, 'HH24:MI:SS') AS "Time"%s
FROM %s
GROUP BY 1, 2;

CREATE UNIQUE INDEX %s ON %s ("Date", "Time");`,
		view,
		view, tz, tz, cols,
		db.SanitizeTable(s.opts.Table),
		pgx.Identifier{"idx_" + strings.ReplaceAll(s.opts.View, ".", "_") + "_date_time"}.Sanitize(), view,
	)
}

// Migrate creates the readings table and rebuilds the wide view.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.tableSQL()); err != nil {
		return eris.Wrap(err, "postgres: migrate table")
	}
	if _, err := s.pool.Exec(ctx, s.viewSQL()); err != nil {
		return eris.Wrap(err, "postgres: migrate view")
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertReadings merges rows via COPY into a temp table and
// INSERT ... ON CONFLICT (device_id, instant) DO UPDATE.
func (s *PostgresStore) UpsertReadings(ctx context.Context, rows []model.Reading) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	data := make([][]any, len(rows))
	for i, r := range rows {
		ingestedAt := r.IngestedAt
		if ingestedAt.IsZero() {
			ingestedAt = time.Now()
		}
		data[i] = []any{r.DeviceID, r.DeviceName, r.Value, r.Instant.UTC(), ingestedAt.UTC()}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        s.opts.Table,
		Columns:      readingColumns,
		ConflictKeys: readingKeys,
	}, data)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert readings")
	}
	return n, nil
}

// RefreshView refreshes the materialized wide view without blocking readers.
func (s *PostgresStore) RefreshView(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", db.SanitizeTable(s.opts.View)))
	return eris.Wrap(err, "postgres: refresh view")
}

func (s *PostgresStore) QueryWide(ctx context.Context, q WideQuery) ([]model.WideRow, error) {
	ids := s.opts.columns(q.DeviceIDs)
	query, args := wideSelect(db.SanitizeTable(s.opts.View), ids, q, quoteIdent, func(n int) string {
		return fmt.Sprintf("$%d", n)
	})

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query wide view")
	}
	defer rows.Close()

	var out []model.WideRow
	for rows.Next() {
		wr, err := scanWideRow(rows, ids)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan wide row")
		}
		out = append(out, wr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate wide rows")
}
