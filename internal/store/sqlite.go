package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/noise-cli/internal/model"
)

// sqliteTimeLayout stores instants as sortable UTC text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store using modernc.org/sqlite. The wide view is a
// plain view, so RefreshView is a no-op.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, opts: opts.withDefaults()}, nil
}

// zoneModifier is the date() modifier shifting UTC to the reporting
// timezone. SQLite has no zone database, so the current offset is used.
func (s *SQLiteStore) zoneModifier() string {
	_, offset := time.Now().In(s.opts.Location).Zone()
	return fmt.Sprintf("%+d seconds", offset)
}

func (s *SQLiteStore) migrationSQL() string {
	table := quoteIdent(s.opts.Table)
	view := quoteIdent(s.opts.View)
	mod := quoteLiteral(s.zoneModifier())

	cols := pivotSelect(s.opts.deviceIDs(), quoteIdent)
	if cols != "" {
		cols = ",\n\t" + cols
	}

	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	device_id   TEXT NOT NULL,
	device_name TEXT,
	value       REAL,
	instant     TEXT NOT NULL,
	ingested_at TEXT NOT NULL,
	UNIQUE (device_id, instant)
);

CREATE INDEX IF NOT EXISTS %s ON %s (instant);

DROP VIEW IF EXISTS %s;

CREATE VIEW %s AS
SELECT
	date(instant, %s) AS "Date",
	time(instant, %s) AS "Time"%s
FROM %s
GROUP BY 1, 2;
`,
		table,
		quoteIdent("idx_"+s.opts.Table+"_instant"), table,
		view,
		view, mod, mod, cols, table,
	)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.migrationSQL())
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RefreshView is a no-op: the SQLite wide view is not materialized.
func (s *SQLiteStore) RefreshView(context.Context) error {
	return nil
}

func (s *SQLiteStore) UpsertReadings(ctx context.Context, rows []model.Reading) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (device_id, device_name, value, instant, ingested_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (device_id, instant) DO UPDATE SET
		 device_name = excluded.device_name, value = excluded.value, ingested_at = excluded.ingested_at`,
		quoteIdent(s.opts.Table),
	))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var affected int64
	for _, r := range rows {
		ingestedAt := r.IngestedAt
		if ingestedAt.IsZero() {
			ingestedAt = time.Now()
		}
		res, err := stmt.ExecContext(ctx,
			r.DeviceID, r.DeviceName, r.Value,
			r.Instant.UTC().Format(sqliteTimeLayout),
			ingestedAt.UTC().Format(sqliteTimeLayout),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert reading %s@%s", r.DeviceID, r.Instant.UTC().Format(time.RFC3339))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return affected, nil
}

func (s *SQLiteStore) QueryWide(ctx context.Context, q WideQuery) ([]model.WideRow, error) {
	ids := s.opts.columns(q.DeviceIDs)
	query, args := wideSelect(quoteIdent(s.opts.View), ids, q, quoteIdent, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query wide view")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.WideRow
	for rows.Next() {
		wr, err := scanWideRow(rows, ids)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan wide row")
		}
		out = append(out, wr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate wide rows")
}

// CountReadings returns the number of stored readings.
func (s *SQLiteStore) CountReadings(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(s.opts.Table))).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count readings")
}
