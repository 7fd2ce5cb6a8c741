package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/noise-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, testOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func reading(id string, instant time.Time, v *float64) model.Reading {
	return model.Reading{DeviceID: id, DeviceName: "dev " + id, Value: v, Instant: instant, IngestedAt: instant.Add(time.Hour)}
}

func ptr(v float64) *float64 { return &v }

func TestSQLite_UpsertMergesOnKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	instant := time.Date(2025, 5, 6, 16, 0, 0, 0, time.UTC)

	n, err := st.UpsertReadings(ctx, []model.Reading{reading("15490", instant, ptr(50))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = st.UpsertReadings(ctx, []model.Reading{reading("15490", instant, ptr(60))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := st.CountReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rows, err := st.QueryWide(ctx, WideQuery{Start: model.NewDay(2025, time.May, 7), End: model.NewDay(2025, time.May, 7)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Values["15490"])
	assert.Equal(t, 60.0, *rows[0].Values["15490"])
}

func TestSQLite_UpsertDuplicateKeysInOneBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	instant := time.Date(2025, 5, 6, 16, 0, 0, 0, time.UTC)

	_, err := st.UpsertReadings(ctx, []model.Reading{
		reading("15490", instant, ptr(50)),
		reading("15490", instant, ptr(70)),
	})
	require.NoError(t, err)

	count, err := st.CountReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLite_NullValueIsStoredAsAbsent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	instant := time.Date(2025, 5, 6, 16, 5, 0, 0, time.UTC)

	_, err := st.UpsertReadings(ctx, []model.Reading{
		reading("15490", instant, nil),
		reading("16034", instant, ptr(0)),
	})
	require.NoError(t, err)

	rows, err := st.QueryWide(ctx, WideQuery{Start: model.NewDay(2025, time.May, 7), End: model.NewDay(2025, time.May, 7)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Values["15490"])
	require.NotNil(t, rows[0].Values["16034"])
	assert.Equal(t, 0.0, *rows[0].Values["16034"])
}

func TestSQLite_WideViewUsesLocalDay(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// 15:59Z is still May 6 in Singapore; 16:00Z is May 7 00:00.
	_, err := st.UpsertReadings(ctx, []model.Reading{
		reading("15490", time.Date(2025, 5, 6, 15, 59, 0, 0, time.UTC), ptr(1)),
		reading("15490", time.Date(2025, 5, 6, 16, 0, 0, 0, time.UTC), ptr(2)),
		reading("16034", time.Date(2025, 5, 6, 16, 0, 0, 0, time.UTC), ptr(3)),
	})
	require.NoError(t, err)

	rows, err := st.QueryWide(ctx, WideQuery{Start: model.NewDay(2025, time.May, 6), End: model.NewDay(2025, time.May, 7)})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "2025-05-06", rows[0].Date)
	assert.Equal(t, "23:59:00", rows[0].Time)
	assert.Equal(t, "2025-05-07", rows[1].Date)
	assert.Equal(t, "00:00:00", rows[1].Time)
	assert.Equal(t, 2.0, *rows[1].Values["15490"])
	assert.Equal(t, 3.0, *rows[1].Values["16034"])
}

func TestSQLite_QueryWidePagination(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 6, 16, 0, 0, 0, time.UTC)

	var batch []model.Reading
	for i := range 10 {
		batch = append(batch, reading("15490", base.Add(time.Duration(i)*time.Minute), ptr(float64(i))))
	}
	_, err := st.UpsertReadings(ctx, batch)
	require.NoError(t, err)

	day := model.NewDay(2025, time.May, 7)
	page, err := st.QueryWide(ctx, WideQuery{Start: day, End: day, Offset: 4, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "00:04:00", page[0].Time)
	assert.Equal(t, "00:06:00", page[2].Time)

	desc, err := st.QueryWide(ctx, WideQuery{Start: day, End: day, Limit: 2, Descending: true})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, "00:09:00", desc[0].Time)

	subset, err := st.QueryWide(ctx, WideQuery{Start: day, End: day, Limit: 1, DeviceIDs: []string{"16034"}})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	_, has := subset[0].Values["15490"]
	assert.False(t, has)
	assert.Contains(t, subset[0].Values, "16034")

	none, err := st.QueryWide(ctx, WideQuery{Start: day.AddDays(1), End: day.AddDays(3)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_MigrateIsRepeatable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.RefreshView(ctx))
	require.NoError(t, st.Ping(ctx))
}

func TestColumns(t *testing.T) {
	opts := testOptions(t)
	assert.Equal(t, []string{"15490", "16034"}, opts.columns(nil))
	assert.Equal(t, []string{"15490", "16034"}, opts.columns([]string{"16034", "15490"}))
	assert.Equal(t, []string{"16034"}, opts.columns([]string{"16034", "unknown"}))
	assert.Empty(t, opts.columns([]string{"unknown"}))
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
