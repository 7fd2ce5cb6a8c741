package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sells-group/noise-cli/internal/model"
)

// Default object names.
const (
	DefaultTable = "meter_readings"
	DefaultView  = "wide_view_mv"
)

// WideQuery selects rows from the wide view. Start and End are inclusive
// local dates. A zero Limit returns every matching row.
type WideQuery struct {
	Start      model.Day
	End        model.Day
	Offset     int
	Limit      int
	Descending bool
	// DeviceIDs restricts the value columns. Empty means every registered device.
	DeviceIDs []string
}

// Store is the persistence contract for noise readings.
type Store interface {
	// UpsertReadings merges rows keyed on (device_id, instant) and returns the
	// number of rows inserted or updated.
	UpsertReadings(ctx context.Context, rows []model.Reading) (int64, error)
	// QueryWide returns pivoted rows ordered by (Date, Time).
	QueryWide(ctx context.Context, q WideQuery) ([]model.WideRow, error)
	// RefreshView brings the wide view up to date with the readings table.
	RefreshView(ctx context.Context) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Options names the tables and the device columns of a store.
type Options struct {
	Table    string
	View     string
	Location *time.Location
	Devices  []model.Device
}

func (o Options) withDefaults() Options {
	if o.Table == "" {
		o.Table = DefaultTable
	}
	if o.View == "" {
		o.View = DefaultView
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

func (o Options) deviceIDs() []string {
	ids := make([]string, len(o.Devices))
	for i, d := range o.Devices {
		ids[i] = d.ID
	}
	return ids
}

// columns returns the registered device ids requested by q, in registration
// order. Unknown ids are ignored since the view has no column for them.
func (o Options) columns(want []string) []string {
	all := o.deviceIDs()
	if len(want) == 0 {
		return all
	}
	out := make([]string, 0, len(want))
	for _, id := range all {
		if slices.Contains(want, id) {
			out = append(out, id)
		}
	}
	return out
}

// pivotSelect builds the MAX(CASE ...) column list of the wide view.
func pivotSelect(ids []string, quoteIdent func(string) string) string {
	cols := make([]string, len(ids))
	for i, id := range ids {
		cols[i] = fmt.Sprintf("MAX(CASE WHEN device_id = %s THEN value END) AS %s", quoteLiteral(id), quoteIdent(id))
	}
	return strings.Join(cols, ",\n\t")
}

// wideSelect builds the range query over the view. Placeholders are produced
// by ph(n) for the nth bind argument.
func wideSelect(view string, ids []string, q WideQuery, quoteIdent func(string) string, ph func(int) string) (string, []any) {
	cols := []string{quoteIdent("Date"), quoteIdent("Time")}
	for _, id := range ids {
		cols = append(cols, quoteIdent(id))
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s >= %s AND %s <= %s ORDER BY %s %s, %s %s",
		strings.Join(cols, ", "), view,
		quoteIdent("Date"), ph(1), quoteIdent("Date"), ph(2),
		quoteIdent("Date"), dir, quoteIdent("Time"), dir,
	)
	args := []any{q.Start.String(), q.End.String()}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s OFFSET %s", ph(3), ph(4))
		args = append(args, q.Limit, max(q.Offset, 0))
	}
	return b.String(), args
}

type scannable interface {
	Scan(dest ...any) error
}

func scanWideRow(row scannable, ids []string) (model.WideRow, error) {
	var wr model.WideRow
	values := make([]*float64, len(ids))
	dest := make([]any, 0, len(ids)+2)
	dest = append(dest, &wr.Date, &wr.Time)
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := row.Scan(dest...); err != nil {
		return wr, err
	}
	wr.Values = make(map[string]*float64, len(ids))
	for i, id := range ids {
		wr.Values[id] = values[i]
	}
	return wr, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
