// Package readapi is the read surface used by the dashboard: paginated wide
// rows, unbounded range reads and per-device health.
package readapi

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/noise-cli/internal/health"
	"github.com/sells-group/noise-cli/internal/model"
	"github.com/sells-group/noise-cli/internal/registry"
	"github.com/sells-group/noise-cli/internal/store"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 200

// ErrInvalidPage is returned for a negative page number.
var ErrInvalidPage = eris.New("readapi: page must be >= 0")

// ErrInvalidOrder is returned by ParseOrder for anything but asc or desc.
var ErrInvalidOrder = eris.New("readapi: order must be asc or desc")

// Order is the (Date, Time) sort direction of a page.
type Order string

// Page orders.
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder parses asc or desc, case-insensitively. Empty means OrderAsc.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OrderAsc):
		return OrderAsc, nil
	case string(OrderDesc):
		return OrderDesc, nil
	}
	return "", eris.Wrapf(ErrInvalidOrder, "got %q", s)
}

// ordered returns the window with start on or before end.
func ordered(start, end model.Day) (model.Day, model.Day) {
	if end.Before(start) {
		return end, start
	}
	return start, end
}

// Source is the range-query contract of the store.
type Source interface {
	QueryWide(ctx context.Context, q store.WideQuery) ([]model.WideRow, error)
}

// API serves reads over stored readings. It has no write side effects and
// is safe to use concurrently with ingestion.
type API struct {
	src        Source
	devices    *registry.DeviceRegistry
	thresholds health.Thresholds
	pageSize   int
}

// New creates a read API.
func New(src Source, devices *registry.DeviceRegistry, th health.Thresholds, pageSize int) *API {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &API{src: src, devices: devices, thresholds: th, pageSize: pageSize}
}

// Devices returns the registered devices.
func (a *API) Devices() []model.Device {
	return a.devices.All()
}

// PageSize returns the default page size.
func (a *API) PageSize() int {
	return a.pageSize
}

// FetchPage returns rows [page*pageSize, (page+1)*pageSize) of the window
// sorted by (Date, Time) in the given order. Page numbers start at 0. A
// reversed window is read as if its bounds were swapped.
func (a *API) FetchPage(ctx context.Context, page, pageSize int, start, end model.Day, order Order) ([]model.WideRow, error) {
	if page < 0 {
		return nil, ErrInvalidPage
	}
	if pageSize <= 0 {
		pageSize = a.pageSize
	}
	start, end = ordered(start, end)
	rows, err := a.src.QueryWide(ctx, store.WideQuery{
		Start:      start,
		End:        end,
		Offset:     page * pageSize,
		Limit:      pageSize,
		Descending: order == OrderDesc,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "readapi: fetch page %d", page)
	}
	return rows, nil
}

// FetchAll returns every row of the window in ascending order, paginating
// internally.
func (a *API) FetchAll(ctx context.Context, start, end model.Day) ([]model.WideRow, error) {
	return a.fetchAll(ctx, start, end, nil)
}

func (a *API) fetchAll(ctx context.Context, start, end model.Day, deviceIDs []string) ([]model.WideRow, error) {
	start, end = ordered(start, end)
	var out []model.WideRow
	for offset := 0; ; offset += a.pageSize {
		rows, err := a.src.QueryWide(ctx, store.WideQuery{
			Start:     start,
			End:       end,
			Offset:    offset,
			Limit:     a.pageSize,
			DeviceIDs: deviceIDs,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "readapi: fetch all at offset %d", offset)
		}
		out = append(out, rows...)
		if len(rows) < a.pageSize {
			return out, nil
		}
	}
}

// ComputeHealth classifies each device over [start, end] from rows. Empty
// deviceIDs means every registered device. Records follow deviceIDs order.
func (a *API) ComputeHealth(rows []model.WideRow, start, end model.Day, deviceIDs []string) []model.HealthRecord {
	ids := a.devices.Filter(deviceIDs)
	return health.Ordered(health.Classify(rows, start, end, ids, a.thresholds), ids)
}

// Health reads the window and classifies every requested device.
func (a *API) Health(ctx context.Context, start, end model.Day, deviceIDs []string) ([]model.HealthRecord, error) {
	start, end = ordered(start, end)
	ids := a.devices.Filter(deviceIDs)
	rows, err := a.fetchAll(ctx, start, end, ids)
	if err != nil {
		return nil, err
	}
	return health.Ordered(health.Classify(rows, start, end, ids, a.thresholds), ids), nil
}
