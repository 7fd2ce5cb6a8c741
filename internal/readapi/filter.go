package readapi

import (
	"math"
	"slices"

	"github.com/sells-group/noise-cli/internal/model"
)

// Filter narrows wide rows for display.
type Filter struct {
	// DeviceIDs keeps only these value columns. Empty keeps every column.
	DeviceIDs []string
	// Min and Max drop rows where a kept column has a value outside the
	// range. Null values always pass.
	Min *float64
	Max *float64
}

// Apply returns the filtered rows. The input is not modified.
func (f Filter) Apply(rows []model.WideRow) []model.WideRow {
	out := make([]model.WideRow, 0, len(rows))
	for _, row := range rows {
		kept := make(map[string]*float64, len(row.Values))
		for id, v := range row.Values {
			if len(f.DeviceIDs) == 0 || slices.Contains(f.DeviceIDs, id) {
				kept[id] = v
			}
		}
		if !f.inRange(kept) {
			continue
		}
		out = append(out, model.WideRow{Date: row.Date, Time: row.Time, Values: kept})
	}
	return out
}

func (f Filter) inRange(values map[string]*float64) bool {
	for _, v := range values {
		if v == nil {
			continue
		}
		if f.Min != nil && *v < *f.Min {
			return false
		}
		if f.Max != nil && *v > *f.Max {
			return false
		}
	}
	return true
}

// Stats summarizes the non-null values of a set of rows.
type Stats struct {
	Rows  int     `json:"rows"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summarize computes Stats over every value column. Mean, Min and Max are
// zero when there are no values.
func Summarize(rows []model.WideRow) Stats {
	s := Stats{Rows: len(rows), Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, row := range rows {
		for _, v := range row.Values {
			if v == nil {
				continue
			}
			s.Count++
			sum += *v
			s.Min = math.Min(s.Min, *v)
			s.Max = math.Max(s.Max, *v)
		}
	}
	if s.Count == 0 {
		s.Min, s.Max = 0, 0
		return s
	}
	s.Mean = sum / float64(s.Count)
	return s
}
