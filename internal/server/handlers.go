package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/model"
	"github.com/sells-group/noise-cli/internal/readapi"
)

type readingsResponse struct {
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Order    readapi.Order   `json:"order"`
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Rows     []model.WideRow `json:"rows"`
	Stats    readapi.Stats   `json:"stats"`
}

type healthResponse struct {
	Start   string               `json:"start"`
	End     string               `json:"end"`
	Devices []model.HealthRecord `json:"devices"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			zap.L().Warn("server: store ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.api.Devices())
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, end, err := s.window(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := intParam(q, "page", 0)
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	pageSize, err := intParam(q, "page_size", s.api.PageSize())
	if err != nil || pageSize <= 0 {
		writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
		return
	}
	order, err := readapi.ParseOrder(q.Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}
	filter := readapi.Filter{DeviceIDs: listParam(q, "devices")}
	if filter.Min, err = floatParam(q, "min"); err != nil {
		writeError(w, http.StatusBadRequest, "min must be a number")
		return
	}
	if filter.Max, err = floatParam(q, "max"); err != nil {
		writeError(w, http.StatusBadRequest, "max must be a number")
		return
	}

	rows, err := s.api.FetchPage(r.Context(), page, pageSize, start, end, order)
	if err != nil {
		zap.L().Error("server: fetch page", zap.Int("page", page), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read readings")
		return
	}
	rows = filter.Apply(rows)

	writeJSON(w, http.StatusOK, readingsResponse{
		Page:     page,
		PageSize: pageSize,
		Order:    order,
		Start:    start.String(),
		End:      end.String(),
		Rows:     rows,
		Stats:    readapi.Summarize(rows),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, end, err := s.window(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.api.Health(r.Context(), start, end, listParam(q, "devices"))
	if err != nil {
		zap.L().Error("server: health", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute health")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Start: start.String(), End: end.String(), Devices: records})
}

// window reads start and end. A missing start means yesterday in the
// reporting timezone; a missing end means the same day as start.
func (s *Server) window(q url.Values) (model.Day, model.Day, error) {
	start := model.DayOf(s.nowFunc(), s.loc).AddDays(-1)
	if v := q.Get("start"); v != "" {
		d, err := model.ParseDay(v)
		if err != nil {
			return model.Day{}, model.Day{}, eris.New("start must be YYYY-MM-DD")
		}
		start = d
	}
	end := start
	if v := q.Get("end"); v != "" {
		d, err := model.ParseDay(v)
		if err != nil {
			return model.Day{}, model.Day{}, eris.New("end must be YYYY-MM-DD")
		}
		end = d
	}
	return start, end, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func floatParam(q url.Values, key string) (*float64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// listParam splits a comma separated parameter, dropping blanks.
func listParam(q url.Values, key string) []string {
	var out []string
	for _, part := range strings.Split(q.Get(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
