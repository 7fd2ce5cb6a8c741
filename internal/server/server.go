// Package server exposes the read API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/model"
	"github.com/sells-group/noise-cli/internal/readapi"
)

// ReadAPI is the subset of readapi.API the handlers depend on.
type ReadAPI interface {
	Devices() []model.Device
	PageSize() int
	FetchPage(ctx context.Context, page, pageSize int, start, end model.Day, order readapi.Order) ([]model.WideRow, error)
	Health(ctx context.Context, start, end model.Day, deviceIDs []string) ([]model.HealthRecord, error)
}

// Pinger reports store reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the read API into a chi router.
type Server struct {
	api    ReadAPI
	pinger Pinger
	loc    *time.Location

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a Server. pinger may be nil. loc is the reporting timezone used
// to default the query window to yesterday.
func New(api ReadAPI, pinger Pinger, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{api: api, pinger: pinger, loc: loc, nowFunc: time.Now}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", s.handleDevices)
		r.Get("/readings", s.handleReadings)
		r.Get("/health", s.handleHealth)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
