// Package sensor is the client for the upstream noise-meter API.
package sensor

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/fetcher"
	"github.com/sells-group/noise-cli/internal/model"
	"github.com/sells-group/noise-cli/internal/resilience"
)

// RawObservation is one element of the upstream response array.
type RawObservation struct {
	DT      string          `json:"dt"`
	Reading json.RawMessage `json:"reading"`
}

// Client fetches per-minute observations for one device-day.
type Client interface {
	// FetchDay returns the raw observations for the device on the given local
	// day. Order and completeness are not guaranteed.
	FetchDay(ctx context.Context, deviceID string, day model.Day) ([]RawObservation, error)
}

// Option configures the sensor client.
type Option func(*httpClient)

// WithBreaker routes every request through the given circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	baseURL string
	fetcher fetcher.Fetcher
	breaker *resilience.CircuitBreaker
}

// NewClient creates a sensor API client rooted at baseURL
// (e.g. http://host:3000/api/meter-sound).
func NewClient(baseURL string, f fetcher.Fetcher, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: f,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DayURL builds GET {base}/{device_id}?start=<YYYY-MM-DD>.
func DayURL(baseURL, deviceID string, day model.Day) string {
	q := url.Values{}
	q.Set("start", day.String())
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(deviceID) + "?" + q.Encode()
}

func (c *httpClient) FetchDay(ctx context.Context, deviceID string, day model.Day) ([]RawObservation, error) {
	if c.breaker == nil {
		return c.fetchDay(ctx, deviceID, day)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]RawObservation, error) {
		return c.fetchDay(ctx, deviceID, day)
	})
}

func (c *httpClient) fetchDay(ctx context.Context, deviceID string, day model.Day) ([]RawObservation, error) {
	rawURL := DayURL(c.baseURL, deviceID, day)

	resp, err := c.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "sensor: fetch %s %s", deviceID, day)
	}
	defer resp.Close() //nolint:errcheck

	if err := resp.Err(); err != nil {
		return nil, eris.Wrapf(err, "sensor: fetch %s %s", deviceID, day)
	}
	if !resp.HasContent() {
		return nil, nil
	}

	var out []RawObservation
	if _, err := fetcher.DecodeArray(ctx, resp.Body, func(o RawObservation) error {
		out = append(out, o)
		return nil
	}); err != nil {
		return nil, eris.Wrapf(err, "sensor: decode %s %s", deviceID, day)
	}
	if resp.Attempts > 1 {
		zap.L().Debug("sensor: fetched after retries",
			zap.String("device_id", deviceID),
			zap.String("day", day.String()),
			zap.Int("attempts", resp.Attempts),
		)
	}
	return out, nil
}
