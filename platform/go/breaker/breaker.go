// Package breaker wraps outbound provider traffic in a sony/gobreaker circuit
// breaker so an unhealthy provider fails fast instead of holding requests
// until their timeout.
package breaker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/platform/go/metrics"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("provider circuit open")

// Config tunes one breaker instance.
type Config struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval is the cyclic reset period of the closed-state counters.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold uint32
	Logger           *zap.Logger
}

// DefaultConfig returns the settings used for provider APIs.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Transport is an http.RoundTripper guarded by a circuit breaker. Transport
// errors and 5xx/429 responses count as failures; the response itself is
// still handed back to the caller.
type Transport struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

type failedResponse struct {
	resp *http.Response
}

func (f *failedResponse) Error() string {
	return fmt.Sprintf("provider responded %d", f.resp.StatusCode)
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, cfg Config) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Transport{base: base, cb: gobreaker.NewCircuitBreaker[*http.Response](settings)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &failedResponse{resp: resp}
		}
		return resp, nil
	})

	var failed *failedResponse
	switch {
	case errors.As(err, &failed):
		return failed.resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s", ErrOpen, t.cb.Name())
	default:
		return resp, err
	}
}

// State exposes the breaker state for health reporting.
func (t *Transport) State() string {
	return t.cb.State().String()
}
