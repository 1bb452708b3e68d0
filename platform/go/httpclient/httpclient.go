// Package httpclient builds the HTTP clients used for provider OAuth and
// reporting calls.
package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/platform/go/breaker"
)

// ErrInsecureTransport is returned for plain-HTTP requests when insecure
// transport has not been explicitly allowed.
var ErrInsecureTransport = errors.New("insecure transport: https is required")

// Options configures a provider client.
type Options struct {
	// Name labels the circuit breaker and logs ("ga4", "instagram").
	Name    string
	Timeout time.Duration
	// AllowInsecureTransport permits http:// URLs. Only local development and
	// tests set it.
	AllowInsecureTransport bool
	// DisableBreaker skips the circuit breaker.
	DisableBreaker bool
	Base           http.RoundTripper
	Logger         *zap.Logger
}

// New returns an *http.Client with a timeout, an https guard and a breaker.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := opts.Base
	if transport == nil {
		transport = http.DefaultTransport
	}
	if !opts.DisableBreaker {
		cfg := breaker.DefaultConfig(opts.Name)
		cfg.Logger = opts.Logger
		transport = breaker.NewTransport(transport, cfg)
	}
	if !opts.AllowInsecureTransport {
		transport = secureOnly{next: transport}
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}

type secureOnly struct {
	next http.RoundTripper
}

func (s secureOnly) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.EqualFold(req.URL.Scheme, "https") {
		return nil, fmt.Errorf("%w: %s", ErrInsecureTransport, req.URL.Redacted())
	}
	return s.next.RoundTrip(req)
}

// CheckURL applies the same https rule to configured URLs (redirect URIs,
// endpoints) so misconfiguration fails at startup instead of mid-flow.
func CheckURL(raw string, allowInsecure bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if allowInsecure {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrInsecureTransport, raw)
	default:
		return fmt.Errorf("url %q: unsupported scheme %q", raw, u.Scheme)
	}
}
