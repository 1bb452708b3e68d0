// Package fetcher calls the provider reporting APIs and maps their responses
// onto report rows.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/infofluencer/infofluencer/platform/go/graph"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

// Request carries what a fetch needs from the tenant's credential.
type Request struct {
	AccessToken string
	// ResourceID is the GA4 property id or Instagram business account id.
	ResourceID string
}

// Func fetches one report type.
type Func func(ctx context.Context, d *report.Descriptor, req Request) ([]report.Row, error)

// Config wires provider clients and endpoints.
type Config struct {
	// GoogleClient carries timeouts and the https guard for GA4 and YouTube.
	GoogleClient *http.Client
	// GraphClient carries timeouts and the circuit breaker for Instagram.
	GraphClient *http.Client
	// GA4Endpoint and YouTubeEndpoint override the Google API base URLs.
	GA4Endpoint     string
	YouTubeEndpoint string
	GraphBaseURL    string
	Now             func() time.Time
}

// Fetcher dispatches report types to their provider fetch functions.
type Fetcher struct {
	funcs map[report.Type]Func
}

// New builds the dispatch table and verifies that every report type has a
// fetch function.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	ga4 := &ga4Fetcher{client: cfg.GoogleClient, endpoint: cfg.GA4Endpoint}
	yt := &youtubeFetcher{client: cfg.GoogleClient, endpoint: cfg.YouTubeEndpoint}
	ig := &instagramFetcher{graph: graph.New(cfg.GraphBaseURL, cfg.GraphClient), now: cfg.Now}

	funcs := map[report.Type]Func{
		report.InstagramProfile:      ig.profile,
		report.InstagramMedia:        ig.media,
		report.InstagramDemographics: ig.demographics,
		report.InstagramInsights:     ig.insights,
	}
	for _, t := range report.TypesFor(report.ProviderGA4) {
		funcs[t] = ga4.fetch
	}
	for _, t := range report.TypesFor(report.ProviderYouTube) {
		funcs[t] = yt.fetch
	}
	return NewWithFuncs(funcs)
}

// NewWithFuncs builds a Fetcher from an explicit table.
func NewWithFuncs(funcs map[report.Type]Func) (*Fetcher, error) {
	if err := checkCoverage(funcs); err != nil {
		return nil, err
	}
	return &Fetcher{funcs: funcs}, nil
}

func checkCoverage(funcs map[report.Type]Func) error {
	var missing []string
	for _, t := range report.AllTypes() {
		if fn, ok := funcs[t]; !ok || fn == nil {
			missing = append(missing, t.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("fetcher: no fetch function for %v", missing)
	}
	for t := range funcs {
		if !t.Valid() {
			return fmt.Errorf("fetcher: invalid report type %d", int(t))
		}
	}
	return nil
}

// Fetch runs the fetch function registered for t.
func (f *Fetcher) Fetch(ctx context.Context, t report.Type, req Request) ([]report.Row, error) {
	fn, ok := f.funcs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", report.ErrUnsupportedReportType, int(t))
	}
	rows, err := fn(ctx, t.Descriptor(), req)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []report.Row{}
	}
	return rows, nil
}

// googleError converts Google API errors into ProviderAPIError.
func googleError(provider report.Provider, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &report.ProviderAPIError{
			Provider:   provider,
			StatusCode: gerr.Code,
			Message:    msg,
			Payload:    []byte(gerr.Body),
		}
	}
	return fmt.Errorf("%s request: %w", provider, err)
}
