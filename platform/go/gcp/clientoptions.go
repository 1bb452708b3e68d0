// Package gcp builds client options for the Google APIs used as report
// providers (GA4 Data API, YouTube Analytics).
package gcp

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// ClientOptions returns options that authenticate every call with ts while
// routing traffic through base, so timeouts, the https guard and the circuit
// breaker apply to Google API calls too. A non-empty endpoint overrides the
// service base URL.
func ClientOptions(ctx context.Context, base *http.Client, ts oauth2.TokenSource, endpoint string) []option.ClientOption {
	if base == nil {
		base = http.DefaultClient
	}

	authed := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	authed.Timeout = base.Timeout

	opts := []option.ClientOption{option.WithHTTPClient(authed)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

// StaticToken wraps an already-refreshed access token.
func StaticToken(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}
