// Package graph is a minimal Facebook/Instagram Graph API client.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/infofluencer/infofluencer/platform/go/report"
)

// DefaultBaseURL is the versioned Graph API root.
const DefaultBaseURL = "https://graph.facebook.com/v22.0"

const maxBody = 4 << 20

// Client issues GET requests against one Graph API root.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for base (DefaultBaseURL when empty).
func New(base string, httpClient *http.Client) *Client {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, http: httpClient}
}

// BaseURL returns the configured root.
func (c *Client) BaseURL() string { return c.base }

// Get requests base/path with query q and the access token, decoding the JSON
// body into dst. Non-200 responses become *report.ProviderAPIError.
func (c *Client) Get(ctx context.Context, path, accessToken string, q url.Values, dst any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("access_token", accessToken)
	raw := c.base + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph request %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &report.ProviderAPIError{
			Provider:   report.ProviderInstagram,
			StatusCode: resp.StatusCode,
			Message:    ErrorMessage(payload),
			Payload:    payload,
		}
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// ErrorMessage extracts error.message from a Graph API error body, falling
// back to the raw body.
func ErrorMessage(payload []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(payload))
}
