package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infofluencer/infofluencer/platform/go/report"
)

func TestGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "tok" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
			return
		}
		require.Equal(t, "/v22.0/1784/media", r.URL.Path)
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"id":"1","like_count":12}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v22.0/", srv.Client())
	require.Equal(t, srv.URL+"/v22.0", c.BaseURL())

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, c.Get(context.Background(), "/1784/media", "tok", url.Values{"limit": {"5"}}, &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "12", body.Data[0]["like_count"].(interface{ String() string }).String())

	err := c.Get(context.Background(), "1784/media", "bad", nil, &body)
	var apiErr *report.ProviderAPIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "Invalid OAuth access token.", apiErr.Message)
	require.Contains(t, string(apiErr.Payload), `"code":190`)
}

func TestErrorMessageFallsBackToBody(t *testing.T) {
	t.Parallel()

	require.Equal(t, "upstream down", ErrorMessage([]byte(" upstream down \n")))
	require.Equal(t, "boom", ErrorMessage([]byte(`{"error":{"message":"boom"}}`)))
	require.Equal(t, DefaultBaseURL, New("", nil).BaseURL())
}
