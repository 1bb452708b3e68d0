package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
)

func TestRequestTraceWithAuth(t *testing.T) {
	t.Parallel()

	issuer, err := platformauth.NewIssuer(platformauth.IssuerConfig{Secret: "0123456789abcdef0123456789abcdef"})
	require.NoError(t, err)
	pair, err := issuer.Issue(platformauth.Subject{UserID: "user-123", UserType: platformauth.UserTypeCompany, TenantID: "tenant-9"})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(platformauth.JWT(issuer.Verifier(), nil))
	r.Use(RequestTrace)

	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		audit, ok := requesttrace.FromContext(req.Context())
		require.True(t, ok)
		require.Equal(t, requesttrace.ActorKindUser, audit.ActorKind)
		require.Equal(t, "user-123", *audit.UserID)
		require.Equal(t, "tenant-9", *audit.TenantID)
		require.NotEmpty(t, audit.RequestID)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRequestTraceAnonymous(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestTrace)

	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		audit, ok := requesttrace.FromContext(req.Context())
		require.True(t, ok)
		require.Equal(t, requesttrace.ActorKindAnonymous, audit.ActorKind)
		require.Nil(t, audit.UserID)
		w.WriteHeader(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()

	h := LoginRateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLoginRateLimitDisabled(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := LoginRateLimit(0, time.Minute)(next)
	require.NotNil(t, h)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.infofluencer.dev"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/dashboard/overview", nil)
	req.Header.Set("Origin", "https://app.infofluencer.dev")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, "https://app.infofluencer.dev", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPMetricsPassesThrough(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(HTTPMetrics)
	r.Get("/reports/{provider}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/reports/ga4", nil))
	require.Equal(t, http.StatusAccepted, resp.Code)
}
