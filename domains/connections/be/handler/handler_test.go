package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/infofluencer/infofluencer/domains/connections/be/service"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

type mockService struct {
	startFn       func(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (string, error)
	callbackFn    func(ctx context.Context, provider report.Provider, input service.CallbackInput) service.CallbackResult
	statusFn      func(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (service.Status, error)
	disconnectFn  func(ctx context.Context, tenantID uuid.UUID, provider report.Provider) error
	getResourceFn func(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (service.Resource, error)
	setResourceFn func(ctx context.Context, tenantID uuid.UUID, provider report.Provider, res service.Resource) (service.Resource, error)
}

func (m *mockService) Start(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (string, error) {
	if m.startFn == nil {
		panic("startFn not configured")
	}
	return m.startFn(ctx, tenantID, provider)
}

func (m *mockService) Callback(ctx context.Context, provider report.Provider, input service.CallbackInput) service.CallbackResult {
	if m.callbackFn == nil {
		panic("callbackFn not configured")
	}
	return m.callbackFn(ctx, provider, input)
}

func (m *mockService) EnsureFresh(context.Context, uuid.UUID, report.Provider) (service.Credential, error) {
	panic("EnsureFresh not configured")
}

func (m *mockService) Status(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (service.Status, error) {
	if m.statusFn == nil {
		panic("statusFn not configured")
	}
	return m.statusFn(ctx, tenantID, provider)
}

func (m *mockService) Disconnect(ctx context.Context, tenantID uuid.UUID, provider report.Provider) error {
	if m.disconnectFn == nil {
		panic("disconnectFn not configured")
	}
	return m.disconnectFn(ctx, tenantID, provider)
}

func (m *mockService) GetResource(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (service.Resource, error) {
	if m.getResourceFn == nil {
		panic("getResourceFn not configured")
	}
	return m.getResourceFn(ctx, tenantID, provider)
}

func (m *mockService) SetResource(ctx context.Context, tenantID uuid.UUID, provider report.Provider, res service.Resource) (service.Resource, error) {
	if m.setResourceFn == nil {
		panic("setResourceFn not configured")
	}
	return m.setResourceFn(ctx, tenantID, provider, res)
}

func (m *mockService) PurgeExpiredStates(context.Context) (int64, error) {
	panic("PurgeExpiredStates not configured")
}

type mockFetcher struct {
	fetchAllFn func(ctx context.Context, role tenant.Role, provider report.Provider) (report.FetchSummary, error)
}

func (m *mockFetcher) FetchAll(ctx context.Context, role tenant.Role, provider report.Provider) (report.FetchSummary, error) {
	if m.fetchAllFn == nil {
		panic("fetchAllFn not configured")
	}
	return m.fetchAllFn(ctx, role, provider)
}

var testTenant = tenant.Company{Profile: tenant.CompanyProfile{TenantID: uuid.MustParse("7c1a2f7e-3a35-4d3e-9a37-5f0f1f5d8a11"), CompanyName: "Acme"}}

func newRouter(t *testing.T, svc service.Service, fetcher BulkFetcher, withRole bool) http.Handler {
	t.Helper()
	h := New(svc, fetcher, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Get("/connections/{provider}/callback", h.Callback)
	r.Group(func(r chi.Router) {
		if withRole {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req.WithContext(tenant.WithRole(req.Context(), testTenant)))
				})
			})
		}
		r.Route("/connections", h.Routes)
	})
	return r
}

func TestStart(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		startFn: func(_ context.Context, tenantID uuid.UUID, provider report.Provider) (string, error) {
			require.Equal(t, testTenant.TenantID(), tenantID)
			require.Equal(t, report.ProviderYouTube, provider)
			return "https://accounts.google.com/o/oauth2/auth?state=abc", nil
		},
	}
	rec := httptest.NewRecorder()
	newRouter(t, svc, nil, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connections/YouTube/start", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.AuthURL, "state=abc")
}

func TestStartRejectsUnknownProviderAndMissingRole(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newRouter(t, &mockService{}, nil, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connections/tiktok/start", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	newRouter(t, &mockService{}, nil, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connections/ga4/start", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCallbackRedirects(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		callbackFn: func(_ context.Context, provider report.Provider, input service.CallbackInput) service.CallbackResult {
			require.Equal(t, report.ProviderGA4, provider)
			if input.State != "good" {
				return service.CallbackResult{RedirectURL: "https://app/dashboard?error=invalid_state", Err: service.ErrInvalidState}
			}
			require.Equal(t, "the-code", input.Code)
			return service.CallbackResult{RedirectURL: "https://app/dashboard?ga4_connected=true"}
		},
	}
	router := newRouter(t, svc, nil, false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connections/ga4/callback?code=the-code&state=good", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://app/dashboard?ga4_connected=true", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connections/ga4/callback?code=x&state=bad", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://app/dashboard?error=invalid_state", rec.Header().Get("Location"))
}

func TestStatusAndDisconnectErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		svc        *mockService
		wantStatus int
		wantType   string
	}{
		{
			name:   "status connected",
			method: http.MethodGet,
			path:   "/connections/ga4/status",
			svc: &mockService{statusFn: func(context.Context, uuid.UUID, report.Provider) (service.Status, error) {
				return service.Status{Provider: report.ProviderGA4, Connected: true, ResourceID: "12345"}, nil
			}},
			wantStatus: http.StatusOK,
		},
		{
			name:   "disconnect not connected",
			method: http.MethodDelete,
			path:   "/connections/instagram",
			svc: &mockService{disconnectFn: func(context.Context, uuid.UUID, report.Provider) error {
				return service.ErrNotConnected
			}},
			wantStatus: http.StatusNotFound,
			wantType:   problem.TypeNotFound,
		},
		{
			name:   "disconnect ok",
			method: http.MethodDelete,
			path:   "/connections/instagram",
			svc: &mockService{disconnectFn: func(context.Context, uuid.UUID, report.Provider) error {
				return nil
			}},
			wantStatus: http.StatusNoContent,
		},
		{
			name:   "resource requires reconnect",
			method: http.MethodGet,
			path:   "/connections/ga4/resource",
			svc: &mockService{getResourceFn: func(context.Context, uuid.UUID, report.Provider) (service.Resource, error) {
				return service.Resource{}, service.ErrRefreshFailed
			}},
			wantStatus: http.StatusConflict,
			wantType:   problem.TypeReconnect,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			newRouter(t, tc.svc, nil, true).ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantType != "" {
				var p problem.Details
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
				require.Equal(t, tc.wantType, p.Type)
			}
		})
	}
}

func TestSetResourceTriggersGA4Fetch(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		setResourceFn: func(_ context.Context, _ uuid.UUID, _ report.Provider, res service.Resource) (service.Resource, error) {
			return service.Resource{ID: strings.TrimPrefix(res.ID, "properties/"), Name: res.Name}, nil
		},
	}
	var fetched bool
	fetcher := &mockFetcher{
		fetchAllFn: func(_ context.Context, role tenant.Role, provider report.Provider) (report.FetchSummary, error) {
			fetched = true
			require.Equal(t, testTenant.TenantID(), role.TenantID())
			return report.FetchSummary{
				Provider: provider,
				Results: []report.FetchResult{
					{ReportType: "country", Rows: 12},
					{ReportType: "age", Error: "provider error"},
				},
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/connections/ga4/resource", strings.NewReader(`{"resource_id":"properties/12345"}`))
	newRouter(t, svc, fetcher, true).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, fetched)
	var body resourceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "12345", body.ResourceID)
	require.NotNil(t, body.Fetch)
	require.Equal(t, 1, body.Fetch.Failed())
}

func TestSetResourceInstagramSkipsFetch(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		setResourceFn: func(_ context.Context, _ uuid.UUID, _ report.Provider, res service.Resource) (service.Resource, error) {
			return res, nil
		},
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/connections/instagram/resource", strings.NewReader(`{"resource_id":"1784"}`))
	newRouter(t, svc, &mockFetcher{}, true).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body resourceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Nil(t, body.Fetch)
}

func TestSetResourceValidation(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/connections/ga4/resource", strings.NewReader(`{"resource_name":"x"}`))
	newRouter(t, &mockService{}, nil, true).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var p problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Contains(t, p.Errors, "resource_id")
}
