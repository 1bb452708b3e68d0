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

	"github.com/infofluencer/infofluencer/domains/settings/be/service"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

type mockService struct {
	accountFn             func(ctx context.Context, tenantID uuid.UUID) (service.Account, error)
	updateAccountFn       func(ctx context.Context, tenantID uuid.UUID, patch service.AccountPatch) (service.Account, error)
	notificationsFn       func(ctx context.Context, tenantID uuid.UUID) (service.Notifications, error)
	updateNotificationsFn func(ctx context.Context, tenantID uuid.UUID, patch service.NotificationsPatch) (service.Notifications, error)
	securityFn            func(ctx context.Context, tenantID uuid.UUID) (service.Security, error)
	updateSecurityFn      func(ctx context.Context, role tenant.Role, patch service.SecurityPatch) (service.Security, error)
	billingFn             func(ctx context.Context, tenantID uuid.UUID) (service.Billing, error)
	updateBillingFn       func(ctx context.Context, tenantID uuid.UUID, patch service.BillingPatch) (service.Billing, error)
	connectionsFn         func(ctx context.Context, tenantID uuid.UUID) ([]service.Connection, error)
	setConnectionFn       func(ctx context.Context, tenantID uuid.UUID, provider report.Provider, active bool) (service.Connection, error)
}

func (m *mockService) Account(ctx context.Context, tenantID uuid.UUID) (service.Account, error) {
	if m.accountFn == nil {
		panic("accountFn not configured")
	}
	return m.accountFn(ctx, tenantID)
}

func (m *mockService) UpdateAccount(ctx context.Context, tenantID uuid.UUID, patch service.AccountPatch) (service.Account, error) {
	if m.updateAccountFn == nil {
		panic("updateAccountFn not configured")
	}
	return m.updateAccountFn(ctx, tenantID, patch)
}

func (m *mockService) Notifications(ctx context.Context, tenantID uuid.UUID) (service.Notifications, error) {
	if m.notificationsFn == nil {
		panic("notificationsFn not configured")
	}
	return m.notificationsFn(ctx, tenantID)
}

func (m *mockService) UpdateNotifications(ctx context.Context, tenantID uuid.UUID, patch service.NotificationsPatch) (service.Notifications, error) {
	if m.updateNotificationsFn == nil {
		panic("updateNotificationsFn not configured")
	}
	return m.updateNotificationsFn(ctx, tenantID, patch)
}

func (m *mockService) Security(ctx context.Context, tenantID uuid.UUID) (service.Security, error) {
	if m.securityFn == nil {
		panic("securityFn not configured")
	}
	return m.securityFn(ctx, tenantID)
}

func (m *mockService) UpdateSecurity(ctx context.Context, role tenant.Role, patch service.SecurityPatch) (service.Security, error) {
	if m.updateSecurityFn == nil {
		panic("updateSecurityFn not configured")
	}
	return m.updateSecurityFn(ctx, role, patch)
}

func (m *mockService) Billing(ctx context.Context, tenantID uuid.UUID) (service.Billing, error) {
	if m.billingFn == nil {
		panic("billingFn not configured")
	}
	return m.billingFn(ctx, tenantID)
}

func (m *mockService) UpdateBilling(ctx context.Context, tenantID uuid.UUID, patch service.BillingPatch) (service.Billing, error) {
	if m.updateBillingFn == nil {
		panic("updateBillingFn not configured")
	}
	return m.updateBillingFn(ctx, tenantID, patch)
}

func (m *mockService) Connections(ctx context.Context, tenantID uuid.UUID) ([]service.Connection, error) {
	if m.connectionsFn == nil {
		panic("connectionsFn not configured")
	}
	return m.connectionsFn(ctx, tenantID)
}

func (m *mockService) SetConnection(ctx context.Context, tenantID uuid.UUID, provider report.Provider, active bool) (service.Connection, error) {
	if m.setConnectionFn == nil {
		panic("setConnectionFn not configured")
	}
	return m.setConnectionFn(ctx, tenantID, provider, active)
}

var (
	companyRole    = tenant.Company{Profile: tenant.CompanyProfile{TenantID: uuid.MustParse("3c4d5e6f-7a8b-4c9d-8e0f-1a2b3c4d5e6f"), CompanyName: "Acme"}}
	influencerRole = tenant.Influencer{Profile: tenant.InfluencerProfile{TenantID: uuid.MustParse("7b8c9d0e-1f2a-4b3c-9d4e-5f6a7b8c9d0e")}}
)

func newRouter(t *testing.T, svc service.Service, role tenant.Role) http.Handler {
	t.Helper()
	h := New(svc, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if role != nil {
				req = req.WithContext(tenant.WithRole(req.Context(), role))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/settings", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUpdateAccountPartial(t *testing.T) {
	t.Parallel()

	svc := &mockService{updateAccountFn: func(_ context.Context, tenantID uuid.UUID, patch service.AccountPatch) (service.Account, error) {
		require.Equal(t, companyRole.TenantID(), tenantID)
		require.Nil(t, patch.CompanyName)
		require.Equal(t, "CMO", *patch.Position)
		return service.Account{CompanyName: "Acme", Position: "CMO"}, nil
	}}
	rec := do(t, newRouter(t, svc, companyRole), http.MethodPut, "/settings/account", `{"position":"CMO"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body service.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "CMO", body.Position)
}

func TestAccountRequiresCompany(t *testing.T) {
	t.Parallel()

	rec := do(t, newRouter(t, &mockService{}, influencerRole), http.MethodGet, "/settings/account", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNotificationsForInfluencer(t *testing.T) {
	t.Parallel()

	svc := &mockService{notificationsFn: func(_ context.Context, tenantID uuid.UUID) (service.Notifications, error) {
		require.Equal(t, influencerRole.TenantID(), tenantID)
		return service.Notifications{EmailReports: true, CampaignEnd: true, IntegrationError: true}, nil
	}}
	rec := do(t, newRouter(t, svc, influencerRole), http.MethodGet, "/settings/notifications", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"email_reports":true,"campaign_end":true,"integration_error":true,"push_enabled":false}`, rec.Body.String())
}

func TestUpdateSecurityValidation(t *testing.T) {
	t.Parallel()

	svc := &mockService{updateSecurityFn: func(context.Context, tenant.Role, service.SecurityPatch) (service.Security, error) {
		return service.Security{}, &service.ValidationError{Fields: service.FieldErrors{"current_password": {"is incorrect"}}}
	}}
	rec := do(t, newRouter(t, svc, companyRole), http.MethodPut, "/settings/security", `{"current_password":"x","new_password":"new-password"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"is incorrect"}, body.Errors["current_password"])
}

func TestUpdateBillingRejectsBadCard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "letters", body: `{"card_last4":"12ab"}`, status: http.StatusBadRequest},
		{name: "too long", body: `{"card_last4":"12345"}`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"stripe_customer_id":"cus_1"}`, status: http.StatusBadRequest},
		{name: "empty body", body: "", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, newRouter(t, &mockService{}, companyRole), http.MethodPut, "/settings/billing", tt.body)
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestUpdateBilling(t *testing.T) {
	t.Parallel()

	svc := &mockService{updateBillingFn: func(_ context.Context, _ uuid.UUID, patch service.BillingPatch) (service.Billing, error) {
		require.Equal(t, "4242", *patch.CardLast4)
		require.Nil(t, patch.AutoRenew)
		return service.Billing{ActivePlan: "free", CardLast4: "4242", AutoRenew: true}, nil
	}}
	rec := do(t, newRouter(t, svc, companyRole), http.MethodPut, "/settings/billing", `{"card_last4":"4242"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"active_plan":"free","card_last4":"4242","auto_renew":true}`, rec.Body.String())
}

func TestSetConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantActive bool
	}{
		{name: "default active", body: `{}`, wantActive: true},
		{name: "deactivate", body: `{"is_active":false}`, wantActive: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &mockService{setConnectionFn: func(_ context.Context, _ uuid.UUID, provider report.Provider, active bool) (service.Connection, error) {
				require.Equal(t, report.ProviderYouTube, provider)
				require.Equal(t, tt.wantActive, active)
				return service.Connection{Provider: provider, IsActive: active}, nil
			}}
			rec := do(t, newRouter(t, svc, companyRole), http.MethodPut, "/settings/connections/youtube", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestSetConnectionUnknownProvider(t *testing.T) {
	t.Parallel()

	rec := do(t, newRouter(t, &mockService{}, companyRole), http.MethodPut, "/settings/connections/tiktok", `{}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConnections(t *testing.T) {
	t.Parallel()

	svc := &mockService{connectionsFn: func(context.Context, uuid.UUID) ([]service.Connection, error) {
		return []service.Connection{{Provider: report.ProviderGA4}}, nil
	}}
	rec := do(t, newRouter(t, svc, companyRole), http.MethodGet, "/settings/connections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":[{"provider":"ga4","is_active":false,"last_connected":null}]}`, rec.Body.String())
}

func TestMissingRole(t *testing.T) {
	t.Parallel()

	rec := do(t, newRouter(t, &mockService{}, nil), http.MethodGet, "/settings/billing", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}
