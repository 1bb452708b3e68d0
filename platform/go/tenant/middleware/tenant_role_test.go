package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

type fakeResolver struct {
	calls     atomic.Int32
	resolveFn func(ctx context.Context, userID uuid.UUID) (tenant.Role, error)
}

func (f *fakeResolver) ResolveRole(ctx context.Context, userID uuid.UUID) (tenant.Role, error) {
	f.calls.Add(1)
	if f.resolveFn == nil {
		panic("unexpected call to ResolveRole")
	}
	return f.resolveFn(ctx, userID)
}

func requestAs(creds *platformauth.UserCredentials) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if creds == nil {
		return req
	}
	return req.WithContext(platformauth.WithUser(req.Context(), creds))
}

func TestWithTenantRoleResolvesAndCaches(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tenantID := uuid.New()
	resolver := &fakeResolver{resolveFn: func(_ context.Context, id uuid.UUID) (tenant.Role, error) {
		require.Equal(t, userID, id)
		return tenant.Company{Profile: tenant.CompanyProfile{TenantID: tenantID, UserID: userID}}, nil
	}}

	var got tenant.Role
	h := WithTenantRole(resolver, Config{CacheTTL: time.Minute})(RequireCompany(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	tid := tenantID.String()
	creds := &platformauth.UserCredentials{ID: userID.String(), UserType: platformauth.UserTypeCompany, TenantID: &tid}

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, requestAs(creds))
		require.Equal(t, http.StatusOK, resp.Code)
	}
	require.Equal(t, int32(1), resolver.calls.Load())
	require.Equal(t, tenantID, got.TenantID())
}

func TestWithTenantRoleFailures(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	otherTenant := uuid.New().String()

	testCases := []struct {
		name     string
		creds    *platformauth.UserCredentials
		resolve  func(context.Context, uuid.UUID) (tenant.Role, error)
		gate     func(http.Handler) http.Handler
		expected int
	}{
		{
			name:     "profile missing",
			creds:    &platformauth.UserCredentials{ID: userID.String(), UserType: "company"},
			resolve:  func(context.Context, uuid.UUID) (tenant.Role, error) { return nil, tenant.ErrProfileNotFound },
			gate:     RequireTenant,
			expected: http.StatusForbidden,
		},
		{
			name:     "resolver failure",
			creds:    &platformauth.UserCredentials{ID: userID.String(), UserType: "company"},
			resolve:  func(context.Context, uuid.UUID) (tenant.Role, error) { return nil, errors.New("db down") },
			gate:     RequireTenant,
			expected: http.StatusInternalServerError,
		},
		{
			name:  "token role differs from profile",
			creds: &platformauth.UserCredentials{ID: userID.String(), UserType: "company"},
			resolve: func(context.Context, uuid.UUID) (tenant.Role, error) {
				return tenant.Influencer{Profile: tenant.InfluencerProfile{TenantID: uuid.New()}}, nil
			},
			gate:     RequireTenant,
			expected: http.StatusForbidden,
		},
		{
			name:  "tenant claim mismatch",
			creds: &platformauth.UserCredentials{ID: userID.String(), UserType: "company", TenantID: &otherTenant},
			resolve: func(context.Context, uuid.UUID) (tenant.Role, error) {
				return tenant.Company{Profile: tenant.CompanyProfile{TenantID: uuid.New()}}, nil
			},
			gate:     RequireTenant,
			expected: http.StatusForbidden,
		},
		{
			name:  "influencer on company route",
			creds: &platformauth.UserCredentials{ID: userID.String(), UserType: "influencer"},
			resolve: func(context.Context, uuid.UUID) (tenant.Role, error) {
				return tenant.Influencer{Profile: tenant.InfluencerProfile{TenantID: uuid.New()}}, nil
			},
			gate:     RequireCompany,
			expected: http.StatusForbidden,
		},
		{
			name:     "anonymous caller has no role",
			gate:     RequireInfluencer,
			expected: http.StatusForbidden,
		},
		{
			name:     "bad user id",
			creds:    &platformauth.UserCredentials{ID: "not-a-uuid", UserType: "company"},
			gate:     RequireTenant,
			expected: http.StatusUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolver := &fakeResolver{resolveFn: tc.resolve}
			h := WithTenantRole(resolver, Config{})(tc.gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, requestAs(tc.creds))
			require.Equal(t, tc.expected, resp.Code)
		})
	}
}

func TestWithTenantRoleSkipsAdmins(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	h := WithTenantRole(resolver, Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := tenant.FromContext(r.Context())
		require.False(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, requestAs(&platformauth.UserCredentials{ID: uuid.NewString(), UserType: platformauth.UserTypeAdmin}))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Zero(t, resolver.calls.Load())
}
