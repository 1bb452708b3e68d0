package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCredentialExtractor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		claims  *Claims
		wantErr bool
		tenant  *string
	}{
		{
			name:   "access token with tenant",
			claims: &Claims{UserType: UserTypeCompany, TenantID: "tenant-1", TokenUse: TokenUseAccess, RegisteredClaims: registered("user-1")},
			tenant: strPtr("tenant-1"),
		},
		{
			name:   "admin without tenant",
			claims: &Claims{UserType: UserTypeAdmin, TokenUse: TokenUseAccess, RegisteredClaims: registered("admin-1")},
		},
		{
			name:    "refresh token rejected",
			claims:  &Claims{UserType: UserTypeCompany, TokenUse: TokenUseRefresh, RegisteredClaims: registered("user-1")},
			wantErr: true,
		},
		{
			name:    "missing subject",
			claims:  &Claims{UserType: UserTypeCompany, TokenUse: TokenUseAccess},
			wantErr: true,
		},
		{
			name:    "nil claims",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := DefaultCredentialExtractor(tc.claims)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.claims.Subject, creds.ID)
			require.Equal(t, tc.claims.UserType, creds.UserType)
			if tc.tenant == nil {
				require.Nil(t, creds.TenantID)
				return
			}
			require.Equal(t, *tc.tenant, *creds.TenantID)
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	pair, err := issuer.Issue(Subject{UserID: "user-1", Email: "a@co.com", UserType: UserTypeCompany, TenantID: "tenant-1"})
	require.NoError(t, err)

	var seen *UserCredentials
	handler := JWT(issuer.Verifier(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid access token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+pair.Access)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
		require.NotNil(t, seen)
		require.Equal(t, "user-1", seen.ID)
		require.Equal(t, "a@co.com", seen.Email)
	})

	t.Run("refresh token is not accepted as access", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.Refresh)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
		require.Contains(t, resp.Header().Get("WWW-Authenticate"), "invalid_token")
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	testCases := []struct {
		name   string
		creds  *UserCredentials
		role   string
		status int
	}{
		{name: "anonymous", role: UserTypeAdmin, status: http.StatusForbidden},
		{name: "admin allowed", creds: &UserCredentials{ID: "a", UserType: UserTypeAdmin}, role: UserTypeAdmin, status: http.StatusOK},
		{name: "company denied admin", creds: &UserCredentials{ID: "c", UserType: UserTypeCompany}, role: UserTypeAdmin, status: http.StatusForbidden},
		{name: "company allowed", creds: &UserCredentials{ID: "c", UserType: UserTypeCompany}, role: UserTypeCompany, status: http.StatusOK},
		{name: "unknown role", creds: &UserCredentials{ID: "c", UserType: UserTypeCompany}, role: "owner", status: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.creds != nil {
				req = req.WithContext(WithUser(req.Context(), tc.creds))
			}
			resp := httptest.NewRecorder()
			RequireRole(tc.role)(ok).ServeHTTP(resp, req)
			require.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	resp := httptest.NewRecorder()
	RequireAuthenticated(ok).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{ID: "u"}))
	resp = httptest.NewRecorder()
	RequireAuthenticated(ok).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func strPtr(s string) *string { return &s }
