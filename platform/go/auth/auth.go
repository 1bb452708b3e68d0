package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/infofluencer/infofluencer/platform/go/problem"
)

type ctxKey string

const (
	ctxUserCredentials ctxKey = "INFOFLUENCER_USER_CREDENTIALS"
)

// User types carried in the user_type claim.
const (
	UserTypeCompany    = "company"
	UserTypeInfluencer = "influencer"
	UserTypeAdmin      = "admin"
)

// UserCredentials is the authenticated caller as read from a verified access token.
type UserCredentials struct {
	ID       string
	Email    string
	UserType string
	TenantID *string
}

// IsAdmin reports whether the caller authenticated as a platform admin.
func (u *UserCredentials) IsAdmin() bool {
	return u != nil && u.UserType == UserTypeAdmin
}

// WithUser stores credentials on the context.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxUserCredentials, creds)
}

func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	v := ctx.Value(ctxUserCredentials)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*UserCredentials)
	return u, ok && u != nil
}

// VerifyFunc validates the incoming token and returns its claims.
type VerifyFunc func(ctx context.Context, token string) (*Claims, error)

// ExtractFunc converts verified claims into UserCredentials.
type ExtractFunc func(claims *Claims) (*UserCredentials, error)

// JWT parses the bearer token and sets the context credentials. Requests
// without a token pass through anonymously; RequireAuthenticated or the
// contract validator rejects them where a token is mandatory.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractJWTToken(r)
			if token == "" || !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description="%s"`, err.Error()))
				problem.Write(w, problem.New("Unauthorized", "a valid access token is required", problem.TypeUnauthorized, http.StatusUnauthorized, nil))
				return
			}

			creds, err := extract(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				problem.Write(w, problem.New("Unauthorized", "a valid access token is required", problem.TypeUnauthorized, http.StatusUnauthorized, nil))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// DefaultCredentialExtractor accepts access tokens only.
func DefaultCredentialExtractor(claims *Claims) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}
	if claims.TokenUse != TokenUseAccess {
		return nil, errors.New("not an access token")
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}

	creds := &UserCredentials{
		ID:       claims.Subject,
		Email:    claims.Email,
		UserType: claims.UserType,
	}
	if claims.TenantID != "" {
		tenantID := claims.TenantID
		creds.TenantID = &tenantID
	}
	return creds, nil
}

// RequireAuthenticated rejects anonymous requests with 401.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			problem.Write(w, problem.New("Unauthorized", "a valid access token is required", problem.TypeUnauthorized, http.StatusUnauthorized, nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates a route group on the caller's user type.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := UserFromContext(r.Context())
			if !ok {
				problem.Write(w, problem.New("Forbidden", "insufficient role for this operation", problem.TypeForbidden, http.StatusForbidden, nil))
				return
			}

			switch role {
			case UserTypeAdmin, UserTypeCompany, UserTypeInfluencer:
				if creds.UserType != role {
					problem.Write(w, problem.New("Forbidden", "insufficient role for this operation", problem.TypeForbidden, http.StatusForbidden, nil))
					return
				}
			default:
				problem.Write(w, problem.New("Forbidden", "insufficient role for this operation", problem.TypeForbidden, http.StatusForbidden, nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
