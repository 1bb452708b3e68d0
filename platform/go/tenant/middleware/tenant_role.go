package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// Resolver loads the role profile owned by a user.
type Resolver interface {
	ResolveRole(ctx context.Context, userID uuid.UUID) (tenant.Role, error)
}

// Config controls middleware behavior.
type Config struct {
	// CacheTTL enables a small in-memory cache of resolved roles; zero disables it.
	CacheTTL time.Duration
	Now      func() time.Time
}

// WithTenantRole resolves the caller's tenant.Role once and attaches it to the
// context. Admins and anonymous callers pass through without a role.
func WithTenantRole(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var cache *roleCache
	if cfg.CacheTTL > 0 {
		cache = newRoleCache(cfg.CacheTTL, cfg.Now)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(creds.ID)
			if err != nil {
				problem.Write(w, problem.New("Unauthorized", "subject is not a user id", problem.TypeUnauthorized, http.StatusUnauthorized, nil))
				return
			}

			role, cached := cache.get(userID)
			if !cached {
				role, err = resolver.ResolveRole(r.Context(), userID)
				if err != nil {
					if errors.Is(err, tenant.ErrProfileNotFound) {
						forbidden(w, "no tenant profile for this account")
						return
					}
					platformlogging.FromRequest(r, zap.NewNop()).Error("resolve tenant role", zap.Error(err))
					problem.Write(w, problem.New("Internal server error", "an unexpected error occurred", problem.TypeInternal, http.StatusInternalServerError, nil))
					return
				}
			}

			if string(role.Kind()) != creds.UserType {
				forbidden(w, "token user type does not match the account profile")
				return
			}
			if creds.TenantID != nil && *creds.TenantID != role.TenantID().String() {
				forbidden(w, "token tenant does not match the account profile")
				return
			}

			if !cached {
				cache.put(userID, role)
			}

			ctx := tenant.WithRole(r.Context(), role)
			ctx = platformlogging.Enrich(ctx, zap.String("tenant_id", role.TenantID().String()), zap.String("role", string(role.Kind())))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects callers without a resolved role.
func RequireTenant(next http.Handler) http.Handler {
	return requireKind("", next)
}

// RequireCompany admits company tenants only.
func RequireCompany(next http.Handler) http.Handler {
	return requireKind(tenant.KindCompany, next)
}

// RequireInfluencer admits influencer tenants only.
func RequireInfluencer(next http.Handler) http.Handler {
	return requireKind(tenant.KindInfluencer, next)
}

func requireKind(kind tenant.Kind, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := tenant.FromContext(r.Context())
		if !ok {
			forbidden(w, "no tenant profile for this account")
			return
		}
		if kind != "" && role.Kind() != kind {
			forbidden(w, "this endpoint requires a "+string(kind)+" account")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbidden(w http.ResponseWriter, detail string) {
	problem.Write(w, problem.New("Forbidden", detail, problem.TypeForbidden, http.StatusForbidden, nil))
}

type roleCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[uuid.UUID]cacheItem
}

type cacheItem struct {
	role      tenant.Role
	expiresAt time.Time
}

func newRoleCache(ttl time.Duration, now func() time.Time) *roleCache {
	return &roleCache{ttl: ttl, now: now, items: make(map[uuid.UUID]cacheItem)}
}

func (c *roleCache) get(userID uuid.UUID) (tenant.Role, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	item, ok := c.items[userID]
	c.mu.RUnlock()
	if !ok || c.now().After(item.expiresAt) {
		return nil, false
	}
	return item.role, true
}

func (c *roleCache) put(userID uuid.UUID, role tenant.Role) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items[userID] = cacheItem{role: role, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
