package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/domains/tenants/be/repo"
	"github.com/infofluencer/infofluencer/platform/go/events"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
	"github.com/infofluencer/infofluencer/platform/go/storage"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ErrNotFound is returned when the tenant does not exist.
var ErrNotFound = errors.New("tenant not found")

// Tenant is the admin view of a tenant registry entry.
type Tenant struct {
	ID         uuid.UUID   `json:"tenant_id"`
	Kind       tenant.Kind `json:"kind"`
	OwnerID    uuid.UUID   `json:"owner_user_id"`
	OwnerEmail string      `json:"owner_email"`
	ShortID    string      `json:"short_id"`
	BasePrefix string      `json:"base_prefix"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Connection is one provider connection flag of a tenant.
type Connection struct {
	Provider      string     `json:"provider"`
	IsActive      bool       `json:"is_active"`
	LastConnected *time.Time `json:"last_connected"`
}

// Detail extends Tenant with connection and storage state.
type Detail struct {
	Tenant
	Connections  []Connection `json:"connections"`
	StorageReady bool         `json:"storage_ready"`
	StorageError *string      `json:"storage_error,omitempty"`
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Kind     *tenant.Kind
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant `json:"data"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalItems int      `json:"total_items"`
	TotalPages int      `json:"total_pages"`
}

// Config carries the optional collaborators of the service. A nil Archive
// skips storage checks and purges; a nil Publisher drops events.
type Config struct {
	EnvKey    string
	Archive   storage.Archive
	Publisher events.Publisher
	Now       func() time.Time
}

// Service provides tenant administration operations.
type Service interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (Detail, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo repo.Repository
	cfg  Config
}

// New constructs a Service with required dependencies.
func New(r repo.Repository, cfg Config) Service {
	if r == nil {
		panic("tenants repo is required")
	}
	if cfg.EnvKey == "" {
		panic("envKey is required")
	}
	if cfg.Archive == nil {
		cfg.Archive = storage.NopArchive{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &service{repo: r, cfg: cfg}
}

// List pages through tenants newest first.
func (s *service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	records, total, err := s.repo.List(ctx, opts.Kind, size, (page-1)*size)
	if err != nil {
		return ListResult{}, err
	}

	tenants := make([]Tenant, 0, len(records))
	for _, rec := range records {
		tenants = append(tenants, s.toTenant(rec))
	}
	return ListResult{
		Tenants:    tenants,
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// Get returns a tenant with its connections and a live storage check.
func (s *service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, mapNotFound(err)
	}
	conns, err := s.repo.Connections(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	detail := Detail{Tenant: s.toTenant(rec), Connections: make([]Connection, 0, len(conns))}
	for _, c := range conns {
		detail.Connections = append(detail.Connections, Connection{
			Provider:      c.Provider,
			IsActive:      c.IsActive,
			LastConnected: c.LastConnected,
		})
	}
	if err := s.cfg.Archive.Check(ctx, detail.BasePrefix); err != nil {
		msg := err.Error()
		detail.StorageError = &msg
	} else {
		detail.StorageReady = true
	}
	return detail, nil
}

// Delete removes the tenant and everything it owns. Archived snapshots are
// purged after the rows are gone; a purge failure is logged, not returned.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapNotFound(err)
	}

	logger := platformlogging.FromContextOr(ctx, zap.NewNop()).With(zap.String("tenant_id", id.String()))
	prefix := tenant.BasePrefixFor(s.cfg.EnvKey, rec.Kind, rec.TenantID)
	if err := s.cfg.Archive.Purge(ctx, prefix); err != nil {
		logger.Warn("purge tenant archive", zap.String("prefix", prefix), zap.Error(err))
	}

	err = s.cfg.Publisher.Publish(ctx, events.Event{
		Type:       events.TypeTenantDeleted,
		TenantID:   id.String(),
		OccurredAt: s.cfg.Now().UTC(),
		Actor:      requesttrace.FromContextOrSystem(ctx),
	})
	if err != nil {
		logger.Warn("publish event", zap.Error(err))
	}
	logger.Info("tenant deleted", zap.String("kind", string(rec.Kind)))
	return nil
}

func (s *service) toTenant(rec persistence.TenantRecord) Tenant {
	return Tenant{
		ID:         rec.TenantID,
		Kind:       rec.Kind,
		OwnerID:    rec.OwnerUserID,
		OwnerEmail: rec.OwnerEmail,
		ShortID:    tenant.ShortID(rec.TenantID),
		BasePrefix: tenant.BasePrefixFor(s.cfg.EnvKey, rec.Kind, rec.TenantID),
		CreatedAt:  rec.CreatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrTenantNotFound) {
		return ErrNotFound
	}
	return err
}
