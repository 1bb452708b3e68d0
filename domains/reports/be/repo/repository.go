package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

// Repository defines the persistence operations required by the reports service.
type Repository interface {
	// Materialize replaces the tenant's rows of t in one transaction.
	Materialize(ctx context.Context, tenantID uuid.UUID, t report.Type, rows []report.Row, fetchedAt time.Time) (int64, error)
	List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error)
	StampLastFetch(ctx context.Context, tenantID uuid.UUID, provider report.Provider, at time.Time) error
}

type postgresRepository struct {
	reports     *persistence.ReportStore
	credentials *persistence.CredentialStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(reports *persistence.ReportStore, credentials *persistence.CredentialStore) Repository {
	if reports == nil || credentials == nil {
		panic("reports repository requires report and credential stores")
	}
	return &postgresRepository{reports: reports, credentials: credentials}
}

func (r *postgresRepository) Materialize(ctx context.Context, tenantID uuid.UUID, t report.Type, rows []report.Row, fetchedAt time.Time) (int64, error) {
	return r.reports.Materialize(ctx, tenantID, t, rows, fetchedAt)
}

func (r *postgresRepository) List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error) {
	return r.reports.List(ctx, tenantID, t)
}

func (r *postgresRepository) StampLastFetch(ctx context.Context, tenantID uuid.UUID, provider report.Provider, at time.Time) error {
	return r.credentials.StampLastFetch(ctx, tenantID, string(provider), at)
}
