package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

// Repository reads materialized report rows for aggregation.
type Repository interface {
	List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error)
}

type postgresRepository struct {
	reports *persistence.ReportStore
}

// NewPostgresRepository constructs a read-only repository over the report store.
func NewPostgresRepository(reports *persistence.ReportStore) Repository {
	if reports == nil {
		panic("dashboard repository requires a report store")
	}
	return &postgresRepository{reports: reports}
}

func (r *postgresRepository) List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error) {
	return r.reports.List(ctx, tenantID, t)
}
