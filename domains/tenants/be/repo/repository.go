package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// Repository defines the persistence operations required by the tenant admin service.
type Repository interface {
	List(ctx context.Context, kind *tenant.Kind, limit, offset int) ([]persistence.TenantRecord, int, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Connections(ctx context.Context, id uuid.UUID) ([]persistence.APIConnectionRecord, error)
}

type postgresRepository struct {
	accounts    *persistence.AccountStore
	credentials *persistence.CredentialStore
}

// NewPostgresRepository constructs a repository backed by the account and credential stores.
func NewPostgresRepository(accounts *persistence.AccountStore, credentials *persistence.CredentialStore) Repository {
	if accounts == nil || credentials == nil {
		panic("tenants repository requires account and credential stores")
	}
	return &postgresRepository{accounts: accounts, credentials: credentials}
}

func (r *postgresRepository) List(ctx context.Context, kind *tenant.Kind, limit, offset int) ([]persistence.TenantRecord, int, error) {
	return r.accounts.ListTenants(ctx, kind, limit, offset)
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	return r.accounts.GetTenant(ctx, id)
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.accounts.DeleteTenant(ctx, id)
}

func (r *postgresRepository) Connections(ctx context.Context, id uuid.UUID) ([]persistence.APIConnectionRecord, error) {
	return r.credentials.ListConnections(ctx, id)
}
