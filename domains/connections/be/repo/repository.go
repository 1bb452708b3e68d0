package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/infofluencer/infofluencer/platform/go/persistence"
)

// Repository defines the persistence operations required by the connections service.
type Repository interface {
	PutState(ctx context.Context, rec persistence.OAuthStateRecord) error
	FindState(ctx context.Context, provider, state string, notBefore time.Time) (persistence.OAuthStateRecord, error)
	// CompleteAuthorization consumes the state, stores the credential and
	// marks the connection active in one transaction.
	CompleteAuthorization(ctx context.Context, state persistence.OAuthStateRecord, cred persistence.CredentialRecord, at time.Time) (persistence.CredentialRecord, error)
	GetCredential(ctx context.Context, tenantID uuid.UUID, provider string) (persistence.CredentialRecord, error)
	UpdateTokens(ctx context.Context, tenantID uuid.UUID, provider, accessToken string, refreshToken *string, expiresAt *time.Time) (persistence.CredentialRecord, error)
	SetResource(ctx context.Context, tenantID uuid.UUID, provider, resourceID, resourceName string) (persistence.CredentialRecord, error)
	// Disconnect deletes the credential and marks the connection inactive.
	Disconnect(ctx context.Context, tenantID uuid.UUID, provider string, at time.Time) error
	ListConnections(ctx context.Context, tenantID uuid.UUID) ([]persistence.APIConnectionRecord, error)
	SetConnection(ctx context.Context, tenantID uuid.UUID, provider string, active bool, at time.Time) (persistence.APIConnectionRecord, error)
	PurgeStates(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresRepository struct {
	db    *persistence.DB
	store *persistence.CredentialStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(db *persistence.DB, store *persistence.CredentialStore) Repository {
	if db == nil || store == nil {
		panic("connections repository requires db and store")
	}
	return &postgresRepository{db: db, store: store}
}

func (r *postgresRepository) PutState(ctx context.Context, rec persistence.OAuthStateRecord) error {
	return r.store.PutState(ctx, rec)
}

func (r *postgresRepository) FindState(ctx context.Context, provider, state string, notBefore time.Time) (persistence.OAuthStateRecord, error) {
	return r.store.FindState(ctx, provider, state, notBefore)
}

func (r *postgresRepository) CompleteAuthorization(ctx context.Context, state persistence.OAuthStateRecord, cred persistence.CredentialRecord, at time.Time) (persistence.CredentialRecord, error) {
	var stored persistence.CredentialRecord
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		store := r.store.Tx(tx)
		if err := store.ConsumeState(ctx, state.Provider, state.State); err != nil {
			return err
		}
		var err error
		stored, err = store.UpsertCredential(ctx, cred)
		if err != nil {
			return err
		}
		_, err = store.SetConnection(ctx, cred.TenantID, cred.Provider, true, at)
		return err
	})
	if err != nil {
		return persistence.CredentialRecord{}, err
	}
	return stored, nil
}

func (r *postgresRepository) GetCredential(ctx context.Context, tenantID uuid.UUID, provider string) (persistence.CredentialRecord, error) {
	return r.store.GetCredential(ctx, tenantID, provider)
}

func (r *postgresRepository) UpdateTokens(ctx context.Context, tenantID uuid.UUID, provider, accessToken string, refreshToken *string, expiresAt *time.Time) (persistence.CredentialRecord, error) {
	return r.store.UpdateTokens(ctx, tenantID, provider, accessToken, refreshToken, expiresAt)
}

func (r *postgresRepository) SetResource(ctx context.Context, tenantID uuid.UUID, provider, resourceID, resourceName string) (persistence.CredentialRecord, error) {
	return r.store.SetResource(ctx, tenantID, provider, resourceID, resourceName)
}

func (r *postgresRepository) Disconnect(ctx context.Context, tenantID uuid.UUID, provider string, at time.Time) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		store := r.store.Tx(tx)
		if err := store.DeleteCredential(ctx, tenantID, provider); err != nil {
			return err
		}
		_, err := store.SetConnection(ctx, tenantID, provider, false, at)
		return err
	})
}

func (r *postgresRepository) ListConnections(ctx context.Context, tenantID uuid.UUID) ([]persistence.APIConnectionRecord, error) {
	return r.store.ListConnections(ctx, tenantID)
}

func (r *postgresRepository) SetConnection(ctx context.Context, tenantID uuid.UUID, provider string, active bool, at time.Time) (persistence.APIConnectionRecord, error) {
	return r.store.SetConnection(ctx, tenantID, provider, active, at)
}

func (r *postgresRepository) PurgeStates(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.PurgeStates(ctx, cutoff)
}
