package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// Repository defines the persistence operations required by the settings service.
type Repository interface {
	GetCompanyProfile(ctx context.Context, tenantID uuid.UUID) (tenant.CompanyProfile, error)
	UpdateCompanyProfile(ctx context.Context, tenantID uuid.UUID, patch persistence.CompanyProfilePatch) (tenant.CompanyProfile, error)

	GetNotifications(ctx context.Context, tenantID uuid.UUID) (persistence.NotificationSettings, error)
	UpdateNotifications(ctx context.Context, tenantID uuid.UUID, patch persistence.NotificationPatch) (persistence.NotificationSettings, error)

	GetSecurity(ctx context.Context, tenantID uuid.UUID) (persistence.SecuritySettings, error)
	UpdateSecurity(ctx context.Context, tenantID uuid.UUID, twoFactor *bool) (persistence.SecuritySettings, error)
	GetUser(ctx context.Context, userID uuid.UUID) (persistence.UserRecord, error)
	// ChangePassword stores the new hash and stamps last_password_change atomically.
	ChangePassword(ctx context.Context, tenantID, userID uuid.UUID, hash string, twoFactor *bool) (persistence.SecuritySettings, error)

	GetBilling(ctx context.Context, tenantID uuid.UUID) (persistence.BillingSettings, error)
	UpdateBilling(ctx context.Context, tenantID uuid.UUID, patch persistence.BillingPatch) (persistence.BillingSettings, error)

	ListConnections(ctx context.Context, tenantID uuid.UUID) ([]persistence.APIConnectionRecord, error)
	SetConnection(ctx context.Context, tenantID uuid.UUID, provider string, active bool, at time.Time) (persistence.APIConnectionRecord, error)
}

type postgresRepository struct {
	db          *persistence.DB
	accounts    *persistence.AccountStore
	settings    *persistence.SettingsStore
	credentials *persistence.CredentialStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(db *persistence.DB, accounts *persistence.AccountStore, settings *persistence.SettingsStore, credentials *persistence.CredentialStore) Repository {
	if db == nil || accounts == nil || settings == nil || credentials == nil {
		panic("settings repository requires db and stores")
	}
	return &postgresRepository{db: db, accounts: accounts, settings: settings, credentials: credentials}
}

func (r *postgresRepository) GetCompanyProfile(ctx context.Context, tenantID uuid.UUID) (tenant.CompanyProfile, error) {
	return r.accounts.GetCompanyProfile(ctx, tenantID)
}

func (r *postgresRepository) UpdateCompanyProfile(ctx context.Context, tenantID uuid.UUID, patch persistence.CompanyProfilePatch) (tenant.CompanyProfile, error) {
	return r.accounts.UpdateCompanyProfile(ctx, tenantID, patch)
}

func (r *postgresRepository) GetNotifications(ctx context.Context, tenantID uuid.UUID) (persistence.NotificationSettings, error) {
	return r.settings.GetNotifications(ctx, tenantID)
}

func (r *postgresRepository) UpdateNotifications(ctx context.Context, tenantID uuid.UUID, patch persistence.NotificationPatch) (persistence.NotificationSettings, error) {
	return r.settings.UpdateNotifications(ctx, tenantID, patch)
}

func (r *postgresRepository) GetSecurity(ctx context.Context, tenantID uuid.UUID) (persistence.SecuritySettings, error) {
	return r.settings.GetSecurity(ctx, tenantID)
}

func (r *postgresRepository) UpdateSecurity(ctx context.Context, tenantID uuid.UUID, twoFactor *bool) (persistence.SecuritySettings, error) {
	return r.settings.UpdateSecurity(ctx, tenantID, twoFactor, false)
}

func (r *postgresRepository) GetUser(ctx context.Context, userID uuid.UUID) (persistence.UserRecord, error) {
	return r.accounts.GetUser(ctx, userID)
}

func (r *postgresRepository) ChangePassword(ctx context.Context, tenantID, userID uuid.UUID, hash string, twoFactor *bool) (persistence.SecuritySettings, error) {
	var out persistence.SecuritySettings
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.accounts.Tx(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		updated, err := r.settings.Tx(tx).UpdateSecurity(ctx, tenantID, twoFactor, true)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	return out, err
}

func (r *postgresRepository) GetBilling(ctx context.Context, tenantID uuid.UUID) (persistence.BillingSettings, error) {
	return r.settings.GetBilling(ctx, tenantID)
}

func (r *postgresRepository) UpdateBilling(ctx context.Context, tenantID uuid.UUID, patch persistence.BillingPatch) (persistence.BillingSettings, error) {
	return r.settings.UpdateBilling(ctx, tenantID, patch)
}

func (r *postgresRepository) ListConnections(ctx context.Context, tenantID uuid.UUID) ([]persistence.APIConnectionRecord, error) {
	return r.credentials.ListConnections(ctx, tenantID)
}

func (r *postgresRepository) SetConnection(ctx context.Context, tenantID uuid.UUID, provider string, active bool, at time.Time) (persistence.APIConnectionRecord, error) {
	return r.credentials.SetConnection(ctx, tenantID, provider, active, at)
}
