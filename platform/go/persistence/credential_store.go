package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	ProviderCredentialsTable = "provider_credentials"
	OAuthStatesTable         = "oauth_states"
	APIConnectionsTable      = "api_connections"
)

var (
	// ErrCredentialNotFound indicates no credential for (tenant, provider).
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrStateNotFound indicates a missing, expired or already consumed state.
	ErrStateNotFound = errors.New("oauth state not found")
)

// CredentialRecord is one row of provider_credentials.
type CredentialRecord struct {
	TenantID      uuid.UUID  `db:"tenant_id"`
	Provider      string     `db:"provider"`
	AccessToken   string     `db:"access_token"`
	RefreshToken  *string    `db:"refresh_token"`
	ExpiresAt     *time.Time `db:"expires_at"`
	Scope         string     `db:"scope"`
	ResourceID    *string    `db:"resource_id"`
	ResourceName  string     `db:"resource_name"`
	LastDataFetch *time.Time `db:"last_data_fetch"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// CredentialStore persists OAuth credentials and pending states.
type CredentialStore struct {
	q Querier
}

// NewCredentialStore returns a store bound to q.
func NewCredentialStore(q Querier) *CredentialStore {
	if q == nil {
		panic("credential store requires querier")
	}
	return &CredentialStore{q: q}
}

// Tx returns a copy of the store bound to tx.
func (s *CredentialStore) Tx(tx pgx.Tx) *CredentialStore {
	return &CredentialStore{q: tx}
}

const credentialColumns = "tenant_id, provider, access_token, refresh_token, expires_at, scope, resource_id, resource_name, last_data_fetch, created_at, updated_at"

// UpsertCredential writes the token fields for (tenant, provider). A
// re-authorization overwrites the tokens and keeps the resource id.
func (s *CredentialStore) UpsertCredential(ctx context.Context, rec CredentialRecord) (CredentialRecord, error) {
	if rec.TenantID == uuid.Nil || rec.Provider == "" {
		return CredentialRecord{}, errors.New("tenant id and provider are required")
	}
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, provider, access_token, refresh_token, expires_at, scope, resource_id, resource_name)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (tenant_id, provider) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = COALESCE(EXCLUDED.refresh_token, %[1]s.refresh_token),
            expires_at = EXCLUDED.expires_at,
            scope = EXCLUDED.scope,
            resource_id = COALESCE(EXCLUDED.resource_id, %[1]s.resource_id),
            resource_name = CASE WHEN EXCLUDED.resource_name <> '' THEN EXCLUDED.resource_name ELSE %[1]s.resource_name END,
            updated_at = NOW()
        RETURNING %[2]s
    `, ProviderCredentialsTable, credentialColumns),
		rec.TenantID, rec.Provider, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, rec.Scope, rec.ResourceID, rec.ResourceName,
	)
	return scanCredential(row)
}

// GetCredential loads the credential for (tenant, provider).
func (s *CredentialStore) GetCredential(ctx context.Context, tenantID uuid.UUID, provider string) (CredentialRecord, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND provider = $2`, credentialColumns, ProviderCredentialsTable), tenantID, provider)
	rec, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CredentialRecord{}, ErrCredentialNotFound
	}
	return rec, err
}

// UpdateTokens persists a refreshed access token. A nil refresh token keeps
// the stored one.
func (s *CredentialStore) UpdateTokens(ctx context.Context, tenantID uuid.UUID, provider, accessToken string, refreshToken *string, expiresAt *time.Time) (CredentialRecord, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET
            access_token = $3,
            refresh_token = COALESCE($4, refresh_token),
            expires_at = $5,
            updated_at = NOW()
        WHERE tenant_id = $1 AND provider = $2
        RETURNING %s
    `, ProviderCredentialsTable, credentialColumns), tenantID, provider, accessToken, refreshToken, expiresAt)
	rec, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CredentialRecord{}, ErrCredentialNotFound
	}
	return rec, err
}

// SetResource stores the provider resource id (GA4 property, Instagram business account).
func (s *CredentialStore) SetResource(ctx context.Context, tenantID uuid.UUID, provider, resourceID, resourceName string) (CredentialRecord, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET resource_id = $3, resource_name = $4, updated_at = NOW()
        WHERE tenant_id = $1 AND provider = $2
        RETURNING %s
    `, ProviderCredentialsTable, credentialColumns), tenantID, provider, resourceID, resourceName)
	rec, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CredentialRecord{}, ErrCredentialNotFound
	}
	return rec, err
}

// StampLastFetch records a successful fetch.
func (s *CredentialStore) StampLastFetch(ctx context.Context, tenantID uuid.UUID, provider string, at time.Time) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET last_data_fetch = $3 WHERE tenant_id = $1 AND provider = $2`, ProviderCredentialsTable), tenantID, provider, at)
	if err != nil {
		return fmt.Errorf("stamp last fetch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// DeleteCredential removes the credential; missing rows are reported.
func (s *CredentialStore) DeleteCredential(ctx context.Context, tenantID uuid.UUID, provider string) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND provider = $2`, ProviderCredentialsTable), tenantID, provider)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// OAuthStateRecord is a pending authorization.
type OAuthStateRecord struct {
	TenantID  uuid.UUID `db:"tenant_id"`
	Provider  string    `db:"provider"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
}

// PutState upserts the pending state for (tenant, provider); a new start
// invalidates the previous state.
func (s *CredentialStore) PutState(ctx context.Context, rec OAuthStateRecord) error {
	_, err := s.q.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, provider, state, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (tenant_id, provider) DO UPDATE SET state = EXCLUDED.state, created_at = EXCLUDED.created_at
    `, OAuthStatesTable), rec.TenantID, rec.Provider, rec.State, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("put oauth state: %w", err)
	}
	return nil
}

// FindState returns the pending state created at or after notBefore.
func (s *CredentialStore) FindState(ctx context.Context, provider, state string, notBefore time.Time) (OAuthStateRecord, error) {
	var rec OAuthStateRecord
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        SELECT tenant_id, provider, state, created_at FROM %s
        WHERE state = $1 AND provider = $2 AND created_at >= $3
    `, OAuthStatesTable), state, provider, notBefore).Scan(&rec.TenantID, &rec.Provider, &rec.State, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OAuthStateRecord{}, ErrStateNotFound
	}
	if err != nil {
		return OAuthStateRecord{}, fmt.Errorf("find oauth state: %w", err)
	}
	return rec, nil
}

// ConsumeState deletes the state; ErrStateNotFound when another caller
// already consumed it.
func (s *CredentialStore) ConsumeState(ctx context.Context, provider, state string) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE state = $1 AND provider = $2`, OAuthStatesTable), state, provider)
	if err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrStateNotFound
	}
	return nil
}

// CountStates reports pending states for a tenant.
func (s *CredentialStore) CountStates(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1`, OAuthStatesTable), tenantID).Scan(&n)
	return n, err
}

// PurgeStates deletes states created before cutoff.
func (s *CredentialStore) PurgeStates(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, OAuthStatesTable), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge oauth states: %w", err)
	}
	return tag.RowsAffected(), nil
}

// APIConnectionRecord is the per-provider connection flag shown in settings.
type APIConnectionRecord struct {
	TenantID      uuid.UUID  `db:"tenant_id"`
	Provider      string     `db:"provider"`
	IsActive      bool       `db:"is_active"`
	LastConnected *time.Time `db:"last_connected"`
}

// SetConnection upserts the connection flag. last_connected moves only when
// the flag is set active.
func (s *CredentialStore) SetConnection(ctx context.Context, tenantID uuid.UUID, provider string, active bool, at time.Time) (APIConnectionRecord, error) {
	var rec APIConnectionRecord
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, provider, is_active, last_connected, updated_at)
        VALUES ($1, $2, $3, CASE WHEN $3 THEN $4::timestamptz END, $4)
        ON CONFLICT (tenant_id, provider) DO UPDATE SET
            is_active = EXCLUDED.is_active,
            last_connected = COALESCE(EXCLUDED.last_connected, %s.last_connected),
            updated_at = EXCLUDED.updated_at
        RETURNING tenant_id, provider, is_active, last_connected
    `, APIConnectionsTable, APIConnectionsTable), tenantID, provider, active, at).Scan(&rec.TenantID, &rec.Provider, &rec.IsActive, &rec.LastConnected)
	if err != nil {
		return APIConnectionRecord{}, fmt.Errorf("set api connection: %w", err)
	}
	return rec, nil
}

// ListConnections returns the tenant's connection flags ordered by provider.
func (s *CredentialStore) ListConnections(ctx context.Context, tenantID uuid.UUID) ([]APIConnectionRecord, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
        SELECT tenant_id, provider, is_active, last_connected FROM %s
        WHERE tenant_id = $1 ORDER BY provider
    `, APIConnectionsTable), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api connections: %w", err)
	}
	defer rows.Close()

	out := make([]APIConnectionRecord, 0)
	for rows.Next() {
		var rec APIConnectionRecord
		if err := rows.Scan(&rec.TenantID, &rec.Provider, &rec.IsActive, &rec.LastConnected); err != nil {
			return nil, fmt.Errorf("scan api connection: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api connections: %w", err)
	}
	return out, nil
}

func scanCredential(row pgx.Row) (CredentialRecord, error) {
	var c CredentialRecord
	err := row.Scan(&c.TenantID, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.Scope, &c.ResourceID, &c.ResourceName, &c.LastDataFetch, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
