package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

const (
	UsersTable              = "users"
	TenantsTable            = "tenants"
	CompanyProfilesTable    = "company_profiles"
	InfluencerProfilesTable = "influencer_profiles"
)

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a duplicated email.
	ErrUserConflict = errors.New("user conflict")
	// ErrTenantNotFound indicates a missing tenant record.
	ErrTenantNotFound = errors.New("tenant not found")
)

// UserRecord represents a row in the users table.
type UserRecord struct {
	UserID       uuid.UUID  `db:"user_id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	IsAdmin      bool       `db:"is_admin"`
	LastLoginAt  *time.Time `db:"last_login_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// TenantRecord represents a row in the tenants table.
type TenantRecord struct {
	TenantID    uuid.UUID   `db:"tenant_id"`
	Kind        tenant.Kind `db:"kind"`
	OwnerUserID uuid.UUID   `db:"owner_user_id"`
	OwnerEmail  string      `db:"owner_email"`
	CreatedAt   time.Time   `db:"created_at"`
}

// AccountStore persists users, tenants and role profiles.
type AccountStore struct {
	q Querier
}

// NewAccountStore returns a store bound to q (pool or transaction).
func NewAccountStore(q Querier) *AccountStore {
	if q == nil {
		panic("account store requires querier")
	}
	return &AccountStore{q: q}
}

// Tx returns a copy of the store bound to tx.
func (s *AccountStore) Tx(tx pgx.Tx) *AccountStore {
	return &AccountStore{q: tx}
}

// CreateUserParams captures the fields required to insert a user.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsAdmin      bool
}

const userColumns = "user_id, email, password_hash, first_name, last_name, is_admin, last_login_at, created_at, updated_at"

// CreateUser inserts a user; the email is stored lowercased.
func (s *AccountStore) CreateUser(ctx context.Context, params CreateUserParams) (UserRecord, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" {
		return UserRecord{}, errors.New("email is required")
	}
	if params.PasswordHash == "" {
		return UserRecord{}, errors.New("password hash is required")
	}

	row := s.q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (email, password_hash, first_name, last_name, is_admin)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, UsersTable, userColumns),
		email,
		params.PasswordHash,
		strings.TrimSpace(params.FirstName),
		strings.TrimSpace(params.LastName),
		params.IsAdmin,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return UserRecord{}, ErrUserConflict
		}
		return UserRecord{}, err
	}
	return user, nil
}

// GetUser fetches a user by id.
func (s *AccountStore) GetUser(ctx context.Context, userID uuid.UUID) (UserRecord, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1`, userColumns, UsersTable), userID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByEmail fetches a user by case-insensitive email.
func (s *AccountStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE LOWER(email) = LOWER($1)`, userColumns, UsersTable), strings.TrimSpace(email))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	return user, err
}

// TouchLogin stamps last_login_at.
func (s *AccountStore) TouchLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET last_login_at = $2, updated_at = NOW() WHERE user_id = $1`, UsersTable), userID, at)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (s *AccountStore) UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET password_hash = $2, updated_at = NOW() WHERE user_id = $1`, UsersTable), userID, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateTenant inserts a tenant owned by ownerID.
func (s *AccountStore) CreateTenant(ctx context.Context, kind tenant.Kind, ownerID uuid.UUID) (TenantRecord, error) {
	var rec TenantRecord
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (kind, owner_user_id) VALUES ($1, $2)
        RETURNING tenant_id, kind, owner_user_id, created_at
    `, TenantsTable), string(kind), ownerID).Scan(&rec.TenantID, &rec.Kind, &rec.OwnerUserID, &rec.CreatedAt)
	if err != nil {
		return TenantRecord{}, fmt.Errorf("create tenant: %w", err)
	}
	return rec, nil
}

// GetTenant returns a tenant with its owner's email.
func (s *AccountStore) GetTenant(ctx context.Context, tenantID uuid.UUID) (TenantRecord, error) {
	var rec TenantRecord
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        SELECT t.tenant_id, t.kind, t.owner_user_id, u.email, t.created_at
        FROM %s t JOIN %s u ON u.user_id = t.owner_user_id
        WHERE t.tenant_id = $1
    `, TenantsTable, UsersTable), tenantID).Scan(&rec.TenantID, &rec.Kind, &rec.OwnerUserID, &rec.OwnerEmail, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRecord{}, ErrTenantNotFound
	}
	if err != nil {
		return TenantRecord{}, fmt.Errorf("get tenant: %w", err)
	}
	return rec, nil
}

// ListTenants pages through tenants newest first, optionally filtered by kind.
func (s *AccountStore) ListTenants(ctx context.Context, kind *tenant.Kind, limit, offset int) ([]TenantRecord, int, error) {
	var filter *string
	if kind != nil {
		k := string(*kind)
		filter = &k
	}

	var total int
	if err := s.q.QueryRow(ctx, fmt.Sprintf(`
        SELECT COUNT(*) FROM %s WHERE ($1::text IS NULL OR kind = $1)
    `, TenantsTable), filter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	rows, err := s.q.Query(ctx, fmt.Sprintf(`
        SELECT t.tenant_id, t.kind, t.owner_user_id, u.email, t.created_at
        FROM %s t JOIN %s u ON u.user_id = t.owner_user_id
        WHERE ($1::text IS NULL OR t.kind = $1)
        ORDER BY t.created_at DESC, t.tenant_id
        LIMIT $2 OFFSET $3
    `, TenantsTable, UsersTable), filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	out := make([]TenantRecord, 0)
	for rows.Next() {
		var rec TenantRecord
		if err := rows.Scan(&rec.TenantID, &rec.Kind, &rec.OwnerUserID, &rec.OwnerEmail, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tenants: %w", err)
	}
	return out, total, nil
}

// DeleteTenant removes the tenant's owning user; cascades remove the tenant,
// its profile, credentials, pending states, report rows and settings.
func (s *AccountStore) DeleteTenant(ctx context.Context, tenantID uuid.UUID) error {
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE user_id = (SELECT owner_user_id FROM %s WHERE tenant_id = $1)
    `, UsersTable, TenantsTable), tenantID)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// CreateCompanyProfile inserts the company profile for a tenant.
func (s *AccountStore) CreateCompanyProfile(ctx context.Context, p tenant.CompanyProfile) (tenant.CompanyProfile, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, user_id, company_name, contact_person, position, phone, work_email)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING %s
    `, CompanyProfilesTable, companyColumns),
		p.TenantID, p.UserID, p.CompanyName, p.ContactPerson, p.Position, p.Phone, strings.ToLower(strings.TrimSpace(p.WorkEmail)),
	)
	out, err := scanCompany(row)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.CompanyProfile{}, ErrUserConflict
		}
		return tenant.CompanyProfile{}, fmt.Errorf("create company profile: %w", err)
	}
	return out, nil
}

// CreateInfluencerProfile inserts the influencer profile for a tenant.
func (s *AccountStore) CreateInfluencerProfile(ctx context.Context, p tenant.InfluencerProfile) (tenant.InfluencerProfile, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, user_id, email, instagram_handle, youtube_channel_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, InfluencerProfilesTable, influencerColumns),
		p.TenantID, p.UserID, strings.ToLower(strings.TrimSpace(p.Email)), p.InstagramHandle, p.YouTubeChannelID,
	)
	out, err := scanInfluencer(row)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.InfluencerProfile{}, ErrUserConflict
		}
		return tenant.InfluencerProfile{}, fmt.Errorf("create influencer profile: %w", err)
	}
	return out, nil
}

// GetCompanyProfile loads the company profile of a tenant.
func (s *AccountStore) GetCompanyProfile(ctx context.Context, tenantID uuid.UUID) (tenant.CompanyProfile, error) {
	out, err := scanCompany(s.q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1`, companyColumns, CompanyProfilesTable), tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.CompanyProfile{}, tenant.ErrProfileNotFound
	}
	if err != nil {
		return tenant.CompanyProfile{}, fmt.Errorf("get company profile: %w", err)
	}
	return out, nil
}

// CompanyProfilePatch updates only the non-nil fields.
type CompanyProfilePatch struct {
	CompanyName   *string
	ContactPerson *string
	Position      *string
	Phone         *string
}

// UpdateCompanyProfile applies a partial update to the tenant's company profile.
func (s *AccountStore) UpdateCompanyProfile(ctx context.Context, tenantID uuid.UUID, patch CompanyProfilePatch) (tenant.CompanyProfile, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET
            company_name = COALESCE($2, company_name),
            contact_person = COALESCE($3, contact_person),
            position = COALESCE($4, position),
            phone = COALESCE($5, phone),
            updated_at = NOW()
        WHERE tenant_id = $1
        RETURNING %s
    `, CompanyProfilesTable, companyColumns),
		tenantID, patch.CompanyName, patch.ContactPerson, patch.Position, patch.Phone,
	)
	out, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.CompanyProfile{}, tenant.ErrProfileNotFound
	}
	if err != nil {
		return tenant.CompanyProfile{}, fmt.Errorf("update company profile: %w", err)
	}
	return out, nil
}

// ResolveRole loads the single role profile owned by userID.
func (s *AccountStore) ResolveRole(ctx context.Context, userID uuid.UUID) (tenant.Role, error) {
	company, err := scanCompany(s.q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1`, companyColumns, CompanyProfilesTable), userID))
	if err == nil {
		return tenant.Company{Profile: company}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load company profile: %w", err)
	}

	influencer, err := scanInfluencer(s.q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1`, influencerColumns, InfluencerProfilesTable), userID))
	if err == nil {
		return tenant.Influencer{Profile: influencer}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load influencer profile: %w", err)
	}
	return nil, tenant.ErrProfileNotFound
}

const (
	companyColumns    = "tenant_id, user_id, company_name, contact_person, position, phone, work_email, created_at"
	influencerColumns = "tenant_id, user_id, email, instagram_handle, youtube_channel_id, created_at"
)

func scanUser(row pgx.Row) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsAdmin, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func scanCompany(row pgx.Row) (tenant.CompanyProfile, error) {
	var p tenant.CompanyProfile
	err := row.Scan(&p.TenantID, &p.UserID, &p.CompanyName, &p.ContactPerson, &p.Position, &p.Phone, &p.WorkEmail, &p.CreatedAt)
	return p, err
}

func scanInfluencer(row pgx.Row) (tenant.InfluencerProfile, error) {
	var p tenant.InfluencerProfile
	err := row.Scan(&p.TenantID, &p.UserID, &p.Email, &p.InstagramHandle, &p.YouTubeChannelID, &p.CreatedAt)
	return p, err
}
