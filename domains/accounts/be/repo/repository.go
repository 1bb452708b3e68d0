package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// RegisterParams carries a new account with its role profile.
type RegisterParams struct {
	User    persistence.CreateUserParams
	Kind    tenant.Kind
	Company string
}

// Repository defines the persistence operations required by the accounts service.
type Repository interface {
	Register(ctx context.Context, params RegisterParams) (persistence.UserRecord, tenant.Role, error)
	CreateAdmin(ctx context.Context, params persistence.CreateUserParams) (persistence.UserRecord, error)
	GetUser(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (persistence.UserRecord, error)
	TouchLogin(ctx context.Context, id uuid.UUID) error
	ResolveRole(ctx context.Context, userID uuid.UUID) (tenant.Role, error)
}

type postgresRepository struct {
	db    *persistence.DB
	store *persistence.AccountStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(db *persistence.DB, store *persistence.AccountStore) Repository {
	if db == nil || store == nil {
		panic("accounts repository requires db and store")
	}
	return &postgresRepository{db: db, store: store}
}

// Register creates the user, its tenant and the role profile in one transaction.
func (r *postgresRepository) Register(ctx context.Context, params RegisterParams) (persistence.UserRecord, tenant.Role, error) {
	var (
		user persistence.UserRecord
		role tenant.Role
	)
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		store := r.store.Tx(tx)

		created, err := store.CreateUser(ctx, params.User)
		if err != nil {
			return err
		}
		ten, err := store.CreateTenant(ctx, params.Kind, created.UserID)
		if err != nil {
			return err
		}

		switch params.Kind {
		case tenant.KindCompany:
			profile, err := store.CreateCompanyProfile(ctx, tenant.CompanyProfile{
				TenantID:      ten.TenantID,
				UserID:        created.UserID,
				CompanyName:   params.Company,
				ContactPerson: joinName(created.FirstName, created.LastName),
				WorkEmail:     created.Email,
			})
			if err != nil {
				return err
			}
			role = tenant.Company{Profile: profile}
		default:
			profile, err := store.CreateInfluencerProfile(ctx, tenant.InfluencerProfile{
				TenantID: ten.TenantID,
				UserID:   created.UserID,
				Email:    created.Email,
			})
			if err != nil {
				return err
			}
			role = tenant.Influencer{Profile: profile}
		}

		user = created
		return nil
	})
	if err != nil {
		return persistence.UserRecord{}, nil, err
	}
	return user, role, nil
}

func (r *postgresRepository) CreateAdmin(ctx context.Context, params persistence.CreateUserParams) (persistence.UserRecord, error) {
	params.IsAdmin = true
	return r.store.CreateUser(ctx, params)
}

func (r *postgresRepository) GetUser(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
	return r.store.GetUser(ctx, id)
}

func (r *postgresRepository) GetUserByEmail(ctx context.Context, email string) (persistence.UserRecord, error) {
	return r.store.GetUserByEmail(ctx, email)
}

func (r *postgresRepository) TouchLogin(ctx context.Context, id uuid.UUID) error {
	return r.store.TouchLogin(ctx, id, time.Now().UTC())
}

func (r *postgresRepository) ResolveRole(ctx context.Context, userID uuid.UUID) (tenant.Role, error) {
	return r.store.ResolveRole(ctx, userID)
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
