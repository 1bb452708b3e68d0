package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// startPostgres runs a disposable Postgres, applies the embedded migrations
// and returns a pool bound to it.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("infofluencer"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := NewMigrator(connString, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 4, version)
	require.NoError(t, migrator.Close())

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	return pool
}

// seedCompany registers a company user and tenant directly through the store.
func seedCompany(t *testing.T, ctx context.Context, accounts *AccountStore, email string) tenant.CompanyProfile {
	t.Helper()

	user, err := accounts.CreateUser(ctx, CreateUserParams{Email: email, PasswordHash: "hash", FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	ten, err := accounts.CreateTenant(ctx, tenant.KindCompany, user.UserID)
	require.NoError(t, err)
	profile, err := accounts.CreateCompanyProfile(ctx, tenant.CompanyProfile{
		TenantID:    ten.TenantID,
		UserID:      user.UserID,
		CompanyName: "Acme",
		WorkEmail:   email,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, profile.TenantID)
	return profile
}

func ptr[T any](v T) *T { return &v }
