package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

func TestPostgresStores(t *testing.T) {
	t.Parallel()

	pool := startPostgres(t)
	db := NewDB(pool)
	accounts := NewAccountStore(pool)
	credentials := NewCredentialStore(pool)
	reports := NewReportStore(db, pool)
	settings := NewSettingsStore(pool)

	t.Run("accounts", func(t *testing.T) {
		ctx := context.Background()
		company := seedCompany(t, ctx, accounts, "A@Co.com")

		_, err := accounts.CreateUser(ctx, CreateUserParams{Email: "a@co.com", PasswordHash: "x"})
		require.ErrorIs(t, err, ErrUserConflict)

		user, err := accounts.GetUserByEmail(ctx, "a@CO.com")
		require.NoError(t, err)
		require.Equal(t, "a@co.com", user.Email)

		role, err := accounts.ResolveRole(ctx, user.UserID)
		require.NoError(t, err)
		require.Equal(t, tenant.KindCompany, role.Kind())
		require.Equal(t, company.TenantID, role.TenantID())

		_, err = accounts.ResolveRole(ctx, uuid.New())
		require.ErrorIs(t, err, tenant.ErrProfileNotFound)

		updated, err := accounts.UpdateCompanyProfile(ctx, company.TenantID, CompanyProfilePatch{Phone: ptr("+90 555")})
		require.NoError(t, err)
		require.Equal(t, "+90 555", updated.Phone)
		require.Equal(t, "Acme", updated.CompanyName)

		loaded, err := accounts.GetCompanyProfile(ctx, company.TenantID)
		require.NoError(t, err)
		require.Equal(t, updated, loaded)

		kind := tenant.KindCompany
		recs, total, err := accounts.ListTenants(ctx, &kind, 10, 0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, total, 1)
		ids := make([]uuid.UUID, 0, len(recs))
		for _, rec := range recs {
			require.Equal(t, tenant.KindCompany, rec.Kind)
			ids = append(ids, rec.TenantID)
		}
		require.Contains(t, ids, company.TenantID)

		influencerKind := tenant.KindInfluencer
		recs, _, err = accounts.ListTenants(ctx, &influencerKind, 10, 0)
		require.NoError(t, err)
		for _, rec := range recs {
			require.NotEqual(t, company.TenantID, rec.TenantID)
		}
	})

	t.Run("oauth state is single use", func(t *testing.T) {
		ctx := context.Background()
		company := seedCompany(t, ctx, accounts, "state@co.com")
		now := time.Now().UTC()

		require.NoError(t, credentials.PutState(ctx, OAuthStateRecord{TenantID: company.TenantID, Provider: "ga4", State: "s1", CreatedAt: now}))
		require.NoError(t, credentials.PutState(ctx, OAuthStateRecord{TenantID: company.TenantID, Provider: "ga4", State: "s2", CreatedAt: now}))

		_, err := credentials.FindState(ctx, "ga4", "s1", now.Add(-time.Minute))
		require.ErrorIs(t, err, ErrStateNotFound)
		_, err = credentials.FindState(ctx, "ga4", "s2", now.Add(time.Minute))
		require.ErrorIs(t, err, ErrStateNotFound)

		found, err := credentials.FindState(ctx, "ga4", "s2", now.Add(-time.Minute))
		require.NoError(t, err)
		require.Equal(t, company.TenantID, found.TenantID)

		err = db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := credentials.Tx(tx).ConsumeState(ctx, "ga4", "s2"); err != nil {
				return err
			}
			_, err := credentials.Tx(tx).UpsertCredential(ctx, CredentialRecord{TenantID: company.TenantID, Provider: "ga4", AccessToken: "at", RefreshToken: ptr("rt")})
			return err
		})
		require.NoError(t, err)
		require.ErrorIs(t, credentials.ConsumeState(ctx, "ga4", "s2"), ErrStateNotFound)

		n, err := credentials.CountStates(ctx, company.TenantID)
		require.NoError(t, err)
		require.Zero(t, n)

		cred, err := credentials.GetCredential(ctx, company.TenantID, "ga4")
		require.NoError(t, err)
		require.Equal(t, "rt", *cred.RefreshToken)

		_, err = credentials.SetResource(ctx, company.TenantID, "ga4", "12345", "")
		require.NoError(t, err)
		reauth, err := credentials.UpsertCredential(ctx, CredentialRecord{TenantID: company.TenantID, Provider: "ga4", AccessToken: "at2"})
		require.NoError(t, err)
		require.Equal(t, "at2", reauth.AccessToken)
		require.Equal(t, "rt", *reauth.RefreshToken)
		require.Equal(t, "12345", *reauth.ResourceID)
	})

	t.Run("materialize replaces rows", func(t *testing.T) {
		ctx := context.Background()
		company := seedCompany(t, ctx, accounts, "rows@co.com")
		rows := []report.Row{
			{"country": "Turkey", "active_users": int64(10), "new_users": int64(4), "sessions": int64(12), "user_engagement_duration": 33.5, "event_count": int64(40), "engagement_rate": 0.5, "conversions": int64(1), "bounce_rate": 0.4},
			{"country": "Germany", "active_users": int64(3), "new_users": int64(1), "sessions": int64(5), "user_engagement_duration": 9.0, "event_count": int64(11), "engagement_rate": 0.2, "conversions": int64(0), "bounce_rate": 0.7},
		}
		fetchedAt := time.Now().UTC()

		n, err := reports.Materialize(ctx, company.TenantID, report.GA4Country, rows, fetchedAt)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
		first, err := reports.List(ctx, company.TenantID, report.GA4Country)
		require.NoError(t, err)

		_, err = reports.Materialize(ctx, company.TenantID, report.GA4Country, rows, fetchedAt.Add(time.Hour))
		require.NoError(t, err)
		second, err := reports.List(ctx, company.TenantID, report.GA4Country)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, "Germany", second[0].String("country"))

		duplicate := append(append([]report.Row{}, rows...), rows[0])
		_, err = reports.Materialize(ctx, company.TenantID, report.GA4Country, duplicate, fetchedAt)
		require.Error(t, err)
		count, err := reports.Count(ctx, company.TenantID, report.GA4Country)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		_, err = reports.Materialize(ctx, company.TenantID, report.GA4Country, nil, fetchedAt)
		require.NoError(t, err)
		count, err = reports.Count(ctx, company.TenantID, report.GA4Country)
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("settings and cascade delete", func(t *testing.T) {
		ctx := context.Background()
		company := seedCompany(t, ctx, accounts, "settings@co.com")

		prefs, err := settings.GetNotifications(ctx, company.TenantID)
		require.NoError(t, err)
		require.True(t, prefs.IntegrationError)
		require.False(t, prefs.PushEnabled)

		prefs, err = settings.UpdateNotifications(ctx, company.TenantID, NotificationPatch{PushEnabled: ptr(true)})
		require.NoError(t, err)
		require.True(t, prefs.PushEnabled)
		require.True(t, prefs.EmailReports)

		billing, err := settings.UpdateBilling(ctx, company.TenantID, BillingPatch{CardLast4: ptr("4242")})
		require.NoError(t, err)
		require.Equal(t, "free", billing.ActivePlan)
		require.True(t, billing.AutoRenew)

		conn, err := credentials.SetConnection(ctx, company.TenantID, "youtube", true, time.Now())
		require.NoError(t, err)
		require.NotNil(t, conn.LastConnected)
		conn, err = credentials.SetConnection(ctx, company.TenantID, "youtube", false, time.Now())
		require.NoError(t, err)
		require.False(t, conn.IsActive)
		require.NotNil(t, conn.LastConnected)

		require.NoError(t, accounts.DeleteTenant(ctx, company.TenantID))
		require.ErrorIs(t, accounts.DeleteTenant(ctx, company.TenantID), ErrTenantNotFound)
		_, err = accounts.GetTenant(ctx, company.TenantID)
		require.ErrorIs(t, err, ErrTenantNotFound)
		list, err := credentials.ListConnections(ctx, company.TenantID)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}

func TestMigrationURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pgx5://u:p@h:5432/db", migrationURL("postgres://u:p@h:5432/db"))
	require.Equal(t, "pgx5://u@h/db", migrationURL("postgresql://u@h/db"))
	require.Equal(t, "pgx5://h/db", migrationURL("pgx5://h/db"))
}
