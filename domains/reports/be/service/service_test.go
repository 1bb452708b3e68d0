package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	connservice "github.com/infofluencer/infofluencer/domains/connections/be/service"
	"github.com/infofluencer/infofluencer/domains/reports/be/fetcher"
	"github.com/infofluencer/infofluencer/platform/go/events"
	"github.com/infofluencer/infofluencer/platform/go/lock"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/storage"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

type mockRepository struct {
	mu            sync.Mutex
	materializeFn func(ctx context.Context, tenantID uuid.UUID, t report.Type, rows []report.Row, at time.Time) (int64, error)
	listFn        func(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error)
	stamped       []report.Provider
}

func (m *mockRepository) Materialize(ctx context.Context, tenantID uuid.UUID, t report.Type, rows []report.Row, at time.Time) (int64, error) {
	if m.materializeFn == nil {
		panic("materializeFn not configured")
	}
	return m.materializeFn(ctx, tenantID, t, rows, at)
}

func (m *mockRepository) List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, tenantID, t)
}

func (m *mockRepository) StampLastFetch(_ context.Context, _ uuid.UUID, provider report.Provider, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stamped = append(m.stamped, provider)
	return nil
}

type mockCredentials struct {
	ensureFreshFn func(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (connservice.Credential, error)
}

func (m *mockCredentials) EnsureFresh(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (connservice.Credential, error) {
	if m.ensureFreshFn == nil {
		panic("ensureFreshFn not configured")
	}
	return m.ensureFreshFn(ctx, tenantID, provider)
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, t report.Type, req fetcher.Request) ([]report.Row, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, t report.Type, req fetcher.Request) ([]report.Row, error) {
	if m.fetchFn == nil {
		panic("fetchFn not configured")
	}
	return m.fetchFn(ctx, t, req)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var (
	testRole = tenant.Company{Profile: tenant.CompanyProfile{TenantID: uuid.MustParse("0d9b3c62-5c3e-4b57-9a8e-2f1f9f0c7e21"), CompanyName: "Acme"}}
	fixedNow = time.Date(2025, 5, 27, 10, 15, 0, 0, time.UTC)
)

func connected(resourceID string) *mockCredentials {
	return &mockCredentials{ensureFreshFn: func(_ context.Context, tenantID uuid.UUID, provider report.Provider) (connservice.Credential, error) {
		return connservice.Credential{TenantID: tenantID, Provider: provider, AccessToken: "token", ResourceID: resourceID}, nil
	}}
}

func countryRow(t *testing.T, country string, users int) report.Row {
	t.Helper()
	row, err := report.Normalize(report.GA4Country.Descriptor(), map[string]any{
		"country":     country,
		"activeUsers": float64(users),
		"newUsers":    "4",
		"sessions":    "10",
	})
	require.NoError(t, err)
	return row
}

func testContext(t *testing.T) context.Context {
	return platformlogging.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestFetchMaterializesArchivesAndPublishes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	publisher := &recordingPublisher{}
	var stored []report.Row
	repo := &mockRepository{
		materializeFn: func(_ context.Context, tenantID uuid.UUID, typ report.Type, rows []report.Row, at time.Time) (int64, error) {
			require.Equal(t, testRole.TenantID(), tenantID)
			require.Equal(t, report.GA4Country, typ)
			require.Equal(t, fixedNow, at)
			stored = rows
			return int64(len(rows)), nil
		},
	}
	f := &mockFetcher{fetchFn: func(_ context.Context, typ report.Type, req fetcher.Request) ([]report.Row, error) {
		require.Equal(t, "12345", req.ResourceID)
		return []report.Row{countryRow(t, "Turkey", 120), countryRow(t, "Germany", 80)}, nil
	}}

	svc := New(repo, connected("12345"), f, nil, Config{
		Archive:   storage.NewLocalArchive(dir),
		EnvKey:    "test",
		Publisher: publisher,
		Now:       func() time.Time { return fixedNow },
	})

	res, err := svc.Fetch(testContext(t), testRole, report.GA4Country)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Len(t, stored, 2)
	for _, row := range res.Rows {
		for _, col := range []string{"country", "active_users", "new_users", "sessions"} {
			require.Contains(t, row, col)
		}
	}
	require.Equal(t, []report.Provider{report.ProviderGA4}, repo.stamped)

	require.Len(t, publisher.events, 1)
	require.Equal(t, events.TypeReportMaterialized, publisher.events[0].Type)
	require.Equal(t, "country", publisher.events[0].ReportType)
	require.Equal(t, 2, publisher.events[0].Rows)

	path := filepath.Join(dir, "test", "company-"+tenant.ShortID(testRole.TenantID()), "reports", "ga4", "country", "20250527T101500Z.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Len(t, snap["rows"], 2)
}

func TestFetchRequiresResource(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, connected(""), &mockFetcher{}, nil, Config{})
	_, err := svc.Fetch(testContext(t), testRole, report.InstagramMedia)
	require.ErrorIs(t, err, ErrResourceRequired)

	yt := &mockFetcher{fetchFn: func(context.Context, report.Type, fetcher.Request) ([]report.Row, error) { return []report.Row{}, nil }}
	repo := &mockRepository{materializeFn: func(context.Context, uuid.UUID, report.Type, []report.Row, time.Time) (int64, error) { return 0, nil }}
	_, err = New(repo, connected(""), yt, nil, Config{}).Fetch(testContext(t), testRole, report.YouTubeDeviceType)
	require.NoError(t, err)
}

func TestFetchPropagatesCredentialErrors(t *testing.T) {
	t.Parallel()

	creds := &mockCredentials{ensureFreshFn: func(context.Context, uuid.UUID, report.Provider) (connservice.Credential, error) {
		return connservice.Credential{}, connservice.ErrRefreshFailed
	}}
	svc := New(&mockRepository{}, creds, &mockFetcher{}, nil, Config{})
	_, err := svc.Fetch(testContext(t), testRole, report.GA4Age)
	require.ErrorIs(t, err, connservice.ErrRefreshFailed)

	_, err = svc.Fetch(testContext(t), testRole, report.Type(0))
	require.ErrorIs(t, err, report.ErrUnsupportedReportType)
}

func TestFetchRejectsInvalidRowsWithoutWriting(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{fetchFn: func(context.Context, report.Type, fetcher.Request) ([]report.Row, error) {
		return []report.Row{{"country": "Turkey"}}, nil
	}}
	svc := New(&mockRepository{}, connected("1"), f, nil, Config{})
	_, err := svc.Fetch(testContext(t), testRole, report.GA4Country)
	require.ErrorIs(t, err, ErrInvalidRows)
}

func TestFetchProviderErrorLeavesStoredRows(t *testing.T) {
	t.Parallel()

	apiErr := &report.ProviderAPIError{Provider: report.ProviderGA4, StatusCode: 403, Message: "permission denied"}
	f := &mockFetcher{fetchFn: func(context.Context, report.Type, fetcher.Request) ([]report.Row, error) {
		return nil, apiErr
	}}
	svc := New(&mockRepository{}, connected("1"), f, nil, Config{})
	_, err := svc.Fetch(testContext(t), testRole, report.GA4City)
	var got *report.ProviderAPIError
	require.True(t, errors.As(err, &got))
	require.Equal(t, 403, got.StatusCode)
}

func TestFetchInProgress(t *testing.T) {
	t.Parallel()

	locker := lock.NewLocalLocker()
	held, err := locker.Acquire(context.Background(), lockKey(testRole.TenantID(), report.ProviderGA4), time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	svc := New(&mockRepository{}, connected("1"), &mockFetcher{}, nil, Config{Locker: locker})
	_, err = svc.Fetch(testContext(t), testRole, report.GA4City)
	require.ErrorIs(t, err, ErrFetchInProgress)
}

func TestFetchAllContinuesPastFailures(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	materialized := map[report.Type]int{}
	repo := &mockRepository{materializeFn: func(_ context.Context, _ uuid.UUID, typ report.Type, rows []report.Row, _ time.Time) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		materialized[typ] = len(rows)
		return int64(len(rows)), nil
	}}
	f := &mockFetcher{fetchFn: func(_ context.Context, typ report.Type, _ fetcher.Request) ([]report.Row, error) {
		switch typ {
		case report.GA4Country:
			return []report.Row{countryRow(t, "Turkey", 1)}, nil
		case report.GA4Age:
			return nil, &report.ProviderAPIError{Provider: report.ProviderGA4, StatusCode: 429, Message: "quota exceeded"}
		default:
			return []report.Row{}, nil
		}
	}}

	svc := New(repo, connected("12345"), f, nil, Config{})
	summary, err := svc.FetchAll(testContext(t), testRole, report.ProviderGA4)
	require.NoError(t, err)
	require.Equal(t, report.ProviderGA4, summary.Provider)
	require.Len(t, summary.Results, len(report.TypesFor(report.ProviderGA4)))
	require.Equal(t, 1, summary.Failed())

	for _, r := range summary.Results {
		switch r.ReportType {
		case "country":
			require.Equal(t, 1, r.Rows)
		case "age":
			require.Contains(t, r.Error, "quota exceeded")
		default:
			require.Empty(t, r.Error)
		}
	}
	require.Len(t, materialized, len(report.TypesFor(report.ProviderGA4))-1)
}

func TestList(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{listFn: func(_ context.Context, _ uuid.UUID, typ report.Type) ([]report.Row, error) {
		require.Equal(t, report.YouTubeTopSubscribers, typ)
		return []report.Row{{"video_id": "abc"}}, nil
	}}
	svc := New(repo, connected(""), &mockFetcher{}, nil, Config{})
	rows, err := svc.List(testContext(t), testRole.TenantID(), report.YouTubeTopSubscribers)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
