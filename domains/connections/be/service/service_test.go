package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/infofluencer/infofluencer/platform/go/events"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

// memRepository mirrors the Postgres repository semantics in memory.
type memRepository struct {
	mu          sync.Mutex
	states      map[string]persistence.OAuthStateRecord
	creds       map[string]persistence.CredentialRecord
	connections map[string]persistence.APIConnectionRecord
	writes      int
}

func newMemRepository() *memRepository {
	return &memRepository{
		states:      map[string]persistence.OAuthStateRecord{},
		creds:       map[string]persistence.CredentialRecord{},
		connections: map[string]persistence.APIConnectionRecord{},
	}
}

func key(tenantID uuid.UUID, provider string) string { return tenantID.String() + "/" + provider }

func (m *memRepository) PutState(_ context.Context, rec persistence.OAuthStateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key(rec.TenantID, rec.Provider)] = rec
	return nil
}

func (m *memRepository) FindState(_ context.Context, provider, state string, notBefore time.Time) (persistence.OAuthStateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.states {
		if rec.State == state && rec.Provider == provider && !rec.CreatedAt.Before(notBefore) {
			return rec, nil
		}
	}
	return persistence.OAuthStateRecord{}, persistence.ErrStateNotFound
}

func (m *memRepository) CompleteAuthorization(_ context.Context, state persistence.OAuthStateRecord, cred persistence.CredentialRecord, at time.Time) (persistence.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(state.TenantID, state.Provider)
	if current, ok := m.states[k]; !ok || current.State != state.State {
		return persistence.CredentialRecord{}, persistence.ErrStateNotFound
	}
	delete(m.states, k)

	if prev, ok := m.creds[k]; ok {
		if cred.RefreshToken == nil {
			cred.RefreshToken = prev.RefreshToken
		}
		if cred.ResourceID == nil {
			cred.ResourceID = prev.ResourceID
			cred.ResourceName = prev.ResourceName
		}
		cred.LastDataFetch = prev.LastDataFetch
	}
	m.creds[k] = cred
	m.writes++
	m.connections[k] = persistence.APIConnectionRecord{TenantID: cred.TenantID, Provider: cred.Provider, IsActive: true, LastConnected: &at}
	return cred, nil
}

func (m *memRepository) GetCredential(_ context.Context, tenantID uuid.UUID, provider string) (persistence.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.creds[key(tenantID, provider)]
	if !ok {
		return persistence.CredentialRecord{}, persistence.ErrCredentialNotFound
	}
	return rec, nil
}

func (m *memRepository) UpdateTokens(_ context.Context, tenantID uuid.UUID, provider, accessToken string, refreshToken *string, expiresAt *time.Time) (persistence.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, provider)
	rec, ok := m.creds[k]
	if !ok {
		return persistence.CredentialRecord{}, persistence.ErrCredentialNotFound
	}
	rec.AccessToken = accessToken
	if refreshToken != nil {
		rec.RefreshToken = refreshToken
	}
	rec.ExpiresAt = expiresAt
	m.creds[k] = rec
	m.writes++
	return rec, nil
}

func (m *memRepository) SetResource(_ context.Context, tenantID uuid.UUID, provider, resourceID, resourceName string) (persistence.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, provider)
	rec, ok := m.creds[k]
	if !ok {
		return persistence.CredentialRecord{}, persistence.ErrCredentialNotFound
	}
	rec.ResourceID = &resourceID
	rec.ResourceName = resourceName
	m.creds[k] = rec
	return rec, nil
}

func (m *memRepository) Disconnect(_ context.Context, tenantID uuid.UUID, provider string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, provider)
	if _, ok := m.creds[k]; !ok {
		return persistence.ErrCredentialNotFound
	}
	delete(m.creds, k)
	conn := m.connections[k]
	conn.IsActive = false
	m.connections[k] = conn
	return nil
}

func (m *memRepository) ListConnections(_ context.Context, tenantID uuid.UUID) ([]persistence.APIConnectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []persistence.APIConnectionRecord{}
	for _, rec := range m.connections {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRepository) SetConnection(_ context.Context, tenantID uuid.UUID, provider string, active bool, at time.Time) (persistence.APIConnectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := persistence.APIConnectionRecord{TenantID: tenantID, Provider: provider, IsActive: active, LastConnected: &at}
	m.connections[key(tenantID, provider)] = rec
	return rec, nil
}

func (m *memRepository) PurgeStates(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rec := range m.states {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.states, k)
			n++
		}
	}
	return n, nil
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

// tokenServer stands in for a provider token endpoint.
type tokenServer struct {
	*httptest.Server
	hits   atomic.Int32
	status int
	body   map[string]any
	forms  chan url.Values
}

func newTokenServer(t *testing.T, body map[string]any) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK, body: body, forms: make(chan url.Values, 8)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		_ = r.ParseForm()
		ts.forms <- r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		_ = json.NewEncoder(w).Encode(ts.body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

type fixture struct {
	svc       Service
	repo      *memRepository
	publisher *recordingPublisher
	now       time.Time
}

func newFixture(t *testing.T, providers ...OAuthProvider) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepository(),
		publisher: &recordingPublisher{},
		now:       time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = New(f.repo, providers, Config{
		FrontendURL: "https://app.infofluencer.io/",
		StateTTL:    10 * time.Minute,
		Publisher:   f.publisher,
		Now:         func() time.Time { return f.now },
	})
	return f
}

func googleFor(ts *tokenServer, name report.Provider) OAuthProvider {
	return NewGoogleProvider(name, ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://api.infofluencer.io/api/v1/connections/" + string(name) + "/callback",
		TokenURL:     ts.URL + "/token",
		HTTPClient:   ts.Client(),
	})
}

func testContext(t *testing.T) context.Context {
	return platformlogging.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestStartBuildsAuthorizationURL(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t, nil)
	f := newFixture(t, googleFor(ts, report.ProviderGA4))
	tenantID := uuid.New()

	authURL, err := f.svc.Start(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Contains(t, q.Get("scope"), "analytics.readonly")
	require.Len(t, f.repo.states, 1)

	state := q.Get("state")
	raw, err := base64.RawURLEncoding.DecodeString(state)
	require.NoError(t, err)
	require.Len(t, raw, stateBytes)

	second, err := f.svc.Start(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	require.NotEqual(t, state, stateFrom(t, second))
	require.Len(t, f.repo.states, 1, "a new start replaces the pending state")
}

func TestStartUnknownProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Start(testContext(t), uuid.New(), report.ProviderYouTube)
	require.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestCallbackStoresCredentialAndConsumesState(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t, map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"scope":         "openid",
	})
	f := newFixture(t, googleFor(ts, report.ProviderGA4))
	tenantID := uuid.New()

	authURL, err := f.svc.Start(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	state := stateFrom(t, authURL)

	res := f.svc.Callback(testContext(t), report.ProviderGA4, CallbackInput{Code: "code-1", State: state})
	require.NoError(t, res.Err)
	require.Equal(t, tenantID, res.TenantID)
	require.Equal(t, "https://app.infofluencer.io/dashboard?ga4_connected=true", res.RedirectURL)

	form := <-ts.forms
	require.Equal(t, "authorization_code", form.Get("grant_type"))
	require.Equal(t, "code-1", form.Get("code"))

	require.Len(t, f.repo.creds, 1)
	require.Empty(t, f.repo.states)
	cred := f.repo.creds[key(tenantID, "ga4")]
	require.Equal(t, "access-1", cred.AccessToken)
	require.Equal(t, "refresh-1", *cred.RefreshToken)
	require.NotNil(t, cred.ExpiresAt)
	require.True(t, f.repo.connections[key(tenantID, "ga4")].IsActive)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, events.TypeProviderConnected, f.publisher.events[0].Type)

	replay := f.svc.Callback(testContext(t), report.ProviderGA4, CallbackInput{Code: "code-1", State: state})
	require.ErrorIs(t, replay.Err, ErrInvalidState)
	require.Contains(t, replay.RedirectURL, "error=invalid_state")
	require.Equal(t, 1, f.repo.writes)
	require.EqualValues(t, 1, ts.hits.Load())
}

func TestCallbackFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     func(state string) CallbackInput
		advance   time.Duration
		status    int
		wantErr   error
		wantFlag  string
		wantCalls int32
	}{
		{
			name:     "provider error",
			input:    func(state string) CallbackInput { return CallbackInput{Error: "access_denied", State: state} },
			wantErr:  ErrAccessDenied,
			wantFlag: FlagAccessDenied,
		},
		{
			name:     "missing code",
			input:    func(state string) CallbackInput { return CallbackInput{State: state} },
			wantErr:  ErrMissingParameters,
			wantFlag: FlagMissingParameters,
		},
		{
			name:     "unknown state",
			input:    func(string) CallbackInput { return CallbackInput{Code: "c", State: "forged"} },
			wantErr:  ErrInvalidState,
			wantFlag: FlagInvalidState,
		},
		{
			name:     "expired state",
			input:    func(state string) CallbackInput { return CallbackInput{Code: "c", State: state} },
			advance:  11 * time.Minute,
			wantErr:  ErrInvalidState,
			wantFlag: FlagInvalidState,
		},
		{
			name:      "token endpoint rejects code",
			input:     func(state string) CallbackInput { return CallbackInput{Code: "bad", State: state} },
			status:    http.StatusBadRequest,
			wantErr:   ErrTokenExchangeFailed,
			wantFlag:  FlagTokenExchangeFailed,
			wantCalls: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := newTokenServer(t, map[string]any{"error": "invalid_grant"})
			if tc.status != 0 {
				ts.status = tc.status
			}
			f := newFixture(t, googleFor(ts, report.ProviderYouTube))
			authURL, err := f.svc.Start(testContext(t), uuid.New(), report.ProviderYouTube)
			require.NoError(t, err)

			f.now = f.now.Add(tc.advance)
			res := f.svc.Callback(testContext(t), report.ProviderYouTube, tc.input(stateFrom(t, authURL)))
			require.ErrorIs(t, res.Err, tc.wantErr)
			require.Equal(t, "https://app.infofluencer.io/dashboard?error="+tc.wantFlag, res.RedirectURL)
			require.Empty(t, f.repo.creds)
			require.Equal(t, tc.wantCalls, ts.hits.Load())
			require.Empty(t, f.publisher.events)
		})
	}
}

func TestCallbackMissingExpiryDefaultsToOneHour(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t, map[string]any{"access_token": "a", "token_type": "Bearer"})
	f := newFixture(t, googleFor(ts, report.ProviderGA4))
	tenantID := uuid.New()

	authURL, err := f.svc.Start(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	res := f.svc.Callback(testContext(t), report.ProviderGA4, CallbackInput{Code: "c", State: stateFrom(t, authURL)})
	require.NoError(t, res.Err)

	cred := f.repo.creds[key(tenantID, "ga4")]
	require.Equal(t, f.now.Add(time.Hour), *cred.ExpiresAt)
	require.Nil(t, cred.RefreshToken)
}

func seedCredential(f *fixture, tenantID uuid.UUID, provider string, expiresAt *time.Time, refresh *string) {
	f.repo.creds[key(tenantID, provider)] = persistence.CredentialRecord{
		TenantID:     tenantID,
		Provider:     provider,
		AccessToken:  "stale-access",
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
}

func ptr[T any](v T) *T { return &v }

func TestEnsureFreshSkipsValidToken(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t, map[string]any{"access_token": "new"})
	f := newFixture(t, googleFor(ts, report.ProviderGA4))
	tenantID := uuid.New()
	expiry := f.now.Add(time.Minute)
	seedCredential(f, tenantID, "ga4", &expiry, ptr("refresh"))

	cred, err := f.svc.EnsureFresh(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	require.Equal(t, "stale-access", cred.AccessToken)
	require.Equal(t, expiry, *cred.ExpiresAt)
	require.Zero(t, ts.hits.Load())

	seedCredential(f, tenantID, "ga4", nil, nil)
	cred, err = f.svc.EnsureFresh(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	require.Nil(t, cred.ExpiresAt)
	require.Zero(t, ts.hits.Load())
}

func TestEnsureFreshRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		response    map[string]any
		wantRefresh string
	}{
		{
			name:        "keeps refresh token when not rotated",
			response:    map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600},
			wantRefresh: "refresh-old",
		},
		{
			name:        "persists rotated refresh token",
			response:    map[string]any{"access_token": "fresh", "refresh_token": "refresh-new", "token_type": "Bearer", "expires_in": 3600},
			wantRefresh: "refresh-new",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := newTokenServer(t, tc.response)
			f := newFixture(t, googleFor(ts, report.ProviderYouTube))
			tenantID := uuid.New()
			expired := f.now
			seedCredential(f, tenantID, "youtube", &expired, ptr("refresh-old"))

			cred, err := f.svc.EnsureFresh(testContext(t), tenantID, report.ProviderYouTube)
			require.NoError(t, err)
			require.Equal(t, "fresh", cred.AccessToken)
			require.True(t, cred.ExpiresAt.After(expired))
			require.Equal(t, tc.wantRefresh, cred.RefreshToken)

			form := <-ts.forms
			require.Equal(t, "refresh_token", form.Get("grant_type"))
			require.Equal(t, "refresh-old", form.Get("refresh_token"))

			stored := f.repo.creds[key(tenantID, "youtube")]
			require.Equal(t, tc.wantRefresh, *stored.RefreshToken)
		})
	}
}

func TestEnsureFreshFailureLeavesCredentialUntouched(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t, map[string]any{"error": "invalid_grant"})
	ts.status = http.StatusBadRequest
	f := newFixture(t, googleFor(ts, report.ProviderGA4))
	tenantID := uuid.New()
	expired := f.now.Add(-time.Hour)
	seedCredential(f, tenantID, "ga4", &expired, ptr("refresh"))

	_, err := f.svc.EnsureFresh(testContext(t), tenantID, report.ProviderGA4)
	require.ErrorIs(t, err, ErrRefreshFailed)

	stored := f.repo.creds[key(tenantID, "ga4")]
	require.Equal(t, "stale-access", stored.AccessToken)
	require.Equal(t, expired, *stored.ExpiresAt)
	require.Zero(t, f.repo.writes)
}

func TestEnsureFreshNotConnected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.EnsureFresh(testContext(t), uuid.New(), report.ProviderGA4)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestNeedsRefresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.False(t, NeedsRefresh(nil, now))
	require.True(t, NeedsRefresh(ptr(now), now))
	require.True(t, NeedsRefresh(ptr(now.Add(-time.Second)), now))
	require.False(t, NeedsRefresh(ptr(now.Add(time.Second)), now))
}

func TestStatusAndDisconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenantID := uuid.New()

	status, err := f.svc.Status(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	require.False(t, status.Connected)

	expiry := f.now.Add(time.Hour)
	seedCredential(f, tenantID, "ga4", &expiry, nil)
	f.repo.creds[key(tenantID, "ga4")] = func() persistence.CredentialRecord {
		rec := f.repo.creds[key(tenantID, "ga4")]
		rec.ResourceID = ptr("12345")
		return rec
	}()

	status, err = f.svc.Status(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	require.True(t, status.Connected)
	require.Equal(t, "12345", status.ResourceID)
	require.Equal(t, expiry, *status.ExpiresAt)

	require.NoError(t, f.svc.Disconnect(testContext(t), tenantID, report.ProviderGA4))
	require.Empty(t, f.repo.creds)
	require.False(t, f.repo.connections[key(tenantID, "ga4")].IsActive)
	require.Equal(t, events.TypeProviderDisconnected, f.publisher.events[0].Type)

	err = f.svc.Disconnect(testContext(t), tenantID, report.ProviderGA4)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSetResource(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenantID := uuid.New()
	seedCredential(f, tenantID, "ga4", nil, nil)

	res, err := f.svc.SetResource(testContext(t), tenantID, report.ProviderGA4, Resource{ID: " properties/12345 ", Name: "Main site"})
	require.NoError(t, err)
	require.Equal(t, Resource{ID: "12345", Name: "Main site"}, res)

	got, err := f.svc.GetResource(testContext(t), tenantID, report.ProviderGA4)
	require.NoError(t, err)
	require.Equal(t, res, got)

	var verr *ValidationError
	_, err = f.svc.SetResource(testContext(t), tenantID, report.ProviderGA4, Resource{ID: "abc"})
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "resource_id")

	_, err = f.svc.SetResource(testContext(t), tenantID, report.ProviderYouTube, Resource{ID: "1"})
	require.True(t, errors.As(err, &verr))

	_, err = f.svc.SetResource(testContext(t), uuid.New(), report.ProviderInstagram, Resource{ID: "1789"})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestPurgeExpiredStates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.repo.states["old"] = persistence.OAuthStateRecord{State: "a", Provider: "ga4", CreatedAt: f.now.Add(-time.Hour)}
	f.repo.states["new"] = persistence.OAuthStateRecord{State: "b", Provider: "ga4", CreatedAt: f.now}

	n, err := f.svc.PurgeExpiredStates(testContext(t))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Len(t, f.repo.states, 1)
}
