package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/infofluencer/infofluencer/domains/connections/be/repo"
	"github.com/infofluencer/infofluencer/platform/go/events"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/metrics"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrInvalidState          = errors.New("invalid or expired oauth state")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrRefreshFailed         = errors.New("token refresh failed; reconnect the provider")
	ErrNotConnected          = errors.New("provider is not connected")
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrMissingParameters     = errors.New("missing code or state")
	ErrAccessDenied          = errors.New("authorization denied by user")
)

const (
	defaultStateTTL  = 10 * time.Minute
	defaultExpiresIn = 3600 * time.Second
	stateBytes       = 32
)

// Callback redirect error flags.
const (
	FlagInvalidState        = "invalid_state"
	FlagTokenExchangeFailed = "token_exchange_failed"
	FlagMissingParameters   = "missing_parameters"
	FlagAccessDenied        = "access_denied"
)

// Credential is the usable view of a stored provider credential.
type Credential struct {
	TenantID      uuid.UUID
	Provider      report.Provider
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	ResourceID    string
	ResourceName  string
	LastDataFetch *time.Time
}

// Status is the connection state shown to the tenant.
type Status struct {
	Provider      report.Provider
	Connected     bool
	ResourceID    string
	ResourceName  string
	LastDataFetch *time.Time
	ExpiresAt     *time.Time
}

// CallbackInput carries the query parameters of a provider redirect.
type CallbackInput struct {
	Code  string
	State string
	Error string
}

// CallbackResult is the outcome of a callback, always expressed as a
// frontend redirect.
type CallbackResult struct {
	TenantID    uuid.UUID
	RedirectURL string
	Err         error
}

// Config configures the connections service.
type Config struct {
	FrontendURL string
	StateTTL    time.Duration
	Publisher   events.Publisher
	Now         func() time.Time
	// Random overrides the state entropy source.
	Random func([]byte) (int, error)
}

// Service defines the business operations for the connections domain.
type Service interface {
	Start(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (string, error)
	Callback(ctx context.Context, provider report.Provider, input CallbackInput) CallbackResult
	EnsureFresh(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (Credential, error)
	Status(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (Status, error)
	Disconnect(ctx context.Context, tenantID uuid.UUID, provider report.Provider) error
	GetResource(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (Resource, error)
	SetResource(ctx context.Context, tenantID uuid.UUID, provider report.Provider, resource Resource) (Resource, error)
	PurgeExpiredStates(ctx context.Context) (int64, error)
}

type service struct {
	repo      repo.Repository
	providers map[report.Provider]OAuthProvider
	cfg       Config
}

// New constructs a connections Service. Providers missing from the map are
// reported as not configured.
func New(r repo.Repository, providers []OAuthProvider, cfg Config) Service {
	if r == nil {
		panic("connections repository is required")
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Random == nil {
		cfg.Random = rand.Read
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	byName := make(map[report.Provider]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &service{repo: r, providers: byName, cfg: cfg}
}

func (s *service) provider(p report.Provider) (OAuthProvider, error) {
	impl, ok := s.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
	}
	return impl, nil
}

func (s *service) Start(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (string, error) {
	impl, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	state, err := s.newState()
	if err != nil {
		return "", err
	}
	if err := s.repo.PutState(ctx, persistence.OAuthStateRecord{
		TenantID:  tenantID,
		Provider:  string(provider),
		State:     state,
		CreatedAt: s.cfg.Now(),
	}); err != nil {
		return "", err
	}
	return impl.AuthCodeURL(state), nil
}

func (s *service) newState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := s.cfg.Random(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *service) Callback(ctx context.Context, provider report.Provider, input CallbackInput) CallbackResult {
	logger := platformlogging.FromContextOr(ctx, zap.NewNop()).With(zap.String("provider", string(provider)))

	fail := func(flag string, err error) CallbackResult {
		metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), flag).Inc()
		logger.Warn("oauth callback failed", zap.String("reason", flag), zap.Error(err))
		return CallbackResult{RedirectURL: s.redirect(url.Values{"error": {flag}}), Err: err}
	}

	if input.Error != "" {
		return fail(FlagAccessDenied, fmt.Errorf("%w: %s", ErrAccessDenied, input.Error))
	}
	if input.Code == "" || input.State == "" {
		return fail(FlagMissingParameters, ErrMissingParameters)
	}
	impl, err := s.provider(provider)
	if err != nil {
		return fail(FlagInvalidState, err)
	}

	now := s.cfg.Now()
	pending, err := s.repo.FindState(ctx, string(provider), input.State, now.Add(-s.cfg.StateTTL))
	if err != nil {
		if errors.Is(err, persistence.ErrStateNotFound) {
			return fail(FlagInvalidState, ErrInvalidState)
		}
		return fail(FlagInvalidState, err)
	}

	token, err := impl.Exchange(ctx, input.Code)
	if err != nil {
		return fail(FlagTokenExchangeFailed, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err))
	}

	rec := persistence.CredentialRecord{
		TenantID:    pending.TenantID,
		Provider:    string(provider),
		AccessToken: token.AccessToken,
		ExpiresAt:   expiryOf(token, now),
		Scope:       scopeOf(token),
	}
	if token.RefreshToken != "" {
		refresh := token.RefreshToken
		rec.RefreshToken = &refresh
	}

	resource, err := impl.Discover(ctx, token.AccessToken)
	if err != nil {
		logger.Warn("resource discovery failed", zap.Error(err))
	} else if resource.ID != "" {
		id := resource.ID
		rec.ResourceID = &id
		rec.ResourceName = resource.Name
	}

	if _, err := s.repo.CompleteAuthorization(ctx, pending, rec, now); err != nil {
		if errors.Is(err, persistence.ErrStateNotFound) {
			return fail(FlagInvalidState, ErrInvalidState)
		}
		return fail(FlagInvalidState, err)
	}

	s.publish(ctx, events.TypeProviderConnected, pending.TenantID, provider)
	metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "success").Inc()
	logger.Info("provider connected", zap.String("tenant_id", pending.TenantID.String()))

	return CallbackResult{
		TenantID:    pending.TenantID,
		RedirectURL: s.redirect(url.Values{string(provider) + "_connected": {"true"}}),
	}
}

func (s *service) redirect(q url.Values) string {
	return s.cfg.FrontendURL + "/dashboard?" + q.Encode()
}

// expiryOf returns now + expires_in; tokens without an expiry get the
// provider default of one hour.
func expiryOf(token *oauth2.Token, now time.Time) *time.Time {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultExpiresIn)
	}
	expiry = expiry.UTC()
	return &expiry
}

func scopeOf(token *oauth2.Token) string {
	if scope, ok := token.Extra("scope").(string); ok {
		return scope
	}
	return ""
}

// NeedsRefresh reports whether a credential with the given expiry must be
// refreshed before use.
func NeedsRefresh(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !expiresAt.After(now)
}

func (s *service) EnsureFresh(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (Credential, error) {
	rec, err := s.repo.GetCredential(ctx, tenantID, string(provider))
	if err != nil {
		return Credential{}, mapPersistenceError(err)
	}
	cred := toCredential(rec)

	now := s.cfg.Now()
	if !NeedsRefresh(cred.ExpiresAt, now) {
		return cred, nil
	}

	logger := platformlogging.FromContextOr(ctx, zap.NewNop()).With(zap.String("provider", string(provider)))
	impl, err := s.provider(provider)
	if err != nil {
		return Credential{}, err
	}

	token, err := impl.Refresh(ctx, cred.AccessToken, cred.RefreshToken)
	if err != nil || token == nil || token.AccessToken == "" {
		metrics.TokenRefreshTotal.WithLabelValues(string(provider), "failure").Inc()
		logger.Warn("token refresh failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return Credential{}, fmt.Errorf("%w: %s", ErrRefreshFailed, provider.DisplayName())
	}

	var rotated *string
	if token.RefreshToken != "" && token.RefreshToken != cred.RefreshToken {
		r := token.RefreshToken
		rotated = &r
	}
	updated, err := s.repo.UpdateTokens(ctx, tenantID, string(provider), token.AccessToken, rotated, expiryOf(token, now))
	if err != nil {
		return Credential{}, mapPersistenceError(err)
	}
	metrics.TokenRefreshTotal.WithLabelValues(string(provider), "success").Inc()
	logger.Info("token refreshed", zap.String("tenant_id", tenantID.String()))
	return toCredential(updated), nil
}

func toCredential(rec persistence.CredentialRecord) Credential {
	cred := Credential{
		TenantID:      rec.TenantID,
		Provider:      report.Provider(rec.Provider),
		AccessToken:   rec.AccessToken,
		ExpiresAt:     rec.ExpiresAt,
		ResourceName:  rec.ResourceName,
		LastDataFetch: rec.LastDataFetch,
	}
	if rec.RefreshToken != nil {
		cred.RefreshToken = *rec.RefreshToken
	}
	if rec.ResourceID != nil {
		cred.ResourceID = *rec.ResourceID
	}
	return cred
}

func (s *service) Status(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (Status, error) {
	rec, err := s.repo.GetCredential(ctx, tenantID, string(provider))
	if errors.Is(err, persistence.ErrCredentialNotFound) {
		return Status{Provider: provider}, nil
	}
	if err != nil {
		return Status{}, err
	}
	cred := toCredential(rec)
	return Status{
		Provider:      provider,
		Connected:     true,
		ResourceID:    cred.ResourceID,
		ResourceName:  cred.ResourceName,
		LastDataFetch: cred.LastDataFetch,
		ExpiresAt:     cred.ExpiresAt,
	}, nil
}

func (s *service) Disconnect(ctx context.Context, tenantID uuid.UUID, provider report.Provider) error {
	if err := s.repo.Disconnect(ctx, tenantID, string(provider), s.cfg.Now()); err != nil {
		return mapPersistenceError(err)
	}
	s.publish(ctx, events.TypeProviderDisconnected, tenantID, provider)
	platformlogging.FromContextOr(ctx, zap.NewNop()).Info("provider disconnected",
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", string(provider)),
	)
	return nil
}

func (s *service) GetResource(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (Resource, error) {
	rec, err := s.repo.GetCredential(ctx, tenantID, string(provider))
	if err != nil {
		return Resource{}, mapPersistenceError(err)
	}
	cred := toCredential(rec)
	return Resource{ID: cred.ResourceID, Name: cred.ResourceName}, nil
}

var numericID = regexp.MustCompile(`^[0-9]+$`)

func (s *service) SetResource(ctx context.Context, tenantID uuid.UUID, provider report.Provider, resource Resource) (Resource, error) {
	if !provider.NeedsResource() {
		return Resource{}, &ValidationError{Fields: FieldErrors{"provider": {fmt.Sprintf("%s has no selectable resource", provider)}}}
	}
	id := NormalizeResourceID(provider, resource.ID)
	if id == "" {
		return Resource{}, &ValidationError{Fields: FieldErrors{"resource_id": {"is required"}}}
	}
	if !numericID.MatchString(id) {
		return Resource{}, &ValidationError{Fields: FieldErrors{"resource_id": {"must be numeric"}}}
	}

	rec, err := s.repo.SetResource(ctx, tenantID, string(provider), id, strings.TrimSpace(resource.Name))
	if err != nil {
		return Resource{}, mapPersistenceError(err)
	}
	cred := toCredential(rec)
	return Resource{ID: cred.ResourceID, Name: cred.ResourceName}, nil
}

// NormalizeResourceID trims the id and strips the GA4 "properties/" prefix.
func NormalizeResourceID(provider report.Provider, id string) string {
	id = strings.TrimSpace(id)
	if provider == report.ProviderGA4 {
		id = strings.TrimPrefix(id, "properties/")
	}
	return id
}

func (s *service) PurgeExpiredStates(ctx context.Context) (int64, error) {
	return s.repo.PurgeStates(ctx, s.cfg.Now().Add(-s.cfg.StateTTL))
}

func (s *service) publish(ctx context.Context, eventType string, tenantID uuid.UUID, provider report.Provider) {
	err := s.cfg.Publisher.Publish(ctx, events.Event{
		Type:       eventType,
		TenantID:   tenantID.String(),
		Provider:   string(provider),
		OccurredAt: s.cfg.Now(),
		Actor:      requesttrace.FromContextOrSystem(ctx),
	})
	if err != nil {
		platformlogging.FromContextOr(ctx, zap.NewNop()).Warn("publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrCredentialNotFound):
		return ErrNotConnected
	case errors.Is(err, persistence.ErrStateNotFound):
		return ErrInvalidState
	default:
		return err
	}
}
