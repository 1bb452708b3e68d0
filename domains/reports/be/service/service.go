package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	connservice "github.com/infofluencer/infofluencer/domains/connections/be/service"
	"github.com/infofluencer/infofluencer/domains/reports/be/fetcher"
	"github.com/infofluencer/infofluencer/domains/reports/be/repo"
	"github.com/infofluencer/infofluencer/platform/go/events"
	"github.com/infofluencer/infofluencer/platform/go/lock"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/metrics"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
	"github.com/infofluencer/infofluencer/platform/go/storage"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

// Domain sentinel errors.
var (
	ErrFetchInProgress  = errors.New("a fetch for this provider is already running")
	ErrResourceRequired = errors.New("select a resource for this provider before fetching")
	ErrInvalidRows      = errors.New("provider returned rows that do not match the report layout")
)

const defaultLockTTL = 2 * time.Minute

// CredentialSource yields a usable, refreshed credential.
type CredentialSource interface {
	EnsureFresh(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (connservice.Credential, error)
}

// ReportFetcher calls the provider for one report type.
type ReportFetcher interface {
	Fetch(ctx context.Context, t report.Type, req fetcher.Request) ([]report.Row, error)
}

// Result is a materialized fetch.
type Result struct {
	Type      report.Type
	Rows      []report.Row
	FetchedAt time.Time
}

// Config wires optional collaborators. Nil Locker means an in-process lock,
// nil Archive disables snapshots and nil Publisher drops events.
type Config struct {
	Locker    lock.Locker
	LockTTL   time.Duration
	Archive   storage.Archive
	EnvKey    string
	Publisher events.Publisher
	Now       func() time.Time
}

// Service defines the business operations for the reports domain.
type Service interface {
	Fetch(ctx context.Context, role tenant.Role, t report.Type) (Result, error)
	FetchAll(ctx context.Context, role tenant.Role, provider report.Provider) (report.FetchSummary, error)
	List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error)
}

type service struct {
	repo        repo.Repository
	credentials CredentialSource
	fetcher     ReportFetcher
	validator   *report.Validator
	cfg         Config
}

// New constructs a reports Service.
func New(r repo.Repository, credentials CredentialSource, f ReportFetcher, v *report.Validator, cfg Config) Service {
	if r == nil {
		panic("reports repository is required")
	}
	if credentials == nil {
		panic("credential source is required")
	}
	if f == nil {
		panic("report fetcher is required")
	}
	if v == nil {
		v = report.NewValidator()
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocalLocker()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: r, credentials: credentials, fetcher: f, validator: v, cfg: cfg}
}

func lockKey(tenantID uuid.UUID, provider report.Provider) string {
	return "fetch:" + tenantID.String() + ":" + string(provider)
}

func (s *service) Fetch(ctx context.Context, role tenant.Role, t report.Type) (Result, error) {
	if !t.Valid() {
		return Result{}, report.ErrUnsupportedReportType
	}
	provider := t.Provider()
	cred, err := s.credential(ctx, role.TenantID(), provider)
	if err != nil {
		s.count(t, "credential_error")
		return Result{}, err
	}

	var res Result
	err = s.locked(ctx, role.TenantID(), provider, func(ctx context.Context) error {
		var ferr error
		res, ferr = s.fetchOne(ctx, role, t, cred)
		return ferr
	})
	return res, err
}

func (s *service) FetchAll(ctx context.Context, role tenant.Role, provider report.Provider) (report.FetchSummary, error) {
	summary := report.FetchSummary{Provider: provider, Results: []report.FetchResult{}}
	cred, err := s.credential(ctx, role.TenantID(), provider)
	if err != nil {
		return summary, err
	}

	logger := platformlogging.FromContextOr(ctx, zap.NewNop())
	err = s.locked(ctx, role.TenantID(), provider, func(ctx context.Context) error {
		for _, t := range report.TypesFor(provider) {
			entry := report.FetchResult{ReportType: t.Name()}
			res, ferr := s.fetchOne(ctx, role, t, cred)
			if ferr != nil {
				entry.Error = ferr.Error()
				logger.Warn("report fetch failed; continuing",
					zap.String("report_type", t.String()),
					zap.Error(ferr),
				)
			} else {
				entry.Rows = len(res.Rows)
			}
			summary.Results = append(summary.Results, entry)
		}
		return nil
	})
	return summary, err
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error) {
	if !t.Valid() {
		return nil, report.ErrUnsupportedReportType
	}
	return s.repo.List(ctx, tenantID, t)
}

// credential loads and refreshes the credential and checks the resource id.
func (s *service) credential(ctx context.Context, tenantID uuid.UUID, provider report.Provider) (connservice.Credential, error) {
	cred, err := s.credentials.EnsureFresh(ctx, tenantID, provider)
	if err != nil {
		return connservice.Credential{}, err
	}
	if provider.NeedsResource() && cred.ResourceID == "" {
		return connservice.Credential{}, fmt.Errorf("%w: %s", ErrResourceRequired, provider.DisplayName())
	}
	return cred, nil
}

func (s *service) locked(ctx context.Context, tenantID uuid.UUID, provider report.Provider, fn func(ctx context.Context) error) error {
	err := lock.WithLock(ctx, s.cfg.Locker, lockKey(tenantID, provider), s.cfg.LockTTL, fn)
	if errors.Is(err, lock.ErrLockNotAcquired) {
		return ErrFetchInProgress
	}
	return err
}

// fetchOne fetches, validates and materializes one report. Callers hold the
// provider lock.
func (s *service) fetchOne(ctx context.Context, role tenant.Role, t report.Type, cred connservice.Credential) (Result, error) {
	started := time.Now()
	provider := t.Provider()
	logger := platformlogging.FromContextOr(ctx, zap.NewNop()).With(
		zap.String("tenant_id", role.TenantID().String()),
		zap.String("report_type", t.String()),
	)

	rows, err := s.fetcher.Fetch(ctx, t, fetcher.Request{AccessToken: cred.AccessToken, ResourceID: cred.ResourceID})
	if err != nil {
		s.count(t, "provider_error")
		logger.Warn("provider fetch failed", zap.Error(err))
		return Result{}, err
	}
	if err := s.validator.Validate(t, rows); err != nil {
		s.count(t, "invalid_rows")
		logger.Warn("fetched rows rejected", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRows, err)
	}

	fetchedAt := s.cfg.Now()
	written, err := s.repo.Materialize(ctx, role.TenantID(), t, rows, fetchedAt)
	if err != nil {
		s.count(t, "store_error")
		logger.Error("materialize report", zap.Error(err))
		return Result{}, err
	}
	if err := s.repo.StampLastFetch(ctx, role.TenantID(), provider, fetchedAt); err != nil {
		logger.Warn("stamp last fetch", zap.Error(err))
	}

	s.archive(ctx, logger, role, t, rows, fetchedAt)
	s.publish(ctx, logger, role, t, len(rows), fetchedAt)

	s.count(t, "success")
	metrics.ReportFetchDuration.WithLabelValues(string(provider), t.Name()).Observe(time.Since(started).Seconds())
	metrics.RowsMaterialized.WithLabelValues(string(provider), t.Name()).Add(float64(written))
	logger.Info("report materialized", zap.Int64("rows", written))

	return Result{Type: t, Rows: rows, FetchedAt: fetchedAt}, nil
}

func (s *service) count(t report.Type, outcome string) {
	metrics.ReportFetchTotal.WithLabelValues(string(t.Provider()), t.Name(), outcome).Inc()
}

type snapshot struct {
	TenantID   string       `json:"tenant_id"`
	Provider   string       `json:"provider"`
	ReportType string       `json:"report_type"`
	FetchedAt  time.Time    `json:"fetched_at"`
	Rows       []report.Row `json:"rows"`
}

// archive writes the fetched rows as a JSON snapshot. Failures are logged.
func (s *service) archive(ctx context.Context, logger *zap.Logger, role tenant.Role, t report.Type, rows []report.Row, at time.Time) {
	if s.cfg.Archive == nil {
		return
	}
	loc, err := storage.ResolveObjectLocation(
		tenant.BuildBasePrefix(s.cfg.EnvKey, role),
		s.cfg.Archive.Bucket(),
		storage.SnapshotKey(string(t.Provider()), t.Name(), at),
	)
	if err != nil {
		logger.Warn("resolve snapshot location", zap.Error(err))
		return
	}
	data, err := json.Marshal(snapshot{
		TenantID:   role.TenantID().String(),
		Provider:   string(t.Provider()),
		ReportType: t.Name(),
		FetchedAt:  at,
		Rows:       rows,
	})
	if err != nil {
		logger.Warn("encode snapshot", zap.Error(err))
		return
	}
	if err := s.cfg.Archive.Put(ctx, loc, "application/json", data); err != nil {
		logger.Warn("archive snapshot", zap.String("path", loc.FullPath), zap.Error(err))
	}
}

func (s *service) publish(ctx context.Context, logger *zap.Logger, role tenant.Role, t report.Type, rows int, at time.Time) {
	err := s.cfg.Publisher.Publish(ctx, events.Event{
		Type:       events.TypeReportMaterialized,
		TenantID:   role.TenantID().String(),
		Provider:   string(t.Provider()),
		ReportType: t.Name(),
		Rows:       rows,
		OccurredAt: at,
		Actor:      requesttrace.FromContextOrSystem(ctx),
	})
	if err != nil {
		logger.Warn("publish event", zap.Error(err))
	}
}
