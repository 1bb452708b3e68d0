package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/infofluencer/infofluencer/domains/settings/be/repo"
	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
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

const minPasswordLength = 8

// Account is the editable company account information.
type Account struct {
	CompanyName   string `json:"company_name"`
	ContactPerson string `json:"contact_person"`
	Position      string `json:"position"`
	Phone         string `json:"phone"`
	WorkEmail     string `json:"work_email"`
}

// AccountPatch updates only the non-nil fields.
type AccountPatch struct {
	CompanyName   *string
	ContactPerson *string
	Position      *string
	Phone         *string
}

// Notifications are the tenant's notification preferences.
type Notifications struct {
	EmailReports     bool `json:"email_reports"`
	CampaignEnd      bool `json:"campaign_end"`
	IntegrationError bool `json:"integration_error"`
	PushEnabled      bool `json:"push_enabled"`
}

// NotificationsPatch updates only the non-nil fields.
type NotificationsPatch struct {
	EmailReports     *bool
	CampaignEnd      *bool
	IntegrationError *bool
	PushEnabled      *bool
}

// Security are the tenant's security flags.
type Security struct {
	TwoFactorEnabled   bool      `json:"two_factor_enabled"`
	LastPasswordChange time.Time `json:"last_password_change"`
}

// SecurityPatch toggles two-factor and optionally changes the password.
type SecurityPatch struct {
	TwoFactorEnabled *bool
	CurrentPassword  string
	NewPassword      string
}

// Billing is the tenant's plan and payment summary.
type Billing struct {
	ActivePlan string `json:"active_plan"`
	CardLast4  string `json:"card_last4"`
	AutoRenew  bool   `json:"auto_renew"`
}

// BillingPatch updates only the non-nil fields.
type BillingPatch struct {
	ActivePlan *string
	CardLast4  *string
	AutoRenew  *bool
}

// Connection is the per-provider connection flag.
type Connection struct {
	Provider      report.Provider `json:"provider"`
	IsActive      bool            `json:"is_active"`
	LastConnected *time.Time      `json:"last_connected"`
}

// Service manages the one-per-tenant settings rows.
type Service interface {
	Account(ctx context.Context, tenantID uuid.UUID) (Account, error)
	UpdateAccount(ctx context.Context, tenantID uuid.UUID, patch AccountPatch) (Account, error)
	Notifications(ctx context.Context, tenantID uuid.UUID) (Notifications, error)
	UpdateNotifications(ctx context.Context, tenantID uuid.UUID, patch NotificationsPatch) (Notifications, error)
	Security(ctx context.Context, tenantID uuid.UUID) (Security, error)
	UpdateSecurity(ctx context.Context, role tenant.Role, patch SecurityPatch) (Security, error)
	Billing(ctx context.Context, tenantID uuid.UUID) (Billing, error)
	UpdateBilling(ctx context.Context, tenantID uuid.UUID, patch BillingPatch) (Billing, error)
	Connections(ctx context.Context, tenantID uuid.UUID) ([]Connection, error)
	SetConnection(ctx context.Context, tenantID uuid.UUID, provider report.Provider, active bool) (Connection, error)
}

// Config tunes the service.
type Config struct {
	Now func() time.Time
}

type service struct {
	repo repo.Repository
	now  func() time.Time
}

// New constructs a settings Service.
func New(r repo.Repository, cfg Config) Service {
	if r == nil {
		panic("settings repository is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &service{repo: r, now: cfg.Now}
}

func (s *service) Account(ctx context.Context, tenantID uuid.UUID) (Account, error) {
	profile, err := s.repo.GetCompanyProfile(ctx, tenantID)
	if err != nil {
		return Account{}, err
	}
	return accountFrom(profile), nil
}

func (s *service) UpdateAccount(ctx context.Context, tenantID uuid.UUID, patch AccountPatch) (Account, error) {
	if patch.CompanyName != nil && *patch.CompanyName == "" {
		return Account{}, &ValidationError{Fields: FieldErrors{"company_name": {"must not be empty"}}}
	}
	profile, err := s.repo.UpdateCompanyProfile(ctx, tenantID, persistence.CompanyProfilePatch{
		CompanyName:   patch.CompanyName,
		ContactPerson: patch.ContactPerson,
		Position:      patch.Position,
		Phone:         patch.Phone,
	})
	if err != nil {
		return Account{}, err
	}
	return accountFrom(profile), nil
}

func accountFrom(p tenant.CompanyProfile) Account {
	return Account{
		CompanyName:   p.CompanyName,
		ContactPerson: p.ContactPerson,
		Position:      p.Position,
		Phone:         p.Phone,
		WorkEmail:     p.WorkEmail,
	}
}

func (s *service) Notifications(ctx context.Context, tenantID uuid.UUID) (Notifications, error) {
	rec, err := s.repo.GetNotifications(ctx, tenantID)
	if err != nil {
		return Notifications{}, err
	}
	return notificationsFrom(rec), nil
}

func (s *service) UpdateNotifications(ctx context.Context, tenantID uuid.UUID, patch NotificationsPatch) (Notifications, error) {
	rec, err := s.repo.UpdateNotifications(ctx, tenantID, persistence.NotificationPatch{
		EmailReports:     patch.EmailReports,
		CampaignEnd:      patch.CampaignEnd,
		IntegrationError: patch.IntegrationError,
		PushEnabled:      patch.PushEnabled,
	})
	if err != nil {
		return Notifications{}, err
	}
	return notificationsFrom(rec), nil
}

func notificationsFrom(rec persistence.NotificationSettings) Notifications {
	return Notifications{
		EmailReports:     rec.EmailReports,
		CampaignEnd:      rec.CampaignEnd,
		IntegrationError: rec.IntegrationError,
		PushEnabled:      rec.PushEnabled,
	}
}

func (s *service) Security(ctx context.Context, tenantID uuid.UUID) (Security, error) {
	rec, err := s.repo.GetSecurity(ctx, tenantID)
	if err != nil {
		return Security{}, err
	}
	return Security{TwoFactorEnabled: rec.TwoFactorEnabled, LastPasswordChange: rec.LastPasswordChange}, nil
}

// UpdateSecurity changes the password only when the current one verifies.
func (s *service) UpdateSecurity(ctx context.Context, role tenant.Role, patch SecurityPatch) (Security, error) {
	if patch.NewPassword == "" {
		rec, err := s.repo.UpdateSecurity(ctx, role.TenantID(), patch.TwoFactorEnabled)
		if err != nil {
			return Security{}, err
		}
		return Security{TwoFactorEnabled: rec.TwoFactorEnabled, LastPasswordChange: rec.LastPasswordChange}, nil
	}

	fields := FieldErrors{}
	if patch.CurrentPassword == "" {
		fields["current_password"] = append(fields["current_password"], "is required")
	}
	if len(patch.NewPassword) < minPasswordLength {
		fields["new_password"] = append(fields["new_password"], fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(fields) > 0 {
		return Security{}, &ValidationError{Fields: fields}
	}

	user, err := s.repo.GetUser(ctx, role.UserID())
	if err != nil {
		return Security{}, err
	}
	if err := platformauth.CheckPassword(user.PasswordHash, patch.CurrentPassword); err != nil {
		if errors.Is(err, platformauth.ErrPasswordMismatch) {
			return Security{}, &ValidationError{Fields: FieldErrors{"current_password": {"is incorrect"}}}
		}
		return Security{}, fmt.Errorf("verify password: %w", err)
	}
	hash, err := platformauth.HashPassword(patch.NewPassword)
	if err != nil {
		return Security{}, fmt.Errorf("hash password: %w", err)
	}
	rec, err := s.repo.ChangePassword(ctx, role.TenantID(), role.UserID(), hash, patch.TwoFactorEnabled)
	if err != nil {
		return Security{}, err
	}
	return Security{TwoFactorEnabled: rec.TwoFactorEnabled, LastPasswordChange: rec.LastPasswordChange}, nil
}

func (s *service) Billing(ctx context.Context, tenantID uuid.UUID) (Billing, error) {
	rec, err := s.repo.GetBilling(ctx, tenantID)
	if err != nil {
		return Billing{}, err
	}
	return Billing{ActivePlan: rec.ActivePlan, CardLast4: rec.CardLast4, AutoRenew: rec.AutoRenew}, nil
}

func (s *service) UpdateBilling(ctx context.Context, tenantID uuid.UUID, patch BillingPatch) (Billing, error) {
	rec, err := s.repo.UpdateBilling(ctx, tenantID, persistence.BillingPatch{
		ActivePlan: patch.ActivePlan,
		CardLast4:  patch.CardLast4,
		AutoRenew:  patch.AutoRenew,
	})
	if err != nil {
		return Billing{}, err
	}
	return Billing{ActivePlan: rec.ActivePlan, CardLast4: rec.CardLast4, AutoRenew: rec.AutoRenew}, nil
}

// Connections lists every provider, reporting never-connected ones as inactive.
func (s *service) Connections(ctx context.Context, tenantID uuid.UUID) ([]Connection, error) {
	recs, err := s.repo.ListConnections(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[report.Provider]persistence.APIConnectionRecord, len(recs))
	for _, rec := range recs {
		byProvider[report.Provider(rec.Provider)] = rec
	}
	out := make([]Connection, 0, len(report.Providers()))
	for _, p := range report.Providers() {
		rec, ok := byProvider[p]
		if !ok {
			out = append(out, Connection{Provider: p})
			continue
		}
		out = append(out, Connection{Provider: p, IsActive: rec.IsActive, LastConnected: rec.LastConnected})
	}
	return out, nil
}

func (s *service) SetConnection(ctx context.Context, tenantID uuid.UUID, provider report.Provider, active bool) (Connection, error) {
	rec, err := s.repo.SetConnection(ctx, tenantID, string(provider), active, s.now().UTC())
	if err != nil {
		return Connection{}, err
	}
	return Connection{Provider: provider, IsActive: rec.IsActive, LastConnected: rec.LastConnected}, nil
}
