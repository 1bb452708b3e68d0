package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	NotificationSettingsTable = "notification_settings"
	SecuritySettingsTable     = "security_settings"
	BillingSettingsTable      = "billing_settings"
)

// NotificationSettings are per-tenant notification preferences.
type NotificationSettings struct {
	EmailReports     bool      `db:"email_reports"`
	CampaignEnd      bool      `db:"campaign_end"`
	IntegrationError bool      `db:"integration_error"`
	PushEnabled      bool      `db:"push_enabled"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// NotificationPatch updates only the non-nil fields.
type NotificationPatch struct {
	EmailReports     *bool
	CampaignEnd      *bool
	IntegrationError *bool
	PushEnabled      *bool
}

// SecuritySettings are per-tenant security flags.
type SecuritySettings struct {
	TwoFactorEnabled   bool      `db:"two_factor_enabled"`
	LastPasswordChange time.Time `db:"last_password_change"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// BillingSettings are per-tenant plan and payment details.
type BillingSettings struct {
	ActivePlan string    `db:"active_plan"`
	CardLast4  string    `db:"card_last4"`
	AutoRenew  bool      `db:"auto_renew"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// BillingPatch updates only the non-nil fields.
type BillingPatch struct {
	ActivePlan *string
	CardLast4  *string
	AutoRenew  *bool
}

// SettingsStore get-or-creates and patches the one-per-tenant settings rows.
type SettingsStore struct {
	q Querier
}

// NewSettingsStore returns a store bound to q.
func NewSettingsStore(q Querier) *SettingsStore {
	if q == nil {
		panic("settings store requires querier")
	}
	return &SettingsStore{q: q}
}

// Tx returns a copy of the store bound to tx.
func (s *SettingsStore) Tx(tx pgx.Tx) *SettingsStore {
	return &SettingsStore{q: tx}
}

func (s *SettingsStore) ensure(ctx context.Context, table string, tenantID uuid.UUID) error {
	_, err := s.q.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (tenant_id) VALUES ($1) ON CONFLICT (tenant_id) DO NOTHING`, table), tenantID)
	if err != nil {
		return fmt.Errorf("ensure %s: %w", table, err)
	}
	return nil
}

// GetNotifications returns the tenant's preferences, creating defaults.
func (s *SettingsStore) GetNotifications(ctx context.Context, tenantID uuid.UUID) (NotificationSettings, error) {
	if err := s.ensure(ctx, NotificationSettingsTable, tenantID); err != nil {
		return NotificationSettings{}, err
	}
	var out NotificationSettings
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        SELECT email_reports, campaign_end, integration_error, push_enabled, updated_at
        FROM %s WHERE tenant_id = $1
    `, NotificationSettingsTable), tenantID).Scan(&out.EmailReports, &out.CampaignEnd, &out.IntegrationError, &out.PushEnabled, &out.UpdatedAt)
	if err != nil {
		return NotificationSettings{}, fmt.Errorf("get notification settings: %w", err)
	}
	return out, nil
}

// UpdateNotifications applies patch, creating defaults first.
func (s *SettingsStore) UpdateNotifications(ctx context.Context, tenantID uuid.UUID, patch NotificationPatch) (NotificationSettings, error) {
	if err := s.ensure(ctx, NotificationSettingsTable, tenantID); err != nil {
		return NotificationSettings{}, err
	}
	var out NotificationSettings
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET
            email_reports = COALESCE($2, email_reports),
            campaign_end = COALESCE($3, campaign_end),
            integration_error = COALESCE($4, integration_error),
            push_enabled = COALESCE($5, push_enabled),
            updated_at = NOW()
        WHERE tenant_id = $1
        RETURNING email_reports, campaign_end, integration_error, push_enabled, updated_at
    `, NotificationSettingsTable), tenantID, patch.EmailReports, patch.CampaignEnd, patch.IntegrationError, patch.PushEnabled).
		Scan(&out.EmailReports, &out.CampaignEnd, &out.IntegrationError, &out.PushEnabled, &out.UpdatedAt)
	if err != nil {
		return NotificationSettings{}, fmt.Errorf("update notification settings: %w", err)
	}
	return out, nil
}

// GetSecurity returns the tenant's security flags, creating defaults.
func (s *SettingsStore) GetSecurity(ctx context.Context, tenantID uuid.UUID) (SecuritySettings, error) {
	if err := s.ensure(ctx, SecuritySettingsTable, tenantID); err != nil {
		return SecuritySettings{}, err
	}
	var out SecuritySettings
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        SELECT two_factor_enabled, last_password_change, updated_at FROM %s WHERE tenant_id = $1
    `, SecuritySettingsTable), tenantID).Scan(&out.TwoFactorEnabled, &out.LastPasswordChange, &out.UpdatedAt)
	if err != nil {
		return SecuritySettings{}, fmt.Errorf("get security settings: %w", err)
	}
	return out, nil
}

// UpdateSecurity sets the two-factor flag; passwordChanged stamps
// last_password_change.
func (s *SettingsStore) UpdateSecurity(ctx context.Context, tenantID uuid.UUID, twoFactor *bool, passwordChanged bool) (SecuritySettings, error) {
	if err := s.ensure(ctx, SecuritySettingsTable, tenantID); err != nil {
		return SecuritySettings{}, err
	}
	var out SecuritySettings
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET
            two_factor_enabled = COALESCE($2, two_factor_enabled),
            last_password_change = CASE WHEN $3 THEN NOW() ELSE last_password_change END,
            updated_at = NOW()
        WHERE tenant_id = $1
        RETURNING two_factor_enabled, last_password_change, updated_at
    `, SecuritySettingsTable), tenantID, twoFactor, passwordChanged).Scan(&out.TwoFactorEnabled, &out.LastPasswordChange, &out.UpdatedAt)
	if err != nil {
		return SecuritySettings{}, fmt.Errorf("update security settings: %w", err)
	}
	return out, nil
}

// GetBilling returns the tenant's billing row, creating defaults.
func (s *SettingsStore) GetBilling(ctx context.Context, tenantID uuid.UUID) (BillingSettings, error) {
	if err := s.ensure(ctx, BillingSettingsTable, tenantID); err != nil {
		return BillingSettings{}, err
	}
	var out BillingSettings
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        SELECT active_plan, card_last4, auto_renew, updated_at FROM %s WHERE tenant_id = $1
    `, BillingSettingsTable), tenantID).Scan(&out.ActivePlan, &out.CardLast4, &out.AutoRenew, &out.UpdatedAt)
	if err != nil {
		return BillingSettings{}, fmt.Errorf("get billing settings: %w", err)
	}
	return out, nil
}

// UpdateBilling applies patch, creating defaults first.
func (s *SettingsStore) UpdateBilling(ctx context.Context, tenantID uuid.UUID, patch BillingPatch) (BillingSettings, error) {
	if err := s.ensure(ctx, BillingSettingsTable, tenantID); err != nil {
		return BillingSettings{}, err
	}
	var out BillingSettings
	err := s.q.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET
            active_plan = COALESCE($2, active_plan),
            card_last4 = COALESCE($3, card_last4),
            auto_renew = COALESCE($4, auto_renew),
            updated_at = NOW()
        WHERE tenant_id = $1
        RETURNING active_plan, card_last4, auto_renew, updated_at
    `, BillingSettingsTable), tenantID, patch.ActivePlan, patch.CardLast4, patch.AutoRenew).Scan(&out.ActivePlan, &out.CardLast4, &out.AutoRenew, &out.UpdatedAt)
	if err != nil {
		return BillingSettings{}, fmt.Errorf("update billing settings: %w", err)
	}
	return out, nil
}
