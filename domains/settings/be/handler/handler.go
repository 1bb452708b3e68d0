package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/domains/settings/be/service"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
	"github.com/infofluencer/infofluencer/platform/go/validation"
)

type operation string

const (
	getAccountOperation          operation = "settingsGetAccount"
	updateAccountOperation       operation = "settingsUpdateAccount"
	getNotificationsOperation    operation = "settingsGetNotifications"
	updateNotificationsOperation operation = "settingsUpdateNotifications"
	getSecurityOperation         operation = "settingsGetSecurity"
	updateSecurityOperation      operation = "settingsUpdateSecurity"
	getBillingOperation          operation = "settingsGetBilling"
	updateBillingOperation       operation = "settingsUpdateBilling"
	listConnectionsOperation     operation = "settingsListConnections"
	setConnectionOperation       operation = "settingsSetConnection"
)

var errCompanyOnly = errors.New("account settings are available to company accounts only")

// Handler exposes tenant settings over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("settings service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

type accountRequest struct {
	CompanyName   *string `json:"company_name" validate:"omitempty,max=255"`
	ContactPerson *string `json:"contact_person" validate:"omitempty,max=100"`
	Position      *string `json:"position" validate:"omitempty,max=100"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
}

type notificationsRequest struct {
	EmailReports     *bool `json:"email_reports"`
	CampaignEnd      *bool `json:"campaign_end"`
	IntegrationError *bool `json:"integration_error"`
	PushEnabled      *bool `json:"push_enabled"`
}

type securityRequest struct {
	TwoFactorEnabled *bool  `json:"two_factor_enabled"`
	CurrentPassword  string `json:"current_password"`
	NewPassword      string `json:"new_password" validate:"omitempty,max=128"`
}

type billingRequest struct {
	ActivePlan *string `json:"active_plan" validate:"omitempty,max=30"`
	CardLast4  *string `json:"card_last4" validate:"omitempty,len=4,numeric"`
	AutoRenew  *bool   `json:"auto_renew"`
}

type connectionRequest struct {
	IsActive *bool `json:"is_active"`
}

type connectionsResponse struct {
	Data []service.Connection `json:"data"`
}

// Routes mounts the settings routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/account", h.GetAccount)
	r.Put("/account", h.UpdateAccount)
	r.Get("/notifications", h.GetNotifications)
	r.Put("/notifications", h.UpdateNotifications)
	r.Get("/security", h.GetSecurity)
	r.Put("/security", h.UpdateSecurity)
	r.Get("/billing", h.GetBilling)
	r.Put("/billing", h.UpdateBilling)
	r.Get("/connections", h.ListConnections)
	r.Put("/connections/{provider}", h.SetConnection)
}

// GetAccount handles GET /settings/account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r, getAccountOperation)
	if !ok {
		return
	}
	account, err := h.svc.Account(r.Context(), company.TenantID)
	if err != nil {
		h.writeError(w, r, err, getAccountOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, account)
}

// UpdateAccount handles PUT /settings/account.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r, updateAccountOperation)
	if !ok {
		return
	}
	var body accountRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, updateAccountOperation)
		return
	}
	account, err := h.svc.UpdateAccount(r.Context(), company.TenantID, service.AccountPatch{
		CompanyName:   body.CompanyName,
		ContactPerson: body.ContactPerson,
		Position:      body.Position,
		Phone:         body.Phone,
	})
	if err != nil {
		h.writeError(w, r, err, updateAccountOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, account)
}

// GetNotifications handles GET /settings/notifications.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, getNotificationsOperation)
	if !ok {
		return
	}
	prefs, err := h.svc.Notifications(r.Context(), role.TenantID())
	if err != nil {
		h.writeError(w, r, err, getNotificationsOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, prefs)
}

// UpdateNotifications handles PUT /settings/notifications.
func (h *Handler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, updateNotificationsOperation)
	if !ok {
		return
	}
	var body notificationsRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, updateNotificationsOperation)
		return
	}
	prefs, err := h.svc.UpdateNotifications(r.Context(), role.TenantID(), service.NotificationsPatch(body))
	if err != nil {
		h.writeError(w, r, err, updateNotificationsOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, prefs)
}

// GetSecurity handles GET /settings/security.
func (h *Handler) GetSecurity(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, getSecurityOperation)
	if !ok {
		return
	}
	sec, err := h.svc.Security(r.Context(), role.TenantID())
	if err != nil {
		h.writeError(w, r, err, getSecurityOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, sec)
}

// UpdateSecurity handles PUT /settings/security.
func (h *Handler) UpdateSecurity(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, updateSecurityOperation)
	if !ok {
		return
	}
	var body securityRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, updateSecurityOperation)
		return
	}
	sec, err := h.svc.UpdateSecurity(r.Context(), role, service.SecurityPatch(body))
	if err != nil {
		h.writeError(w, r, err, updateSecurityOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, sec)
}

// GetBilling handles GET /settings/billing.
func (h *Handler) GetBilling(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, getBillingOperation)
	if !ok {
		return
	}
	billing, err := h.svc.Billing(r.Context(), role.TenantID())
	if err != nil {
		h.writeError(w, r, err, getBillingOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, billing)
}

// UpdateBilling handles PUT /settings/billing.
func (h *Handler) UpdateBilling(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, updateBillingOperation)
	if !ok {
		return
	}
	var body billingRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, updateBillingOperation)
		return
	}
	billing, err := h.svc.UpdateBilling(r.Context(), role.TenantID(), service.BillingPatch(body))
	if err != nil {
		h.writeError(w, r, err, updateBillingOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, billing)
}

// ListConnections handles GET /settings/connections.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, listConnectionsOperation)
	if !ok {
		return
	}
	conns, err := h.svc.Connections(r.Context(), role.TenantID())
	if err != nil {
		h.writeError(w, r, err, listConnectionsOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, connectionsResponse{Data: conns})
}

// SetConnection handles PUT /settings/connections/{provider}. A missing
// is_active defaults to true.
func (h *Handler) SetConnection(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, setConnectionOperation)
	if !ok {
		return
	}
	provider, err := report.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err, setConnectionOperation)
		return
	}
	var body connectionRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, setConnectionOperation)
		return
	}
	active := true
	if body.IsActive != nil {
		active = *body.IsActive
	}
	conn, err := h.svc.SetConnection(r.Context(), role.TenantID(), provider, active)
	if err != nil {
		h.writeError(w, r, err, setConnectionOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, conn)
}

func (h *Handler) role(w http.ResponseWriter, r *http.Request, op operation) (tenant.Role, bool) {
	role, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, tenant.ErrProfileNotFound, op)
		return nil, false
	}
	return role, true
}

func (h *Handler) company(w http.ResponseWriter, r *http.Request, op operation) (tenant.CompanyProfile, bool) {
	if _, ok := h.role(w, r, op); !ok {
		return tenant.CompanyProfile{}, false
	}
	company, ok := tenant.CompanyFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errCompanyOnly, op)
		return tenant.CompanyProfile{}, false
	}
	return company, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	problem.Write(w, h.problemForError(r.Context(), err, op))
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) problem.Details {
	status, title, detail, problemType, fields := h.classifyError(err)

	logger := h.loggerFrom(ctx)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("settings operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("settings resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("settings request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return problem.New(title, detail, problemType, status, fields)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors problem.FieldErrors) {
	var (
		svcValidation *service.ValidationError
		reqValidation *validation.Error
	)
	switch {
	case errors.As(err, &svcValidation):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", problem.TypeValidation, problem.FieldErrors(svcValidation.Fields)
	case errors.As(err, &reqValidation):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", problem.TypeValidation, reqValidation.Fields
	case errors.Is(err, validation.ErrEmptyBody):
		return http.StatusBadRequest, "Invalid request body", err.Error(), problem.TypeValidation, nil
	case errors.Is(err, report.ErrUnsupportedProvider):
		return http.StatusNotFound, "Unknown provider", err.Error(), problem.TypeNotFound, nil
	case errors.Is(err, errCompanyOnly):
		return http.StatusForbidden, "Forbidden", err.Error(), problem.TypeForbidden, nil
	case errors.Is(err, tenant.ErrProfileNotFound):
		return http.StatusForbidden, "Forbidden", "no tenant profile for this account", problem.TypeForbidden, nil
	case errors.Is(err, persistence.ErrUserNotFound):
		return http.StatusNotFound, "User not found", err.Error(), problem.TypeNotFound, nil
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problem.TypeInternal, nil
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
