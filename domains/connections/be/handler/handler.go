package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/domains/connections/be/service"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
	"github.com/infofluencer/infofluencer/platform/go/validation"
)

type operation string

const (
	startOperation       operation = "connectionsStart"
	callbackOperation    operation = "connectionsCallback"
	statusOperation      operation = "connectionsStatus"
	disconnectOperation  operation = "connectionsDisconnect"
	getResourceOperation operation = "connectionsGetResource"
	setResourceOperation operation = "connectionsSetResource"
)

// BulkFetcher runs every report of a provider; saving a GA4 property id
// triggers it.
type BulkFetcher interface {
	FetchAll(ctx context.Context, role tenant.Role, provider report.Provider) (report.FetchSummary, error)
}

// Handler exposes the OAuth flow and connection management over HTTP.
type Handler struct {
	svc     service.Service
	fetcher BulkFetcher
	logger  *zap.Logger
}

// New constructs a Handler instance. fetcher may be nil.
func New(svc service.Service, fetcher BulkFetcher, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("connections service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, fetcher: fetcher, logger: logger}
}

type startResponse struct {
	AuthURL string `json:"auth_url"`
}

type statusResponse struct {
	Provider      string     `json:"provider"`
	Connected     bool       `json:"connected"`
	ResourceID    string     `json:"resource_id,omitempty"`
	ResourceName  string     `json:"resource_name,omitempty"`
	LastDataFetch *time.Time `json:"last_data_fetch"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

type resourceRequest struct {
	ResourceID   string `json:"resource_id" validate:"required,max=64"`
	ResourceName string `json:"resource_name,omitempty" validate:"max=200"`
}

type resourceResponse struct {
	Provider     string               `json:"provider"`
	ResourceID   string               `json:"resource_id"`
	ResourceName string               `json:"resource_name"`
	Fetch        *report.FetchSummary `json:"fetch,omitempty"`
}

// Routes mounts the authenticated connection routes. The callback is
// mounted separately because providers call it without a bearer token.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{provider}/start", h.Start)
	r.Get("/{provider}/status", h.Status)
	r.Delete("/{provider}", h.Disconnect)
	r.Get("/{provider}/resource", h.GetResource)
	r.Put("/{provider}/resource", h.SetResource)
}

// Start handles GET /connections/{provider}/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	provider, role, ok := h.scope(w, r, startOperation)
	if !ok {
		return
	}
	authURL, err := h.svc.Start(r.Context(), role.TenantID(), provider)
	if err != nil {
		h.writeError(w, r, err, startOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, startResponse{AuthURL: authURL})
}

// Callback handles GET /connections/{provider}/callback. Every outcome is a
// redirect back to the frontend.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, err := report.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err, callbackOperation)
		return
	}
	q := r.URL.Query()
	res := h.svc.Callback(r.Context(), provider, service.CallbackInput{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if res.Err != nil {
		h.loggerFrom(r.Context()).Info("oauth callback redirected with error",
			zap.String("operation", string(callbackOperation)),
			zap.String("provider", string(provider)),
			zap.Error(res.Err),
		)
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

// Status handles GET /connections/{provider}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	provider, role, ok := h.scope(w, r, statusOperation)
	if !ok {
		return
	}
	st, err := h.svc.Status(r.Context(), role.TenantID(), provider)
	if err != nil {
		h.writeError(w, r, err, statusOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, statusResponse{
		Provider:      string(st.Provider),
		Connected:     st.Connected,
		ResourceID:    st.ResourceID,
		ResourceName:  st.ResourceName,
		LastDataFetch: st.LastDataFetch,
		ExpiresAt:     st.ExpiresAt,
	})
}

// Disconnect handles DELETE /connections/{provider}.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	provider, role, ok := h.scope(w, r, disconnectOperation)
	if !ok {
		return
	}
	if err := h.svc.Disconnect(r.Context(), role.TenantID(), provider); err != nil {
		h.writeError(w, r, err, disconnectOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetResource handles GET /connections/{provider}/resource.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	provider, role, ok := h.scope(w, r, getResourceOperation)
	if !ok {
		return
	}
	res, err := h.svc.GetResource(r.Context(), role.TenantID(), provider)
	if err != nil {
		h.writeError(w, r, err, getResourceOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, resourceResponse{Provider: string(provider), ResourceID: res.ID, ResourceName: res.Name})
}

// SetResource handles PUT /connections/{provider}/resource. Saving a GA4
// property id runs a full GA4 fetch; individual report failures are
// reported in the summary and do not fail the save.
func (h *Handler) SetResource(w http.ResponseWriter, r *http.Request) {
	provider, role, ok := h.scope(w, r, setResourceOperation)
	if !ok {
		return
	}
	var body resourceRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, setResourceOperation)
		return
	}

	res, err := h.svc.SetResource(r.Context(), role.TenantID(), provider, service.Resource{ID: body.ResourceID, Name: body.ResourceName})
	if err != nil {
		h.writeError(w, r, err, setResourceOperation)
		return
	}
	resp := resourceResponse{Provider: string(provider), ResourceID: res.ID, ResourceName: res.Name}

	if provider == report.ProviderGA4 && h.fetcher != nil {
		summary, err := h.fetcher.FetchAll(r.Context(), role, provider)
		if err != nil {
			h.loggerFrom(r.Context()).Warn("fetch after resource save failed",
				zap.String("operation", string(setResourceOperation)),
				zap.Error(err),
			)
		} else {
			resp.Fetch = &summary
		}
	}
	problem.WriteJSON(w, http.StatusOK, resp)
}

// scope resolves the provider path segment and the caller's tenant role.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request, op operation) (report.Provider, tenant.Role, bool) {
	role, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, tenant.ErrProfileNotFound, op)
		return "", nil, false
	}
	provider, err := report.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err, op)
		return "", nil, false
	}
	return provider, role, true
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
		logger.Error("connections operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("connections resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("connections request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	p := problem.New(title, detail, problemType, status, fields)
	var apiErr *report.ProviderAPIError
	if errors.As(err, &apiErr) {
		p.Provider = &problem.ProviderDetails{Name: string(apiErr.Provider), Status: apiErr.StatusCode, Message: apiErr.Message}
	}
	return p
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors problem.FieldErrors) {
	var (
		svcValidation *service.ValidationError
		reqValidation *validation.Error
		apiErr        *report.ProviderAPIError
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
	case errors.Is(err, tenant.ErrProfileNotFound):
		return http.StatusForbidden, "Forbidden", "no tenant profile for this account", problem.TypeForbidden, nil
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusBadRequest, "Invalid state", "restart the authorization flow", problem.TypeValidation, nil
	case errors.Is(err, service.ErrTokenExchangeFailed):
		return http.StatusBadGateway, "Token exchange failed", err.Error(), problem.TypeReconnect, nil
	case errors.Is(err, service.ErrRefreshFailed):
		return http.StatusConflict, "Reconnect required", err.Error(), problem.TypeReconnect, nil
	case errors.Is(err, service.ErrNotConnected):
		return http.StatusNotFound, "Not connected", err.Error(), problem.TypeNotFound, nil
	case errors.Is(err, service.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, "Provider unavailable", err.Error(), problem.TypeProviderError, nil
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "Provider error", apiErr.Error(), problem.TypeProviderError, nil
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
