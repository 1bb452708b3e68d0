package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	connservice "github.com/infofluencer/infofluencer/domains/connections/be/service"
	"github.com/infofluencer/infofluencer/domains/reports/be/service"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

type operation string

const (
	fetchOperation    operation = "reportsFetch"
	fetchAllOperation operation = "reportsFetchAll"
	listOperation     operation = "reportsList"
)

// Handler exposes report fetch and read endpoints over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("reports service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

type rowsResponse struct {
	Provider   string       `json:"provider"`
	ReportType string       `json:"report_type"`
	Count      int          `json:"count"`
	FetchedAt  *time.Time   `json:"fetched_at,omitempty"`
	Data       []report.Row `json:"data"`
}

// Routes mounts the report routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/{provider}/fetch", h.FetchAll)
	r.Post("/{provider}/{reportType}/fetch", h.Fetch)
	r.Get("/{provider}/{reportType}", h.List)
}

// Fetch handles POST /reports/{provider}/{reportType}/fetch.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, fetchOperation)
	if !ok {
		return
	}
	t, err := parseType(r)
	if err != nil {
		h.writeError(w, r, err, fetchOperation)
		return
	}
	res, err := h.svc.Fetch(r.Context(), role, t)
	if err != nil {
		h.writeError(w, r, err, fetchOperation)
		return
	}
	fetchedAt := res.FetchedAt
	problem.WriteJSON(w, http.StatusOK, rowsResponse{
		Provider:   string(t.Provider()),
		ReportType: t.Name(),
		Count:      len(res.Rows),
		FetchedAt:  &fetchedAt,
		Data:       res.Rows,
	})
}

// FetchAll handles POST /reports/{provider}/fetch.
func (h *Handler) FetchAll(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, fetchAllOperation)
	if !ok {
		return
	}
	provider, err := report.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err, fetchAllOperation)
		return
	}
	summary, err := h.svc.FetchAll(r.Context(), role, provider)
	if err != nil {
		h.writeError(w, r, err, fetchAllOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, summary)
}

// List handles GET /reports/{provider}/{reportType}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	role, ok := h.role(w, r, listOperation)
	if !ok {
		return
	}
	t, err := parseType(r)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}
	rows, err := h.svc.List(r.Context(), role.TenantID(), t)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}
	if rows == nil {
		rows = []report.Row{}
	}
	problem.WriteJSON(w, http.StatusOK, rowsResponse{
		Provider:   string(t.Provider()),
		ReportType: t.Name(),
		Count:      len(rows),
		Data:       rows,
	})
}

func parseType(r *http.Request) (report.Type, error) {
	provider, err := report.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return 0, err
	}
	return report.Parse(provider, chi.URLParam(r, "reportType"))
}

func (h *Handler) role(w http.ResponseWriter, r *http.Request, op operation) (tenant.Role, bool) {
	role, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, tenant.ErrProfileNotFound, op)
		return nil, false
	}
	return role, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	problem.Write(w, h.problemForError(r.Context(), err, op))
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) problem.Details {
	status, title, detail, problemType := h.classifyError(err)

	logger := h.loggerFrom(ctx)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("reports operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("reports resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("reports request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	p := problem.New(title, detail, problemType, status, nil)
	var apiErr *report.ProviderAPIError
	if errors.As(err, &apiErr) {
		p.Provider = &problem.ProviderDetails{Name: string(apiErr.Provider), Status: apiErr.StatusCode, Message: apiErr.Message}
	}
	return p
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string) {
	var apiErr *report.ProviderAPIError
	switch {
	case errors.Is(err, report.ErrUnsupportedProvider), errors.Is(err, report.ErrUnsupportedReportType):
		return http.StatusNotFound, "Unsupported report type", err.Error(), problem.TypeUnsupportedType
	case errors.Is(err, tenant.ErrProfileNotFound):
		return http.StatusForbidden, "Forbidden", "no tenant profile for this account", problem.TypeForbidden
	case errors.Is(err, connservice.ErrNotConnected):
		return http.StatusNotFound, "Not connected", err.Error(), problem.TypeNotFound
	case errors.Is(err, connservice.ErrRefreshFailed):
		return http.StatusConflict, "Reconnect required", err.Error(), problem.TypeReconnect
	case errors.Is(err, connservice.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, "Provider unavailable", err.Error(), problem.TypeProviderError
	case errors.Is(err, service.ErrResourceRequired):
		return http.StatusConflict, "Resource required", err.Error(), problem.TypeConflict
	case errors.Is(err, service.ErrFetchInProgress):
		return http.StatusConflict, "Fetch in progress", err.Error(), problem.TypeConflict
	case errors.Is(err, service.ErrInvalidRows):
		return http.StatusBadGateway, "Provider error", err.Error(), problem.TypeProviderError
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "Provider error", apiErr.Error(), problem.TypeProviderError
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problem.TypeInternal
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
