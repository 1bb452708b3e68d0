package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/domains/tenants/be/service"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

type operation string

const (
	listTenantsOperation  operation = "tenantsList"
	getTenantOperation    operation = "tenantsGet"
	deleteTenantOperation operation = "tenantsDelete"
)

// queryError reports malformed query or path parameters.
type queryError struct {
	fields problem.FieldErrors
}

func (e *queryError) Error() string { return "invalid request parameters" }

// Handler exposes tenant administration over HTTP. Routes are expected to be
// mounted behind the admin role gate.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant admin routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{tenantId}", h.Get)
	r.Delete("/{tenantId}", h.Delete)
}

// List handles GET /admin/tenants.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err, listTenantsOperation)
		return
	}
	res, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err, listTenantsOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, res)
}

// Get handles GET /admin/tenants/{tenantId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		h.writeError(w, r, err, getTenantOperation)
		return
	}
	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, getTenantOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, detail)
}

// Delete handles DELETE /admin/tenants/{tenantId}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		h.writeError(w, r, err, deleteTenantOperation)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err, deleteTenantOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tenantID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantId"))
	if err != nil {
		return uuid.Nil, &queryError{fields: problem.FieldErrors{"tenantId": {"must be a valid UUID"}}}
	}
	return id, nil
}

func listOptions(r *http.Request) (service.ListOptions, error) {
	q := r.URL.Query()
	fields := problem.FieldErrors{}
	opts := service.ListOptions{Page: 1, PageSize: service.DefaultPageSize}

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields["page"] = []string{"must be a positive integer"}
		}
		opts.Page = n
	}
	if raw := q.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxPageSize {
			fields["page_size"] = []string{"must be between 1 and " + strconv.Itoa(service.MaxPageSize)}
		}
		opts.PageSize = n
	}
	if raw := q.Get("kind"); raw != "" {
		kind, ok := tenant.ParseKind(raw)
		if !ok {
			fields["kind"] = []string{"must be company or influencer"}
		}
		opts.Kind = &kind
	}

	if len(fields) > 0 {
		return service.ListOptions{}, &queryError{fields: fields}
	}
	return opts, nil
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
		logger.Error("tenants operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("tenant not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("tenants request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return problem.New(title, detail, problemType, status, fields)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors problem.FieldErrors) {
	var qErr *queryError
	switch {
	case errors.As(err, &qErr):
		return http.StatusBadRequest, "Validation failed", "one or more parameters are invalid", problem.TypeValidation, qErr.fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Tenant not found", err.Error(), problem.TypeNotFound, nil
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
