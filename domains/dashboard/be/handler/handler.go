package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/domains/dashboard/be/service"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
	tenantmiddleware "github.com/infofluencer/infofluencer/platform/go/tenant/middleware"
)

type operation string

const (
	overviewOperation           operation = "dashboardOverview"
	audienceOperation           operation = "dashboardAudience"
	audienceCombinedOperation   operation = "dashboardAudienceCombined"
	trafficOperation            operation = "dashboardTraffic"
	youtubeOperation            operation = "dashboardYouTube"
	influencerOverviewOperation operation = "dashboardInfluencerOverview"
)

// errWrongRole rejects callers whose tenant kind cannot see a view.
var errWrongRole = errors.New("dashboard not available for this account type")

// Handler exposes read-only dashboard views over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("dashboard service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the dashboard routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.RequireCompany)
		r.Get("/overview", h.Overview)
		r.Get("/audience", h.Audience)
		r.Get("/audience/combined", h.AudienceCombined)
		r.Get("/traffic", h.Traffic)
		r.Get("/youtube", h.YouTube)
	})
	r.With(tenantmiddleware.RequireInfluencer).Get("/influencer/overview", h.InfluencerOverview)
}

// Overview handles GET /dashboard/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	companyView(h, w, r, overviewOperation, h.svc.Overview)
}

// Audience handles GET /dashboard/audience.
func (h *Handler) Audience(w http.ResponseWriter, r *http.Request) {
	companyView(h, w, r, audienceOperation, h.svc.Audience)
}

// AudienceCombined handles GET /dashboard/audience/combined.
func (h *Handler) AudienceCombined(w http.ResponseWriter, r *http.Request) {
	companyView(h, w, r, audienceCombinedOperation, h.svc.AudienceCombined)
}

// Traffic handles GET /dashboard/traffic.
func (h *Handler) Traffic(w http.ResponseWriter, r *http.Request) {
	companyView(h, w, r, trafficOperation, h.svc.Traffic)
}

// YouTube handles GET /dashboard/youtube.
func (h *Handler) YouTube(w http.ResponseWriter, r *http.Request) {
	companyView(h, w, r, youtubeOperation, h.svc.YouTube)
}

// InfluencerOverview handles GET /dashboard/influencer/overview.
func (h *Handler) InfluencerOverview(w http.ResponseWriter, r *http.Request) {
	profile, ok := tenant.InfluencerFromContext(r.Context())
	if !ok {
		h.writeError(w, r, h.roleError(r), influencerOverviewOperation)
		return
	}
	view, err := h.svc.InfluencerOverview(r.Context(), profile)
	if err != nil {
		h.writeError(w, r, err, influencerOverviewOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, view)
}

func companyView[T any](h *Handler, w http.ResponseWriter, r *http.Request, op operation, load func(context.Context, uuid.UUID) (T, error)) {
	profile, ok := tenant.CompanyFromContext(r.Context())
	if !ok {
		h.writeError(w, r, h.roleError(r), op)
		return
	}
	view, err := load(r.Context(), profile.TenantID)
	if err != nil {
		h.writeError(w, r, err, op)
		return
	}
	problem.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) roleError(r *http.Request) error {
	if _, ok := tenant.FromContext(r.Context()); ok {
		return errWrongRole
	}
	return tenant.ErrProfileNotFound
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
	if status >= http.StatusInternalServerError {
		logger.Error("dashboard operation failed", append(fieldsForLog, zap.Error(err))...)
	} else {
		logger.Warn("dashboard request rejected", append(fieldsForLog, zap.Error(err))...)
	}
	return problem.New(title, detail, problemType, status, nil)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string) {
	switch {
	case errors.Is(err, tenant.ErrProfileNotFound):
		return http.StatusForbidden, "Forbidden", "no tenant profile for this account", problem.TypeForbidden
	case errors.Is(err, errWrongRole):
		return http.StatusForbidden, "Forbidden", err.Error(), problem.TypeForbidden
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
