package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/domains/accounts/be/service"
	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/validation"
)

type operation string

const (
	registerOperation operation = "accountsRegister"
	loginOperation    operation = "accountsLogin"
	refreshOperation  operation = "accountsRefresh"
	profileOperation  operation = "accountsProfile"
)

// Handler exposes signup, login, refresh and profile over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("accounts service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Company   string `json:"company,omitempty" validate:"max=200"`
	UserType  string `json:"userType" validate:"required,oneof=company influencer"`
}

type registerResponse struct {
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	UserType string `json:"user_type" validate:"required,oneof=company influencer admin"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type sessionResponse struct {
	Access          string    `json:"access"`
	Refresh         string    `json:"refresh"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	UserType        string    `json:"user_type"`
	UserID          string    `json:"user_id"`
	TenantID        *string   `json:"tenant_id,omitempty"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
}

type profileResponse struct {
	UserID      string             `json:"user_id"`
	Email       string             `json:"email"`
	FirstName   string             `json:"first_name"`
	LastName    string             `json:"last_name"`
	UserType    string             `json:"user_type"`
	LastLoginAt *time.Time         `json:"last_login,omitempty"`
	DateJoined  time.Time          `json:"date_joined"`
	Company     *companyProfile    `json:"company_profile,omitempty"`
	Influencer  *influencerProfile `json:"influencer_profile,omitempty"`
}

type companyProfile struct {
	TenantID      string `json:"tenant_id"`
	CompanyName   string `json:"company_name"`
	ContactPerson string `json:"contact_person"`
	Position      string `json:"position"`
	Phone         string `json:"phone"`
	WorkEmail     string `json:"work_email"`
}

type influencerProfile struct {
	TenantID         string `json:"tenant_id"`
	Email            string `json:"email"`
	InstagramHandle  string `json:"instagram_handle"`
	YouTubeChannelID string `json:"youtube_channel_id"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, registerOperation)
		return
	}

	out, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Company:   body.Company,
		UserType:  body.UserType,
	})
	if err != nil {
		h.writeError(w, r, err, registerOperation)
		return
	}

	problem.WriteJSON(w, http.StatusCreated, registerResponse{
		Message:  "User registered successfully",
		UserID:   out.UserID.String(),
		Email:    out.Email,
		UserType: out.UserType,
	})
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, loginOperation)
		return
	}

	session, err := h.svc.Login(r.Context(), service.LoginInput{Email: body.Email, Password: body.Password, UserType: body.UserType})
	if err != nil {
		h.writeError(w, r, err, loginOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := validation.Decode(r, &body); err != nil {
		h.writeError(w, r, err, refreshOperation)
		return
	}

	session, err := h.svc.Refresh(r.Context(), body.Refresh)
	if err != nil {
		h.writeError(w, r, err, refreshOperation)
		return
	}
	problem.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

// Profile handles GET /auth/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := extractUserID(r.Context())
	if err != nil {
		problem.Write(w, problem.New("Unauthorized", err.Error(), problem.TypeUnauthorized, http.StatusUnauthorized, nil))
		return
	}

	profile, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, profileOperation)
		return
	}

	resp := profileResponse{
		UserID:      profile.UserID.String(),
		Email:       profile.Email,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		UserType:    profile.UserType,
		LastLoginAt: profile.LastLoginAt,
		DateJoined:  profile.CreatedAt,
	}
	if c := profile.Company; c != nil {
		resp.Company = &companyProfile{
			TenantID:      c.TenantID.String(),
			CompanyName:   c.CompanyName,
			ContactPerson: c.ContactPerson,
			Position:      c.Position,
			Phone:         c.Phone,
			WorkEmail:     c.WorkEmail,
		}
	}
	if i := profile.Influencer; i != nil {
		resp.Influencer = &influencerProfile{
			TenantID:         i.TenantID.String(),
			Email:            i.Email,
			InstagramHandle:  i.InstagramHandle,
			YouTubeChannelID: i.YouTubeChannelID,
		}
	}
	problem.WriteJSON(w, http.StatusOK, resp)
}

func toSessionResponse(s service.Session) sessionResponse {
	resp := sessionResponse{
		Access:          s.Tokens.Access,
		Refresh:         s.Tokens.Refresh,
		AccessExpiresAt: s.Tokens.AccessExpiresAt,
		UserType:        s.UserType,
		UserID:          s.UserID.String(),
		Email:           s.Email,
		FirstName:       s.FirstName,
		LastName:        s.LastName,
	}
	if s.TenantID != nil {
		id := s.TenantID.String()
		resp.TenantID = &id
	}
	return resp
}

func extractUserID(ctx context.Context) (uuid.UUID, error) {
	credentials, ok := platformauth.UserFromContext(ctx)
	if !ok || credentials == nil {
		return uuid.Nil, errors.New("missing credentials")
	}
	id, err := uuid.Parse(credentials.ID)
	if err != nil {
		return uuid.Nil, errors.New("invalid user id")
	}
	return id, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, p := h.problemForError(r.Context(), err, op)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	problem.Write(w, p)
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) (int, problem.Details) {
	status, title, detail, problemType, fields := h.classifyError(err)

	logger := h.loggerFrom(ctx)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("accounts operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("accounts resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("accounts request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return status, problem.New(title, detail, problemType, status, fields)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors problem.FieldErrors) {
	var (
		svcValidation *service.ValidationError
		reqValidation *validation.Error
		wrongType     *service.WrongAccountTypeError
	)
	switch {
	case errors.As(err, &svcValidation):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", problem.TypeValidation, problem.FieldErrors(svcValidation.Fields)
	case errors.As(err, &reqValidation):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", problem.TypeValidation, reqValidation.Fields
	case errors.Is(err, validation.ErrEmptyBody):
		return http.StatusBadRequest, "Invalid request body", err.Error(), problem.TypeValidation, nil
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Unauthorized", "Invalid email or password", problem.TypeUnauthorized, nil
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "Unauthorized", err.Error(), problem.TypeUnauthorized, nil
	case errors.As(err, &wrongType):
		return http.StatusForbidden, "Forbidden", wrongType.Error(), problem.TypeForbidden, nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "Conflict", err.Error(), problem.TypeConflict, problem.FieldErrors{"email": {err.Error()}}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found", "user not found", problem.TypeNotFound, nil
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
