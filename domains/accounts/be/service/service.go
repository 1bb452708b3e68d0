package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/domains/accounts/be/repo"
	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
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

// Domain sentinel errors.
var (
	ErrConflict           = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotFound           = errors.New("user not found")
)

// WrongAccountTypeError is returned when the account has no profile for the
// requested user type.
type WrongAccountTypeError struct {
	UserType string
}

func (e *WrongAccountTypeError) Error() string {
	article := "a"
	if e.UserType == platformauth.UserTypeInfluencer || e.UserType == platformauth.UserTypeAdmin {
		article = "an"
	}
	return fmt.Sprintf("This account is not %s %s account", article, e.UserType)
}

const minPasswordLength = 8

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Company   string
	UserType  string
}

// Registered is the result of a signup.
type Registered struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
	UserType string
}

// LoginInput carries credentials and the requested role.
type LoginInput struct {
	Email    string
	Password string
	UserType string
}

// Session is an issued token pair with the caller's identity.
type Session struct {
	Tokens    platformauth.TokenPair
	UserID    uuid.UUID
	TenantID  *uuid.UUID
	Email     string
	FirstName string
	LastName  string
	UserType  string
}

// Profile is the authenticated caller's account view.
type Profile struct {
	UserID      uuid.UUID
	Email       string
	FirstName   string
	LastName    string
	UserType    string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	Company     *tenant.CompanyProfile
	Influencer  *tenant.InfluencerProfile
}

// TokenIssuer signs and verifies token pairs.
type TokenIssuer interface {
	Issue(subject platformauth.Subject) (platformauth.TokenPair, error)
	ParseRefresh(token string) (*platformauth.Claims, error)
}

// Service defines the business operations for the accounts domain.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (Registered, error)
	Login(ctx context.Context, input LoginInput) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Profile(ctx context.Context, userID uuid.UUID) (Profile, error)
	BootstrapAdmin(ctx context.Context, email, password string) (uuid.UUID, error)
	IssueFor(ctx context.Context, email string) (Session, error)
}

type service struct {
	repo   repo.Repository
	tokens TokenIssuer
	hash   func(string) (string, error)
	check  func(hash, password string) error
}

// New constructs an accounts Service.
func New(r repo.Repository, tokens TokenIssuer) Service {
	if r == nil {
		panic("accounts repository is required")
	}
	if tokens == nil {
		panic("token issuer is required")
	}
	return &service{repo: r, tokens: tokens, hash: platformauth.HashPassword, check: platformauth.CheckPassword}
}

func (s *service) Register(ctx context.Context, input RegisterInput) (Registered, error) {
	email := normalizeEmail(input.Email)
	fields := FieldErrors{}
	if email == "" {
		fields["email"] = append(fields["email"], "is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = append(fields["email"], "must be a valid email address")
	}
	if len(input.Password) < minPasswordLength {
		fields["password"] = append(fields["password"], fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if strings.TrimSpace(input.FirstName) == "" {
		fields["firstName"] = append(fields["firstName"], "is required")
	}
	if strings.TrimSpace(input.LastName) == "" {
		fields["lastName"] = append(fields["lastName"], "is required")
	}
	kind, ok := tenant.ParseKind(input.UserType)
	if !ok {
		fields["userType"] = append(fields["userType"], "must be one of [company influencer]")
	}
	if len(fields) > 0 {
		return Registered{}, &ValidationError{Fields: fields}
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return Registered{}, fmt.Errorf("hash password: %w", err)
	}

	user, role, err := s.repo.Register(ctx, repo.RegisterParams{
		User: persistence.CreateUserParams{
			Email:        email,
			PasswordHash: hash,
			FirstName:    input.FirstName,
			LastName:     input.LastName,
		},
		Kind:    kind,
		Company: strings.TrimSpace(input.Company),
	})
	if err != nil {
		return Registered{}, mapPersistenceError(err)
	}

	platformlogging.FromContextOr(ctx, zap.NewNop()).Info("account registered",
		zap.String("user_id", user.UserID.String()),
		zap.String("tenant_id", role.TenantID().String()),
		zap.String("user_type", string(kind)),
	)

	return Registered{UserID: user.UserID, TenantID: role.TenantID(), Email: user.Email, UserType: string(kind)}, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (Session, error) {
	userType := strings.ToLower(strings.TrimSpace(input.UserType))
	switch userType {
	case platformauth.UserTypeCompany, platformauth.UserTypeInfluencer, platformauth.UserTypeAdmin:
	default:
		return Session{}, &ValidationError{Fields: FieldErrors{"user_type": {"must be one of [company influencer admin]"}}}
	}

	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := s.check(user.PasswordHash, input.Password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	session, err := s.sessionFor(ctx, user, userType)
	if err != nil {
		return Session{}, err
	}

	if err := s.repo.TouchLogin(ctx, user.UserID); err != nil {
		platformlogging.FromContextOr(ctx, zap.NewNop()).Warn("stamp last login", zap.Error(err))
	}
	return session, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.tokens.ParseRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	return s.sessionFor(ctx, user, claims.UserType)
}

// sessionFor resolves the requested role and issues tokens bound to it.
func (s *service) sessionFor(ctx context.Context, user persistence.UserRecord, userType string) (Session, error) {
	subject := platformauth.Subject{UserID: user.UserID.String(), Email: user.Email, UserType: userType}
	session := Session{
		UserID:    user.UserID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		UserType:  userType,
	}

	if userType == platformauth.UserTypeAdmin {
		if !user.IsAdmin {
			return Session{}, &WrongAccountTypeError{UserType: userType}
		}
	} else {
		role, err := s.repo.ResolveRole(ctx, user.UserID)
		if err != nil {
			if errors.Is(err, tenant.ErrProfileNotFound) {
				return Session{}, &WrongAccountTypeError{UserType: userType}
			}
			return Session{}, err
		}
		if string(role.Kind()) != userType {
			return Session{}, &WrongAccountTypeError{UserType: userType}
		}
		tenantID := role.TenantID()
		subject.TenantID = tenantID.String()
		session.TenantID = &tenantID
	}

	pair, err := s.tokens.Issue(subject)
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	session.Tokens = pair
	return session, nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, mapPersistenceError(err)
	}

	out := Profile{
		UserID:      user.UserID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
		UserType:    platformauth.UserTypeAdmin,
	}

	role, ok := tenant.FromContext(ctx)
	if !ok && !user.IsAdmin {
		role, err = s.repo.ResolveRole(ctx, userID)
		if err != nil {
			return Profile{}, err
		}
		ok = true
	}
	if ok {
		switch r := role.(type) {
		case tenant.Company:
			profile := r.Profile
			out.Company = &profile
		case tenant.Influencer:
			profile := r.Profile
			out.Influencer = &profile
		}
		out.UserType = string(role.Kind())
	}
	return out, nil
}

func (s *service) BootstrapAdmin(ctx context.Context, email, password string) (uuid.UUID, error) {
	email = normalizeEmail(email)
	fields := FieldErrors{}
	if !strings.Contains(email, "@") {
		fields["email"] = []string{"must be a valid email address"}
	}
	if len(password) < minPasswordLength {
		fields["password"] = []string{fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	if len(fields) > 0 {
		return uuid.Nil, &ValidationError{Fields: fields}
	}
	hash, err := s.hash(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.CreateAdmin(ctx, persistence.CreateUserParams{Email: email, PasswordHash: hash, FirstName: "Platform", LastName: "Admin"})
	if err != nil {
		return uuid.Nil, mapPersistenceError(err)
	}
	return user.UserID, nil
}

// IssueFor mints tokens for an existing account without a password; it backs
// the operator CLI.
func (s *service) IssueFor(ctx context.Context, email string) (Session, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Session{}, mapPersistenceError(err)
	}
	if user.IsAdmin {
		return s.sessionFor(ctx, user, platformauth.UserTypeAdmin)
	}
	role, err := s.repo.ResolveRole(ctx, user.UserID)
	if err != nil {
		return Session{}, err
	}
	return s.sessionFor(ctx, user, string(role.Kind()))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrUserConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrUserNotFound):
		return ErrNotFound
	default:
		return err
	}
}
