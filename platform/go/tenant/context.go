package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrProfileNotFound means the authenticated user has no company or
// influencer profile, i.e. the account is in an inconsistent state.
var ErrProfileNotFound = errors.New("tenant profile not found")

// Kind names the two tenant roles.
type Kind string

const (
	KindCompany    Kind = "company"
	KindInfluencer Kind = "influencer"
)

// ParseKind accepts the user_type values used at registration and login.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCompany, KindInfluencer:
		return Kind(s), true
	default:
		return "", false
	}
}

// CompanyProfile is the role profile of a company tenant.
type CompanyProfile struct {
	TenantID      uuid.UUID
	UserID        uuid.UUID
	CompanyName   string
	ContactPerson string
	Position      string
	Phone         string
	WorkEmail     string
	CreatedAt     time.Time
}

// InfluencerProfile is the role profile of an influencer tenant.
type InfluencerProfile struct {
	TenantID         uuid.UUID
	UserID           uuid.UUID
	Email            string
	InstagramHandle  string
	YouTubeChannelID string
	CreatedAt        time.Time
}

// Role is the tagged union Company | Influencer. It is resolved once per
// request and passed down instead of probing for profiles.
type Role interface {
	TenantID() uuid.UUID
	UserID() uuid.UUID
	Kind() Kind
	isRole()
}

// Company is the company variant of Role.
type Company struct{ Profile CompanyProfile }

// Influencer is the influencer variant of Role.
type Influencer struct{ Profile InfluencerProfile }

func (c Company) TenantID() uuid.UUID { return c.Profile.TenantID }
func (c Company) UserID() uuid.UUID   { return c.Profile.UserID }
func (Company) Kind() Kind            { return KindCompany }
func (Company) isRole()               {}

func (i Influencer) TenantID() uuid.UUID { return i.Profile.TenantID }
func (i Influencer) UserID() uuid.UUID   { return i.Profile.UserID }
func (Influencer) Kind() Kind            { return KindInfluencer }
func (Influencer) isRole()               {}

type ctxKey string

const roleKey ctxKey = "INFOFLUENCER_TENANT_ROLE"

// WithRole returns a derived context carrying the resolved role.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// FromContext extracts the tenant Role and a boolean indicating presence.
func FromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleKey).(Role)
	return role, ok && role != nil
}

// CompanyFromContext returns the company profile when the caller is a company.
func CompanyFromContext(ctx context.Context) (CompanyProfile, bool) {
	role, ok := FromContext(ctx)
	if !ok {
		return CompanyProfile{}, false
	}
	company, ok := role.(Company)
	return company.Profile, ok
}

// InfluencerFromContext returns the influencer profile when the caller is an influencer.
func InfluencerFromContext(ctx context.Context) (InfluencerProfile, bool) {
	role, ok := FromContext(ctx)
	if !ok {
		return InfluencerProfile{}, false
	}
	influencer, ok := role.(Influencer)
	return influencer.Profile, ok
}
