package requesttrace

import (
	"context"
	"errors"

	"go.uber.org/zap"

	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "INFOFLUENCER_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo is the request-scoped record of who is acting. UserID and
// UserType are set only for user actors; TenantID is nil for admins and for
// anonymous callers.
type AuditInfo struct {
	ActorKind ActorKind `json:"actor_kind"`
	UserID    *string   `json:"user_id,omitempty"`
	UserType  string    `json:"user_type,omitempty"`
	TenantID  *string   `json:"tenant_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrSystem returns the stored AuditInfo, or a system record for
// work started outside an HTTP request (CLI, background jobs).
func FromContextOrSystem(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return System("")
}

// FromCredentials builds an AuditInfo for an authenticated caller.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.ID == "" {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	userID := creds.ID
	return AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &userID,
		UserType:  creds.UserType,
		TenantID:  creds.TenantID,
		RequestID: requestID,
	}, nil
}

// Anonymous covers register, login and OAuth callbacks.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for operator and background operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}

// LogFields renders the audit record as zap fields.
func (a AuditInfo) LogFields() []zap.Field {
	fields := []zap.Field{zap.String("actor_kind", string(a.ActorKind))}
	if a.UserID != nil && *a.UserID != "" {
		fields = append(fields, zap.String("user_id", *a.UserID))
	}
	if a.UserType != "" {
		fields = append(fields, zap.String("user_type", a.UserType))
	}
	if a.TenantID != nil && *a.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", *a.TenantID))
	}
	return fields
}
