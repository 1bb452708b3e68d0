// Package problem renders RFC 7807 problem details and JSON bodies for the
// hand-written chi handlers.
package problem

import (
	"encoding/json"
	"net/http"
)

const (
	TypeValidation      = "https://infofluencer.io/problems/validation-error"
	TypeUnauthorized    = "https://infofluencer.io/problems/unauthorized"
	TypeForbidden       = "https://infofluencer.io/problems/forbidden"
	TypeNotFound        = "https://infofluencer.io/problems/not-found"
	TypeConflict        = "https://infofluencer.io/problems/conflict"
	TypeProviderError   = "https://infofluencer.io/problems/provider-error"
	TypeReconnect       = "https://infofluencer.io/problems/reconnect-required"
	TypeRateLimited     = "https://infofluencer.io/problems/rate-limited"
	TypeInternal        = "https://infofluencer.io/problems/internal-error"
	TypeUnsupportedType = "https://infofluencer.io/problems/unsupported-report-type"
)

// FieldErrors maps request fields to validation messages.
type FieldErrors map[string][]string

// Details is the application/problem+json body.
type Details struct {
	Type   string      `json:"type,omitempty"`
	Title  string      `json:"title"`
	Status int         `json:"status"`
	Detail string      `json:"detail,omitempty"`
	Errors FieldErrors `json:"errors,omitempty"`
	// Provider carries the upstream status and message for provider failures.
	Provider *ProviderDetails `json:"provider,omitempty"`
}

// ProviderDetails surfaces a provider's raw failure for diagnostics.
type ProviderDetails struct {
	Name    string `json:"name"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// New builds a problem, copying field errors.
func New(title, detail, problemType string, status int, fields FieldErrors) Details {
	p := Details{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	}
	if len(fields) > 0 {
		copied := make(FieldErrors, len(fields))
		for field, messages := range fields {
			copied[field] = append([]string(nil), messages...)
		}
		p.Errors = copied
	}
	return p
}

// Write renders p with its status code.
func Write(w http.ResponseWriter, p Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON renders v as application/json.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
