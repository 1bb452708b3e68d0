package middleware

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/getkin/kin-openapi/openapi3filter"

	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
)

// ErrUnauthenticated is returned to the contract validator for operations
// that declare bearerAuth when no verified caller is on the context.
var ErrUnauthenticated = errors.New("missing or invalid bearer token")

// ValidateAuthenticationViaSwagger satisfies operations that declare
// bearerAuth. The JWT middleware has already verified the token; scopes listed
// on the operation are the user types allowed to call it.
func ValidateAuthenticationViaSwagger(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != "bearerAuth" {
		return nil
	}

	r := input.RequestValidationInput.Request
	if r == nil {
		return fmt.Errorf("no request in validation input")
	}

	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok {
		return ErrUnauthenticated
	}
	if len(input.Scopes) > 0 && !slices.Contains(input.Scopes, creds.UserType) {
		return fmt.Errorf("user type %q not allowed", creds.UserType)
	}
	return nil
}
