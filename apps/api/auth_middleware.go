package main

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
)

// buildAuthMiddleware constructs the JWT middleware. Tenant users must carry
// a well-formed tenant claim; admins carry none.
func buildAuthMiddleware(issuer *platformauth.Issuer, logger *zap.Logger) func(http.Handler) http.Handler {
	if issuer == nil {
		logger.Fatal("auth middleware requires a token issuer")
	}

	extract := func(claims *platformauth.Claims) (*platformauth.UserCredentials, error) {
		creds, err := platformauth.DefaultCredentialExtractor(claims)
		if err != nil {
			return nil, err
		}
		if _, err := uuid.Parse(creds.ID); err != nil {
			return nil, errors.New("subject is not a user id")
		}

		switch creds.UserType {
		case platformauth.UserTypeAdmin:
			creds.TenantID = nil
			return creds, nil
		case platformauth.UserTypeCompany, platformauth.UserTypeInfluencer:
		default:
			return nil, errors.New("unknown user type")
		}

		if creds.TenantID == nil || *creds.TenantID == "" {
			return nil, errors.New("tenant claim required")
		}
		tid, err := uuid.Parse(*creds.TenantID)
		if err != nil {
			return nil, errors.New("tenant claim is not a uuid")
		}
		idStr := tid.String()
		creds.TenantID = &idStr
		return creds, nil
	}

	return platformauth.JWT(issuer.Verifier(), extract)
}
