package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
)

// RequestTrace stores the request's AuditInfo on the context and stamps the
// request logger with it. It must run after the JWT middleware.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if creds, ok := platformauth.UserFromContext(r.Context()); ok {
			var err error
			audit, err = requesttrace.FromCredentials(creds, requestID)
			if err != nil {
				platformlogging.FromRequest(r, zap.NewNop()).Error("build audit info from credentials", zap.Error(err))
				problem.Write(w, problem.New("Unauthorized", "caller identity is incomplete", problem.TypeUnauthorized, http.StatusUnauthorized, nil))
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		ctx = platformlogging.Enrich(ctx, audit.LogFields()...)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
