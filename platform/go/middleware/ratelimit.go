package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/infofluencer/infofluencer/platform/go/problem"
)

// LoginRateLimit throttles credential endpoints per client IP. A non-positive
// limit disables throttling.
func LoginRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem.Write(w, problem.New("Too Many Requests", "too many attempts, retry later", problem.TypeRateLimited, http.StatusTooManyRequests, nil))
		}),
	)
}
