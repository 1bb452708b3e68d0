package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSConfig lists the frontend origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// CORS builds the go-chi/cors handler for the dashboard frontend.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 300
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           maxAge,
	})
}
