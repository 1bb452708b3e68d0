package main

import (
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/contracts"
	"github.com/infofluencer/infofluencer/platform/go/problem"
)

const (
	openapiJSONPath = "/openapi.json"
	openapiYAMLPath = "/openapi.yaml"
)

const swaggerUITemplate = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>InfoFluencer API - Swagger UI</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
    <style>body{margin:0} #swagger-ui{max-width:1400px;margin:0 auto}</style>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/*__SPEC_URL__*/',
        dom_id: '#swagger-ui',
        deepLinking: true,
        persistAuthorization: true,
        presets: [SwaggerUIBundle.presets.apis]
      });
    </script>
  </body>
</html>`

// registerDocsRoutes serves Swagger UI and the contract as JSON and YAML.
// The JSON form is rendered once at startup.
func registerDocsRoutes(router chi.Router, spec *openapi3.T, logger *zap.Logger) {
	router.Get("/docs", docsUIHandler())
	router.Get(openapiJSONPath, openapiJSONHandler(spec, logger))
	router.Get(openapiYAMLPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(contracts.OpenAPI)
	})
}

func docsUIHandler() http.HandlerFunc {
	ui := strings.Replace(swaggerUITemplate, "/*__SPEC_URL__*/", openapiJSONPath, 1)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ui))
	}
}

func openapiJSONHandler(spec *openapi3.T, logger *zap.Logger) http.HandlerFunc {
	body, err := spec.MarshalJSON()
	if err != nil {
		logger.Error("render openapi json", zap.Error(err))
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			problem.Write(w, problem.New("Internal server error", "contract unavailable", problem.TypeInternal, http.StatusInternalServerError, nil))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(body)
	}
}
