package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/infofluencer/infofluencer/contracts"
	accountshandler "github.com/infofluencer/infofluencer/domains/accounts/be/handler"
	accountsrepo "github.com/infofluencer/infofluencer/domains/accounts/be/repo"
	accountsservice "github.com/infofluencer/infofluencer/domains/accounts/be/service"
	connectionshandler "github.com/infofluencer/infofluencer/domains/connections/be/handler"
	connectionsrepo "github.com/infofluencer/infofluencer/domains/connections/be/repo"
	connectionsservice "github.com/infofluencer/infofluencer/domains/connections/be/service"
	dashboardhandler "github.com/infofluencer/infofluencer/domains/dashboard/be/handler"
	dashboardrepo "github.com/infofluencer/infofluencer/domains/dashboard/be/repo"
	dashboardservice "github.com/infofluencer/infofluencer/domains/dashboard/be/service"
	"github.com/infofluencer/infofluencer/domains/reports/be/fetcher"
	reportshandler "github.com/infofluencer/infofluencer/domains/reports/be/handler"
	reportsrepo "github.com/infofluencer/infofluencer/domains/reports/be/repo"
	reportsservice "github.com/infofluencer/infofluencer/domains/reports/be/service"
	settingshandler "github.com/infofluencer/infofluencer/domains/settings/be/handler"
	settingsrepo "github.com/infofluencer/infofluencer/domains/settings/be/repo"
	settingsservice "github.com/infofluencer/infofluencer/domains/settings/be/service"
	tenantshandler "github.com/infofluencer/infofluencer/domains/tenants/be/handler"
	tenantsrepo "github.com/infofluencer/infofluencer/domains/tenants/be/repo"
	tenantsservice "github.com/infofluencer/infofluencer/domains/tenants/be/service"
	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	"github.com/infofluencer/infofluencer/platform/go/events"
	"github.com/infofluencer/infofluencer/platform/go/httpclient"
	"github.com/infofluencer/infofluencer/platform/go/lock"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	platformmiddleware "github.com/infofluencer/infofluencer/platform/go/middleware"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/problem"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/storage"
	tenantmiddleware "github.com/infofluencer/infofluencer/platform/go/tenant/middleware"
)

type providerConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

type config struct {
	Port            string        `env:"PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"false"`
	EnvKey          string        `env:"ENV_KEY" envDefault:"dev"`

	DBStatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"30s"`

	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"60m"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	FrontendURL        string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	LoginRateLimit     int           `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
	LoginRateWindow    time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`

	OAuthAllowInsecureTransport bool           `env:"OAUTH_ALLOW_INSECURE_TRANSPORT" envDefault:"false"`
	OAuthStateTTL               time.Duration  `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	ProviderHTTPTimeout         time.Duration  `env:"PROVIDER_HTTP_TIMEOUT" envDefault:"15s"`
	TokenHTTPTimeout            time.Duration  `env:"TOKEN_HTTP_TIMEOUT" envDefault:"10s"`
	GA4                         providerConfig `envPrefix:"GA4_"`
	YouTube                     providerConfig `envPrefix:"YOUTUBE_"`
	Instagram                   providerConfig `envPrefix:"INSTAGRAM_"`
	GraphAPIBaseURL             string         `env:"GRAPH_API_BASE_URL"`

	RedisURL         string        `env:"REDIS_URL"`
	FetchLockTTL     time.Duration `env:"FETCH_LOCK_TTL" envDefault:"2m"`
	KafkaBrokers     []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string        `env:"KAFKA_TOPIC_PREFIX" envDefault:"infofluencer"`

	SnapshotBackend  string `env:"SNAPSHOT_BACKEND" envDefault:"none"` // none | gcs | local
	SnapshotBucket   string `env:"SNAPSHOT_BUCKET"`                    // required when SNAPSHOT_BACKEND=gcs
	SnapshotLocalDir string `env:"SNAPSHOT_LOCAL_DIR" envDefault:"./.data/snapshots"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.MigrateOnStart {
		migrator, err := persistence.NewMigrator(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("init migrator", zap.Error(err))
		}
		if err := migrator.Up(); err != nil {
			logger.Fatal("apply migrations", zap.Error(err))
		}
		_ = migrator.Close()
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:       cfg.DatabaseURL,
		ApplicationName:  "infofluencer-api",
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	db := persistence.NewDB(pool)
	accountStore := persistence.NewAccountStore(pool)
	credentialStore := persistence.NewCredentialStore(pool)
	reportStore := persistence.NewReportStore(db, pool)
	settingsStore := persistence.NewSettingsStore(pool)

	issuer, err := platformauth.NewIssuer(platformauth.IssuerConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})
	if err != nil {
		logger.Fatal("init token issuer", zap.Error(err))
	}

	publisher := buildPublisher(cfg, logger)
	defer func() {
		_ = publisher.Close()
	}()

	archive, closeArchive := buildArchive(ctx, cfg, logger)
	defer closeArchive()

	locker, closeLocker := buildLocker(ctx, cfg, logger)
	defer closeLocker()

	accountService := accountsservice.New(accountsrepo.NewPostgresRepository(db, accountStore), issuer)
	accountHTTPHandler := accountshandler.New(accountService, logger)

	connectionService := connectionsservice.New(
		connectionsrepo.NewPostgresRepository(db, credentialStore),
		buildOAuthProviders(cfg, logger),
		connectionsservice.Config{
			FrontendURL: cfg.FrontendURL,
			StateTTL:    cfg.OAuthStateTTL,
			Publisher:   publisher,
		},
	)

	reportFetcher, err := fetcher.New(fetcher.Config{
		GoogleClient: httpclient.New(httpclient.Options{
			Name:                   "google",
			Timeout:                cfg.ProviderHTTPTimeout,
			AllowInsecureTransport: cfg.OAuthAllowInsecureTransport,
			Logger:                 logger,
		}),
		GraphClient: httpclient.New(httpclient.Options{
			Name:                   "instagram",
			Timeout:                cfg.ProviderHTTPTimeout,
			AllowInsecureTransport: cfg.OAuthAllowInsecureTransport,
			Logger:                 logger,
		}),
		GraphBaseURL: cfg.GraphAPIBaseURL,
	})
	if err != nil {
		logger.Fatal("init report fetcher", zap.Error(err))
	}

	reportService := reportsservice.New(
		reportsrepo.NewPostgresRepository(reportStore, credentialStore),
		connectionService,
		reportFetcher,
		report.NewValidator(),
		reportsservice.Config{
			Locker:    locker,
			LockTTL:   cfg.FetchLockTTL,
			Archive:   archive,
			EnvKey:    cfg.EnvKey,
			Publisher: publisher,
		},
	)
	reportHTTPHandler := reportshandler.New(reportService, logger)
	connectionHTTPHandler := connectionshandler.New(connectionService, reportService, logger)

	dashboardService := dashboardservice.New(dashboardrepo.NewPostgresRepository(reportStore), dashboardservice.Config{})
	dashboardHTTPHandler := dashboardhandler.New(dashboardService, logger)

	settingsService := settingsservice.New(
		settingsrepo.NewPostgresRepository(db, accountStore, settingsStore, credentialStore),
		settingsservice.Config{},
	)
	settingsHTTPHandler := settingshandler.New(settingsService, logger)

	tenantService := tenantsservice.New(
		tenantsrepo.NewPostgresRepository(accountStore, credentialStore),
		tenantsservice.Config{EnvKey: cfg.EnvKey, Archive: archive, Publisher: publisher},
	)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	spec, err := contracts.Load(ctx)
	if err != nil {
		logger.Fatal("load openapi contract", zap.Error(err))
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		platformmiddleware.CORS(platformmiddleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger, "/healthz", "/readyz", "/metrics"))
	rootRouter.Use(platformmiddleware.HTTPMetrics)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readyHandler(pool, logger))
	rootRouter.Handle("/metrics", promhttp.Handler())

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, spec, logger)

	loginLimit := platformmiddleware.LoginRateLimit(cfg.LoginRateLimit, cfg.LoginRateWindow)

	apiRouter := chi.NewRouter()
	apiRouter.Use(chimw.Timeout(cfg.RequestTimeout))
	apiRouter.Use(buildAuthMiddleware(issuer, logger))
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(newSpecValidator(spec))
	apiRouter.Use(tenantmiddleware.WithTenantRole(accountStore, tenantmiddleware.Config{
		CacheTTL: time.Minute,
	}))

	apiRouter.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/register", accountHTTPHandler.Register)
		r.With(loginLimit).Post("/login", accountHTTPHandler.Login)
		r.Post("/refresh", accountHTTPHandler.Refresh)
		r.Get("/profile", accountHTTPHandler.Profile)
	})

	apiRouter.Route("/connections", func(r chi.Router) {
		r.Get("/{provider}/callback", connectionHTTPHandler.Callback)
		r.Group(func(r chi.Router) {
			r.Use(tenantmiddleware.RequireTenant)
			connectionHTTPHandler.Routes(r)
		})
	})

	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.RequireTenant)
		r.Route("/reports", reportHTTPHandler.Routes)
		r.Route("/dashboard", dashboardHTTPHandler.Routes)
		r.Route("/settings", settingsHTTPHandler.Routes)
	})

	apiRouter.Route("/admin/tenants", func(r chi.Router) {
		r.Use(platformauth.RequireRole(platformauth.UserTypeAdmin))
		tenantHTTPHandler.Routes(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go purgeExpiredStates(janitorCtx, connectionService, cfg.OAuthStateTTL, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rootRouter,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("env", cfg.EnvKey))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newSpecValidator builds the oapi-codegen request validator over the
// embedded contract. Security requirements are checked against the caller
// placed on the context by the JWT middleware.
func newSpecValidator(spec *openapi3.T) func(http.Handler) http.Handler {
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSwagger,
		},
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			problem.Write(w, specProblem(message, statusCode))
		},
	})
}

func specProblem(message string, statusCode int) problem.Details {
	switch statusCode {
	case http.StatusUnauthorized:
		return problem.New("Unauthorized", message, problem.TypeUnauthorized, statusCode, nil)
	case http.StatusForbidden:
		return problem.New("Forbidden", message, problem.TypeForbidden, statusCode, nil)
	case http.StatusNotFound:
		return problem.New("Not Found", message, problem.TypeNotFound, statusCode, nil)
	default:
		return problem.New("Request does not match the API contract", message, problem.TypeValidation, statusCode, nil)
	}
}

func readyHandler(pool *pgxpool.Pool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("readiness probe failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func buildOAuthProviders(cfg config, logger *zap.Logger) []connectionsservice.OAuthProvider {
	tokenClient := func(name string) *http.Client {
		return httpclient.New(httpclient.Options{
			Name:                   name + "-oauth",
			Timeout:                cfg.TokenHTTPTimeout,
			AllowInsecureTransport: cfg.OAuthAllowInsecureTransport,
			Logger:                 logger,
		})
	}
	settings := map[report.Provider]providerConfig{
		report.ProviderGA4:       cfg.GA4,
		report.ProviderYouTube:   cfg.YouTube,
		report.ProviderInstagram: cfg.Instagram,
	}

	providers := make([]connectionsservice.OAuthProvider, 0, len(settings))
	for _, name := range report.Providers() {
		pc := settings[name]
		if pc.RedirectURI != "" {
			if err := httpclient.CheckURL(pc.RedirectURI, cfg.OAuthAllowInsecureTransport); err != nil {
				logger.Fatal("invalid oauth redirect uri", zap.String("provider", string(name)), zap.Error(err))
			}
		}
		provCfg := connectionsservice.ProviderConfig{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURI:  pc.RedirectURI,
			GraphBaseURL: cfg.GraphAPIBaseURL,
			HTTPClient:   tokenClient(string(name)),
		}
		if !provCfg.Configured() {
			logger.Warn("oauth provider not configured", zap.String("provider", string(name)))
		}
		if name == report.ProviderInstagram {
			providers = append(providers, connectionsservice.NewInstagramProvider(provCfg))
			continue
		}
		providers = append(providers, connectionsservice.NewGoogleProvider(name, provCfg))
	}
	return providers
}

func buildPublisher(cfg config, logger *zap.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("domain events disabled; KAFKA_BROKERS not set")
		return events.NopPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
	if err != nil {
		logger.Fatal("init kafka publisher", zap.Error(err))
	}
	return publisher
}

func buildArchive(ctx context.Context, cfg config, logger *zap.Logger) (storage.Archive, func()) {
	switch cfg.SnapshotBackend {
	case "", "none":
		return storage.NopArchive{}, func() {}
	case "gcs":
		if cfg.SnapshotBucket == "" {
			logger.Fatal("snapshot bucket required when SNAPSHOT_BACKEND=gcs")
		}
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		return storage.NewGCSArchive(client, cfg.SnapshotBucket), func() { _ = client.Close() }
	case "local":
		if strings.TrimSpace(cfg.SnapshotLocalDir) == "" {
			logger.Fatal("snapshot local dir required when SNAPSHOT_BACKEND=local")
		}
		return storage.NewLocalArchive(cfg.SnapshotLocalDir), func() {}
	default:
		logger.Fatal("invalid SNAPSHOT_BACKEND (use none, gcs or local)", zap.String("backend", cfg.SnapshotBackend))
		return nil, nil
	}
}

func buildLocker(ctx context.Context, cfg config, logger *zap.Logger) (lock.Locker, func()) {
	if cfg.RedisURL == "" {
		logger.Info("using in-process fetch lock; REDIS_URL not set")
		return lock.NewLocalLocker(), func() {}
	}
	client, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	return lock.NewRedisLocker(client, "infofluencer:"+cfg.EnvKey+":fetch:"), func() { _ = client.Close() }
}

// purgeExpiredStates drops abandoned OAuth states once per TTL.
func purgeExpiredStates(ctx context.Context, svc connectionsservice.Service, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		every = 10 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpiredStates(ctx)
			if err != nil {
				logger.Warn("purge expired oauth states", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired oauth states", zap.Int64("count", n))
			}
		}
	}
}
