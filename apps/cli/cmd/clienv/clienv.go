// Package clienv loads operator CLI configuration from the environment and
// builds the services each command needs.
package clienv

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	accountsrepo "github.com/infofluencer/infofluencer/domains/accounts/be/repo"
	accountsservice "github.com/infofluencer/infofluencer/domains/accounts/be/service"
	connectionsrepo "github.com/infofluencer/infofluencer/domains/connections/be/repo"
	connectionsservice "github.com/infofluencer/infofluencer/domains/connections/be/service"
	"github.com/infofluencer/infofluencer/domains/reports/be/fetcher"
	reportsrepo "github.com/infofluencer/infofluencer/domains/reports/be/repo"
	reportsservice "github.com/infofluencer/infofluencer/domains/reports/be/service"
	tenantsrepo "github.com/infofluencer/infofluencer/domains/tenants/be/repo"
	tenantsservice "github.com/infofluencer/infofluencer/domains/tenants/be/service"
	platformauth "github.com/infofluencer/infofluencer/platform/go/auth"
	"github.com/infofluencer/infofluencer/platform/go/events"
	"github.com/infofluencer/infofluencer/platform/go/httpclient"
	"github.com/infofluencer/infofluencer/platform/go/lock"
	platformlogging "github.com/infofluencer/infofluencer/platform/go/logging"
	"github.com/infofluencer/infofluencer/platform/go/persistence"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

// ProviderConfig holds one OAuth client registration.
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// Config mirrors the API server variables the CLI needs. Flags may override
// DatabaseURL.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	EnvKey      string `env:"ENV_KEY" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"60m"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	AllowInsecureTransport bool           `env:"OAUTH_ALLOW_INSECURE_TRANSPORT" envDefault:"false"`
	ProviderHTTPTimeout    time.Duration  `env:"PROVIDER_HTTP_TIMEOUT" envDefault:"15s"`
	TokenHTTPTimeout       time.Duration  `env:"TOKEN_HTTP_TIMEOUT" envDefault:"10s"`
	GA4                    ProviderConfig `envPrefix:"GA4_"`
	YouTube                ProviderConfig `envPrefix:"YOUTUBE_"`
	Instagram              ProviderConfig `envPrefix:"INSTAGRAM_"`
	GraphAPIBaseURL        string         `env:"GRAPH_API_BASE_URL"`

	RedisURL         string        `env:"REDIS_URL"`
	FetchLockTTL     time.Duration `env:"FETCH_LOCK_TTL" envDefault:"2m"`
	KafkaBrokers     []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string        `env:"KAFKA_TOPIC_PREFIX" envDefault:"infofluencer"`
}

// Load parses Config and applies a non-empty databaseURL override.
func Load(databaseURL string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}
	return cfg, nil
}

// FromCommand loads Config honouring the inherited --database-url flag.
func FromCommand(cmd *cobra.Command) (Config, error) {
	databaseURL, _ := cmd.Flags().GetString("database-url")
	return Load(databaseURL)
}

// Runtime owns the connections opened for one command invocation.
type Runtime struct {
	Config      Config
	Logger      *zap.Logger
	Pool        *pgxpool.Pool
	DB          *persistence.DB
	Accounts    *persistence.AccountStore
	Credentials *persistence.CredentialStore

	closers []func()
}

// Open connects to Postgres and builds a CLI logger.
func Open(ctx context.Context, cfg Config) (*Runtime, error) {
	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		ApplicationName: "infofluencer-cli",
		MaxConns:        4,
	})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	rt := &Runtime{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		DB:          persistence.NewDB(pool),
		Accounts:    persistence.NewAccountStore(pool),
		Credentials: persistence.NewCredentialStore(pool),
	}
	rt.closers = append(rt.closers, func() { persistence.ClosePool(pool) }, func() { _ = logger.Sync() })
	return rt, nil
}

// Close releases everything Open and the builders acquired, newest first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// AccountService builds the accounts service. It requires JWT_SECRET.
func (rt *Runtime) AccountService() (accountsservice.Service, error) {
	issuer, err := platformauth.NewIssuer(platformauth.IssuerConfig{
		Secret:     rt.Config.JWTSecret,
		AccessTTL:  rt.Config.JWTAccessTTL,
		RefreshTTL: rt.Config.JWTRefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	return accountsservice.New(accountsrepo.NewPostgresRepository(rt.DB, rt.Accounts), issuer), nil
}

// Publisher returns a Kafka publisher when brokers are configured.
func (rt *Runtime) Publisher() (events.Publisher, error) {
	if len(rt.Config.KafkaBrokers) == 0 {
		return events.NopPublisher{}, nil
	}
	publisher, err := events.NewKafkaPublisher(rt.Config.KafkaBrokers, rt.Config.KafkaTopicPrefix)
	if err != nil {
		return nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = publisher.Close() })
	return publisher, nil
}

// TenantService builds the tenant admin service. Snapshots are not purged
// from the CLI; the API server owns archive credentials.
func (rt *Runtime) TenantService() (tenantsservice.Service, error) {
	publisher, err := rt.Publisher()
	if err != nil {
		return nil, err
	}
	return tenantsservice.New(
		tenantsrepo.NewPostgresRepository(rt.Accounts, rt.Credentials),
		tenantsservice.Config{EnvKey: rt.Config.EnvKey, Publisher: publisher},
	), nil
}

// ReportService builds the reports service with live provider clients so an
// operator can refresh a tenant outside the HTTP path.
func (rt *Runtime) ReportService(ctx context.Context) (reportsservice.Service, error) {
	publisher, err := rt.Publisher()
	if err != nil {
		return nil, err
	}

	locker := lock.Locker(lock.NewLocalLocker())
	if rt.Config.RedisURL != "" {
		client, err := lock.Connect(ctx, rt.Config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		locker = lock.NewRedisLocker(client, "infofluencer:"+rt.Config.EnvKey+":fetch:")
	}

	connections := connectionsservice.New(
		connectionsrepo.NewPostgresRepository(rt.DB, rt.Credentials),
		rt.oauthProviders(),
		connectionsservice.Config{Publisher: publisher},
	)

	f, err := fetcher.New(fetcher.Config{
		GoogleClient: rt.httpClient("google", rt.Config.ProviderHTTPTimeout),
		GraphClient:  rt.httpClient("instagram", rt.Config.ProviderHTTPTimeout),
		GraphBaseURL: rt.Config.GraphAPIBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init report fetcher: %w", err)
	}

	return reportsservice.New(
		reportsrepo.NewPostgresRepository(persistence.NewReportStore(rt.DB, rt.Pool), rt.Credentials),
		connections,
		f,
		report.NewValidator(),
		reportsservice.Config{
			Locker:    locker,
			LockTTL:   rt.Config.FetchLockTTL,
			EnvKey:    rt.Config.EnvKey,
			Publisher: publisher,
		},
	), nil
}

func (rt *Runtime) httpClient(name string, timeout time.Duration) *http.Client {
	return httpclient.New(httpclient.Options{
		Name:                   name,
		Timeout:                timeout,
		AllowInsecureTransport: rt.Config.AllowInsecureTransport,
		Logger:                 rt.Logger,
	})
}

func (rt *Runtime) oauthProviders() []connectionsservice.OAuthProvider {
	settings := map[report.Provider]ProviderConfig{
		report.ProviderGA4:       rt.Config.GA4,
		report.ProviderYouTube:   rt.Config.YouTube,
		report.ProviderInstagram: rt.Config.Instagram,
	}
	providers := make([]connectionsservice.OAuthProvider, 0, len(settings))
	for _, name := range report.Providers() {
		pc := settings[name]
		provCfg := connectionsservice.ProviderConfig{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURI:  pc.RedirectURI,
			GraphBaseURL: rt.Config.GraphAPIBaseURL,
			HTTPClient:   rt.httpClient(string(name)+"-oauth", rt.Config.TokenHTTPTimeout),
		}
		if name == report.ProviderInstagram {
			providers = append(providers, connectionsservice.NewInstagramProvider(provCfg))
			continue
		}
		providers = append(providers, connectionsservice.NewGoogleProvider(name, provCfg))
	}
	return providers
}
