package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/infofluencer/infofluencer/platform/go/graph"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

const (
	defaultInstagramBaseURL = "https://graph.instagram.com"
	facebookDialogURL       = "https://www.facebook.com/v22.0/dialog/oauth"
)

var (
	ga4Scopes = []string{
		"https://www.googleapis.com/auth/analytics.readonly",
		"openid",
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}
	youtubeScopes = []string{
		"https://www.googleapis.com/auth/youtube.readonly",
		"https://www.googleapis.com/auth/yt-analytics.readonly",
		"openid",
		"https://www.googleapis.com/auth/userinfo.email",
	}
	instagramScopes = []string{
		"pages_show_list",
		"instagram_basic",
		"instagram_manage_insights",
		"pages_read_engagement",
	}
)

// Resource is a provider-side object reports are fetched for.
type Resource struct {
	ID   string
	Name string
}

// OAuthProvider is one provider's authorization, exchange and refresh contract.
type OAuthProvider interface {
	Name() report.Provider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*oauth2.Token, error)
	// Discover looks up the default resource after authorization. Providers
	// without one return a zero Resource.
	Discover(ctx context.Context, accessToken string) (Resource, error)
}

// ProviderConfig holds client credentials and optional endpoint overrides.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// AuthURL and TokenURL override the provider defaults.
	AuthURL  string
	TokenURL string
	// GraphBaseURL and InstagramBaseURL apply to Instagram only.
	GraphBaseURL     string
	InstagramBaseURL string
	// HTTPClient carries timeouts, the https guard and the circuit breaker.
	HTTPClient *http.Client
}

// Configured reports whether client credentials are present.
func (c ProviderConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

func (c ProviderConfig) endpoint(def oauth2.Endpoint) oauth2.Endpoint {
	if c.AuthURL != "" {
		def.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		def.TokenURL = c.TokenURL
	}
	return def
}

func (c ProviderConfig) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// NewGoogleProvider builds the GA4 or YouTube provider.
func NewGoogleProvider(name report.Provider, cfg ProviderConfig) OAuthProvider {
	scopes := ga4Scopes
	if name == report.ProviderYouTube {
		scopes = youtubeScopes
	}
	return &googleProvider{
		name:   name,
		client: cfg.client(),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     cfg.endpoint(google.Endpoint),
		},
	}
}

type googleProvider struct {
	name   report.Provider
	client *http.Client
	oauth  *oauth2.Config
}

func (p *googleProvider) Name() report.Provider { return p.name }

func (p *googleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"), oauth2.SetAuthURLParam("include_granted_scopes", "true"))
}

func (p *googleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth.Exchange(p.withClient(ctx), code)
}

func (p *googleProvider) Refresh(ctx context.Context, _ string, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: no refresh token stored", p.name)
	}
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	return p.oauth.TokenSource(p.withClient(ctx), expired).Token()
}

func (p *googleProvider) Discover(context.Context, string) (Resource, error) {
	return Resource{}, nil
}

func (p *googleProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// NewInstagramProvider builds the Instagram (Facebook Login) provider.
func NewInstagramProvider(cfg ProviderConfig) OAuthProvider {
	client := cfg.client()
	graphAPI := graph.New(cfg.GraphBaseURL, client)
	ig := cfg.InstagramBaseURL
	if ig == "" {
		ig = defaultInstagramBaseURL
	}
	return &instagramProvider{
		client:  client,
		graph:   graphAPI,
		igGraph: graph.New(ig, client),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       instagramScopes,
			Endpoint: cfg.endpoint(oauth2.Endpoint{
				AuthURL:   facebookDialogURL,
				TokenURL:  graphAPI.BaseURL() + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			}),
		},
	}
}

type instagramProvider struct {
	client  *http.Client
	graph   *graph.Client
	igGraph *graph.Client
	oauth   *oauth2.Config
}

func (p *instagramProvider) Name() report.Provider { return report.ProviderInstagram }

func (p *instagramProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

func (p *instagramProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.client), code)
}

type graphTokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// Refresh extends a long-lived Instagram token; Instagram has no refresh token.
func (p *instagramProvider) Refresh(ctx context.Context, accessToken, _ string) (*oauth2.Token, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("instagram: no access token stored")
	}
	var body graphTokenResponse
	if err := p.igGraph.Get(ctx, "refresh_access_token", accessToken, url.Values{"grant_type": {"ig_refresh_token"}}, &body); err != nil {
		return nil, err
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("instagram: refresh response has no access token")
	}
	tok := &oauth2.Token{AccessToken: body.AccessToken, TokenType: body.TokenType}
	if secs, err := body.ExpiresIn.Int64(); err == nil && secs > 0 {
		tok.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return tok, nil
}

type pageAccounts struct {
	Data []struct {
		ID                       string `json:"id"`
		Name                     string `json:"name"`
		InstagramBusinessAccount *struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"instagram_business_account"`
	} `json:"data"`
}

// Discover returns the first Instagram business account linked to the
// user's Facebook pages.
func (p *instagramProvider) Discover(ctx context.Context, accessToken string) (Resource, error) {
	var body pageAccounts
	q := url.Values{"fields": {"name,instagram_business_account{id,username}"}}
	if err := p.graph.Get(ctx, "me/accounts", accessToken, q, &body); err != nil {
		return Resource{}, err
	}
	for _, page := range body.Data {
		if acct := page.InstagramBusinessAccount; acct != nil && acct.ID != "" {
			name := acct.Username
			if name == "" {
				name = page.Name
			}
			return Resource{ID: acct.ID, Name: name}, nil
		}
	}
	return Resource{}, nil
}
