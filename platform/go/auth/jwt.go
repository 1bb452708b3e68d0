package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token uses distinguish the two halves of a pair.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the payload of every token issued by the API.
type Claims struct {
	Email    string `json:"email,omitempty"`
	UserType string `json:"user_type"`
	TenantID string `json:"tenant_id,omitempty"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Subject identifies who a token pair is minted for.
type Subject struct {
	UserID   string
	Email    string
	UserType string
	TenantID string
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssuerConfig configures HS256 token issuance.
type IssuerConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Issuer signs and verifies access/refresh tokens with a shared secret.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 60 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "infofluencer"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

// Issue mints a fresh access/refresh pair for subject.
func (i *Issuer) Issue(subject Subject) (TokenPair, error) {
	now := i.now()

	access, accessExp, err := i.sign(subject, TokenUseAccess, now, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := i.sign(subject, TokenUseRefresh, now, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) sign(subject Subject, use string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Email:    subject.Email,
		UserType: subject.UserType,
		TenantID: subject.TenantID,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, algorithm, issuer and expiry.
func (i *Issuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh accepts only refresh tokens.
func (i *Issuer) ParseRefresh(token string) (*Claims, error) {
	claims, err := i.Parse(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != TokenUseRefresh {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// Verifier adapts the issuer to the JWT middleware.
func (i *Issuer) Verifier() VerifyFunc {
	return func(_ context.Context, token string) (*Claims, error) {
		return i.Parse(token)
	}
}

func ExtractJWTToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}
