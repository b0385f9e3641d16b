package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

const appleJWKSMinRefresh = time.Minute

type appleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	jwt.RegisteredClaims
}

// AppleProvider verifies Sign in with Apple identity tokens against Apple's
// published signing keys.
type AppleProvider struct {
	cfg    SocialProviderConfig
	client *http.Client

	mu          sync.Mutex
	keys        jose.JSONWebKeySet
	lastRefresh time.Time
	now         func() time.Time
}

func NewAppleProvider(cfg SocialProviderConfig) *AppleProvider {
	if cfg.AppleJWKS == "" {
		cfg.AppleJWKS = "https://appleid.apple.com/auth/keys"
	}
	if cfg.AppleIssuer == "" {
		cfg.AppleIssuer = "https://appleid.apple.com"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &AppleProvider{cfg: cfg, client: client, now: time.Now}
}

func (p *AppleProvider) Source() domain.RegisterSource { return domain.RegisterSourceApple }

func (p *AppleProvider) Exchange(ctx context.Context, identityToken string) (*SocialProfile, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(p.cfg.AppleIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.cfg.AppleClientID != "" {
		opts = append(opts, jwt.WithAudience(p.cfg.AppleClientID))
	}

	var keyErr error
	claims := &appleClaims{}
	_, err := jwt.ParseWithClaims(identityToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := p.publicKey(ctx, kid)
		if err != nil {
			keyErr = err
		}
		return key, err
	}, opts...)
	if err != nil {
		if keyErr != nil && errors.Is(keyErr, ErrUpstreamUnavailable) {
			return nil, keyErr
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderTokenRejected, err)
	}
	if claims.Email == "" {
		return nil, ErrProviderMissingEmail
	}
	if !appleEmailVerified(claims.EmailVerified) {
		return nil, ErrProviderEmailUnverified
	}
	return &SocialProfile{Subject: claims.Subject, Email: claims.Email}, nil
}

// publicKey looks kid up in the cached key set and refetches the set once
// when kid is unknown.
func (p *AppleProvider) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("token has no kid")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if key, ok := rsaKey(p.keys, kid); ok {
		return key, nil
	}
	if !p.lastRefresh.IsZero() && p.now().Sub(p.lastRefresh) < appleJWKSMinRefresh && len(p.keys.Keys) > 0 {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	var set jose.JSONWebKeySet
	if err := getProviderJSON(ctx, p.client, p.cfg.Timeout, p.cfg.AppleJWKS, &set); err != nil {
		if errors.Is(err, ErrProviderTokenRejected) {
			return nil, fmt.Errorf("%w: jwks %v", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	p.keys = set
	p.lastRefresh = p.now()
	if key, ok := rsaKey(p.keys, kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

func rsaKey(set jose.JSONWebKeySet, kid string) (*rsa.PublicKey, bool) {
	for _, k := range set.Key(kid) {
		if pub, ok := k.Key.(*rsa.PublicKey); ok {
			return pub, true
		}
	}
	return nil, false
}

// Apple sends email_verified as either a bool or the string "true".
func appleEmailVerified(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	case nil:
		return true
	default:
		return false
	}
}
