package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
)

// SocialProfile is the identity a provider vouches for.
type SocialProfile struct {
	Source    domain.RegisterSource
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

type SocialProvider interface {
	Source() domain.RegisterSource
	Exchange(ctx context.Context, accessToken string) (*SocialProfile, error)
}

type SocialProviderConfig struct {
	Timeout        time.Duration
	GoogleUserInfo string
	FacebookGraph  string
	LinkedInEmail  string
	AppleJWKS      string
	AppleIssuer    string
	AppleClientID  string
	HTTPClient     *http.Client
}

type SocialProviderRegistry struct {
	providers map[domain.RegisterSource]SocialProvider
}

func NewSocialProviderRegistry(providers ...SocialProvider) *SocialProviderRegistry {
	r := &SocialProviderRegistry{providers: make(map[domain.RegisterSource]SocialProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Source()] = p
	}
	return r
}

// BuildSocialProviderRegistry registers the named providers.
func BuildSocialProviderRegistry(enabled []string, cfg SocialProviderConfig) (*SocialProviderRegistry, error) {
	providers := make([]SocialProvider, 0, len(enabled))
	for _, name := range enabled {
		source, err := domain.ParseRegisterSource(name)
		if err != nil {
			return nil, err
		}
		switch source {
		case domain.RegisterSourceGoogle:
			providers = append(providers, NewGoogleProvider(cfg))
		case domain.RegisterSourceFacebook:
			providers = append(providers, NewFacebookProvider(cfg))
		case domain.RegisterSourceLinkedIn:
			providers = append(providers, NewLinkedInProvider(cfg))
		case domain.RegisterSourceApple:
			providers = append(providers, NewAppleProvider(cfg))
		default:
			return nil, fmt.Errorf("%s is not a social provider", source)
		}
	}
	return NewSocialProviderRegistry(providers...), nil
}

func (r *SocialProviderRegistry) Get(source domain.RegisterSource) (SocialProvider, bool) {
	p, ok := r.providers[source]
	return p, ok
}

func (r *SocialProviderRegistry) Sources() []domain.RegisterSource {
	out := make([]domain.RegisterSource, 0, len(r.providers))
	for s := range r.providers {
		out = append(out, s)
	}
	return out
}

func (r *SocialProviderRegistry) Exchange(ctx context.Context, source domain.RegisterSource, accessToken string) (profile *SocialProfile, err error) {
	ctx, end := observability.StartSpan(ctx, "social.exchange", attribute.String("social.source", string(source)))
	defer func() { end(err) }()
	return r.exchange(ctx, source, accessToken)
}

func (r *SocialProviderRegistry) exchange(ctx context.Context, source domain.RegisterSource, accessToken string) (*SocialProfile, error) {
	p, ok := r.Get(source)
	if !ok {
		return nil, NewValidationError("source", fmt.Sprintf("provider %q is not enabled", source))
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, NewValidationError("accessToken", "is required")
	}
	start := time.Now()
	profile, err := p.Exchange(ctx, accessToken)
	provider := string(source)
	if err != nil {
		observability.RecordSocialProviderRequestDuration(ctx, provider, "error", time.Since(start))
		observability.RecordSocialProviderError(ctx, provider, classifyProviderError(err))
		return nil, err
	}
	observability.RecordSocialProviderRequestDuration(ctx, provider, "success", time.Since(start))
	profile.Source = source
	profile.Email = domain.NormalizeEmail(profile.Email)
	if profile.Email == "" {
		observability.RecordSocialProviderError(ctx, provider, "missing_email")
		return nil, ErrProviderMissingEmail
	}
	return profile, nil
}

func classifyProviderError(err error) string {
	switch {
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrProviderTokenRejected):
		return "token_rejected"
	case errors.Is(err, ErrProviderEmailUnverified):
		return "email_unverified"
	case errors.Is(err, ErrProviderMissingEmail):
		return "missing_email"
	default:
		return "other"
	}
}

// bearerClient returns an HTTP client that presents accessToken on every call.
func bearerClient(ctx context.Context, cfg SocialProviderConfig, accessToken string) (*http.Client, context.Context) {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, src), ctx
}

// getProviderJSON fetches url and decodes a JSON body into out. Transport
// failures and 5xx map to ErrUpstreamUnavailable, other non-2xx responses to
// ErrProviderTokenRejected.
func getProviderJSON(ctx context.Context, client *http.Client, timeout time.Duration, url string, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrProviderTokenRejected, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

func splitDisplayName(name string) (string, string) {
	name = strings.TrimSpace(name)
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}
