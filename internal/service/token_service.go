package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/repository"
	"github.com/sandeepkv93/otp-account-service/internal/security"
)

const (
	accessTokenPrefix = "oat_"
	accessTokenBytes  = 32
)

type IssuedToken struct {
	Type      string    `json:"type"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenService issues opaque bearer tokens. Only the peppered hash of a token
// is stored, so a database dump cannot be replayed.
type TokenService struct {
	repo   repository.AccessTokenRepository
	pepper string
	now    func() time.Time
	logger *slog.Logger
}

func NewTokenService(repo repository.AccessTokenRepository, pepper string, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{repo: repo, pepper: pepper, now: time.Now, logger: logger}
}

func (s *TokenService) Issue(ctx context.Context, user *domain.User, ttl time.Duration) (*IssuedToken, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("issue token: missing user")
	}
	raw, err := security.NewOpaqueToken(accessTokenPrefix, accessTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	expiresAt := s.now().Add(ttl).UTC()
	record := &domain.AccessToken{
		UserID:    user.ID,
		TokenHash: security.HashToken(s.pepper, raw),
		Name:      "auth",
		ExpiresAt: expiresAt,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	return &IssuedToken{Type: "bearer", Token: raw, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a bearer value to its unexpired token record. Tokens
// of soft-deleted accounts are rejected.
func (s *TokenService) Authenticate(ctx context.Context, raw string) (*domain.AccessToken, error) {
	return s.authenticate(ctx, raw, false)
}

// AllowingSoftDeleted returns an authenticator that also accepts tokens whose
// owner is soft-deleted. Token login uses it so the restore check can run.
func (s *TokenService) AllowingSoftDeleted() TokenAuthenticator {
	return softDeletedOwnerAuthenticator{tokens: s}
}

type softDeletedOwnerAuthenticator struct{ tokens *TokenService }

func (a softDeletedOwnerAuthenticator) Authenticate(ctx context.Context, raw string) (*domain.AccessToken, error) {
	return a.tokens.authenticate(ctx, raw, true)
}

func (s *TokenService) authenticate(ctx context.Context, raw string, includeTrashedOwner bool) (*domain.AccessToken, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, accessTokenPrefix) {
		observability.RecordAccessTokenValidation(ctx, "malformed")
		return nil, ErrUnauthenticated
	}
	now := s.now()
	token, err := s.repo.FindValidByHash(ctx, security.HashToken(s.pepper, raw), now, includeTrashedOwner)
	if err != nil {
		if errors.Is(err, repository.ErrAccessTokenNotFound) {
			observability.RecordAccessTokenValidation(ctx, "unknown")
			return nil, ErrUnauthenticated
		}
		observability.RecordAccessTokenValidation(ctx, "error")
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if err := s.repo.Touch(ctx, token.ID, now); err != nil {
		s.logger.WarnContext(ctx, "touch access token", "token_id", token.ID, "error", err)
	}
	observability.RecordAccessTokenValidation(ctx, "ok")
	return token, nil
}

func (s *TokenService) Invalidate(ctx context.Context, raw string) error {
	err := s.repo.DeleteByHash(ctx, security.HashToken(s.pepper, strings.TrimSpace(raw)))
	if errors.Is(err, repository.ErrAccessTokenNotFound) {
		return ErrUnauthenticated
	}
	return err
}

func (s *TokenService) InvalidateAll(ctx context.Context, userID string) error {
	n, err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	s.logger.InfoContext(ctx, "revoked all access tokens", "user_id", userID, "count", n)
	return nil
}

// PruneExpired removes tokens past their expiry.
func (s *TokenService) PruneExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
