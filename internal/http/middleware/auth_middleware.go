package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/service"
)

type contextKey string

const (
	accessTokenContextKey contextKey = "access_token"
	rawTokenContextKey    contextKey = "raw_access_token"
)

// BearerAuth resolves the Authorization header to a persisted access token.
func BearerAuth(tokens service.TokenAuthenticator, dict *i18n.Dictionary) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing")
				writeLocalizedError(w, r, dict, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized", nil)
				return
			}
			token, err := tokens.Authenticate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					observability.RecordAccessTokenValidation(r.Context(), "rejected")
					writeLocalizedError(w, r, dict, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized", nil)
					return
				}
				observability.RecordAccessTokenValidation(r.Context(), "error")
				writeLocalizedError(w, r, dict, http.StatusInternalServerError, "INTERNAL", "internal_error", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "ok")
			observability.AnnotateRequest(r.Context(), "user_id", token.UserID)
			ctx := context.WithValue(r.Context(), accessTokenContextKey, token)
			ctx = context.WithValue(ctx, rawTokenContextKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AccessTokenFromContext(ctx context.Context) (*domain.AccessToken, bool) {
	t, ok := ctx.Value(accessTokenContextKey).(*domain.AccessToken)
	return t, ok && t != nil
}

func RawTokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(rawTokenContextKey).(string)
	return raw, ok && raw != ""
}

// WithAccessToken attaches an authenticated token to ctx. Handlers under test
// use it to skip BearerAuth.
func WithAccessToken(ctx context.Context, token *domain.AccessToken, raw string) context.Context {
	ctx = context.WithValue(ctx, accessTokenContextKey, token)
	return context.WithValue(ctx, rawTokenContextKey, raw)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
