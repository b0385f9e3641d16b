package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
)

type UserLookup interface {
	UserExists(ctx context.Context, email string) (bool, error)
}

// CheckUserDoesNotExist rejects requests whose body names a registered email,
// soft-deleted accounts included.
func CheckUserDoesNotExist(users UserLookup, dict *i18n.Dictionary) func(http.Handler) http.Handler {
	return emailPrecondition("user_does_not_exist", users, dict, func(exists bool) (int, string, string, bool) {
		return http.StatusConflict, "CONFLICT", "user_exists", !exists
	})
}

// CheckUserExists rejects requests whose body names an unknown email.
func CheckUserExists(users UserLookup, dict *i18n.Dictionary) func(http.Handler) http.Handler {
	return emailPrecondition("user_exists", users, dict, func(exists bool) (int, string, string, bool) {
		return http.StatusNotFound, "NOT_FOUND", "user_does_not_exist", exists
	})
}

// emailPrecondition peeks at the JSON body for "email" and restores the body
// for the next handler. Bodies without a usable email pass through so the
// handler reports the validation error.
func emailPrecondition(check string, users UserLookup, dict *i18n.Dictionary, decide func(exists bool) (status int, code, key string, pass bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := peekEmail(r)
			if err != nil {
				observability.RecordPreconditionEvent(r.Context(), check, "unreadable")
				writeLocalizedError(w, r, dict, http.StatusBadRequest, "VALIDATION_ERROR", "validation_failed", nil)
				return
			}
			if email == "" {
				observability.RecordPreconditionEvent(r.Context(), check, "skipped")
				next.ServeHTTP(w, r)
				return
			}
			exists, err := users.UserExists(r.Context(), email)
			if err != nil {
				observability.RecordPreconditionEvent(r.Context(), check, "error")
				writeLocalizedError(w, r, dict, http.StatusInternalServerError, "INTERNAL", "internal_error", nil)
				return
			}
			status, code, key, pass := decide(exists)
			if !pass {
				observability.RecordPreconditionEvent(r.Context(), check, "rejected")
				writeLocalizedError(w, r, dict, status, code, key, nil)
				return
			}
			observability.RecordPreconditionEvent(r.Context(), check, "passed")
			next.ServeHTTP(w, r)
		})
	}
}

func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	raw, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var body struct {
		Email any `json:"email"`
	}
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &body) != nil {
		return "", nil
	}
	email, _ := body.Email.(string)
	return strings.TrimSpace(email), nil
}
