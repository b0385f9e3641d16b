package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/sandeepkv93/otp-account-service/internal/http/response"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/service"
)

type errorMapping struct {
	err    error
	status int
	code   string
	key    string
}

// Checked in order after the typed errors.
var serviceErrorTable = []errorMapping{
	{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "user_does_not_exist"},
	{service.ErrConflict, http.StatusConflict, "CONFLICT", "user_exists"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid_credentials"},
	{service.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{service.ErrOTPAlreadyPending, http.StatusBadRequest, "OTP_ALREADY_PENDING", "otp_already_pending"},
	{service.ErrOTPMismatch, http.StatusBadRequest, "OTP_MISMATCH", "otp_incorrect"},
	{service.ErrOTPNotFound, http.StatusBadRequest, "OTP_EXPIRED", "otp_expired"},
	{service.ErrPermanentlyDeleted, http.StatusUnauthorized, "PERMANENTLY_DELETED", "permanently_deleted"},
	{service.ErrUpstreamUnavailable, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "provider_unavailable"},
	{service.ErrProviderTokenRejected, http.StatusUnauthorized, "PROVIDER_TOKEN_REJECTED", "provider_token_rejected"},
	{service.ErrProviderEmailUnverified, http.StatusUnauthorized, "PROVIDER_EMAIL_UNVERIFIED", "provider_email_unverified"},
	{service.ErrProviderMissingEmail, http.StatusUnauthorized, "PROVIDER_MISSING_EMAIL", "provider_missing_email"},
}

// writeServiceError is the single point where service errors become HTTP
// responses. Unknown errors are logged and rendered as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, dict *i18n.Dictionary, err error) {
	tag := i18n.LanguageFromContext(r.Context())

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		details := map[string]string{validationErr.Field: validationErr.Message}
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", dict.Message(tag, "validation_failed", nil), details)
		return
	}
	var notVerified *service.NotVerifiedError
	if errors.As(err, &notVerified) {
		details := otpTicketView{
			Email:     notVerified.Email,
			OTPExpiry: int64(notVerified.OTPTTL.Seconds()),
			ExpiresAt: notVerified.OTPExpiresAt,
			Type:      string(notVerified.Type),
		}
		response.Error(w, r, http.StatusForbidden, "NOT_VERIFIED", dict.Message(tag, "account_not_verified", nil), details)
		return
	}
	var cooldown *service.CooldownError
	if errors.As(err, &cooldown) {
		seconds := int(math.Ceil(cooldown.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		msg := dict.Message(tag, "too_many_attempts", map[string]any{"seconds": seconds})
		response.Error(w, r, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", msg, map[string]int{"retryAfterSeconds": seconds})
		return
	}
	for _, m := range serviceErrorTable {
		if errors.Is(err, m.err) {
			response.Error(w, r, m.status, m.code, dict.Message(tag, m.key, nil), nil)
			return
		}
	}
	slog.ErrorContext(r.Context(), "unhandled service error", "error", err, "path", r.URL.Path)
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL", dict.Message(tag, "internal_error", nil), nil)
}

// errorReason is a low-cardinality label for audit lines and metrics.
func errorReason(err error) string {
	var cooldown *service.CooldownError
	if errors.As(err, &cooldown) {
		return "cooldown"
	}
	if errors.Is(err, service.ErrValidation) {
		return "validation"
	}
	if errors.Is(err, service.ErrNotVerified) {
		return "not_verified"
	}
	for _, m := range serviceErrorTable {
		if errors.Is(err, m.err) {
			return m.key
		}
	}
	return "internal"
}
