package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrNotVerified             = errors.New("account not verified")
	ErrOTPAlreadyPending       = errors.New("OTP already sent. Please wait for the current OTP to expire")
	ErrOTPMismatch             = errors.New("incorrect OTP")
	ErrOTPNotFound             = errors.New("OTP has expired or was not requested")
	ErrPermanentlyDeleted      = errors.New("account permanently deleted")
	ErrTooManyAttempts         = errors.New("too many attempts")
	ErrUpstreamUnavailable     = errors.New("identity provider unavailable")
	ErrProviderTokenRejected   = errors.New("identity provider rejected token")
	ErrProviderEmailUnverified = errors.New("identity provider email not verified")
	ErrProviderMissingEmail    = errors.New("identity provider returned no email")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotVerifiedError carries what a client needs to resume verification. It
// never includes the code itself.
type NotVerifiedError struct {
	Email        string
	OTPExpiresAt time.Time
	OTPTTL       time.Duration
	Type         domain.OTPType
}

func (e *NotVerifiedError) Error() string { return ErrNotVerified.Error() }

func (e *NotVerifiedError) Unwrap() error { return ErrNotVerified }

type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrTooManyAttempts, e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrTooManyAttempts }
