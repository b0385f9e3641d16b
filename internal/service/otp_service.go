package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/security"
)

type OTPOptions struct {
	TTL         time.Duration
	ForceResend bool
	Type        domain.OTPType
}

// OTPTicket describes an outstanding code without revealing it.
type OTPTicket struct {
	Email     string
	ExpiresAt time.Time
	TTL       time.Duration
	Type      domain.OTPType
}

type OTPService struct {
	store      CodeStore
	notifier   OTPNotifier
	digits     int
	defaultTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewOTPService(store CodeStore, notifier OTPNotifier, digits int, defaultTTL time.Duration, logger *slog.Logger) *OTPService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OTPService{
		store:      store,
		notifier:   notifier,
		digits:     digits,
		defaultTTL: defaultTTL,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *OTPService) Digits() int { return s.digits }

// SendOTP stores the hash of a fresh code for email and hands the plaintext to
// the notifier. Without ForceResend an outstanding code wins.
func (s *OTPService) SendOTP(ctx context.Context, email string, opts OTPOptions) (ticket *OTPTicket, err error) {
	ctx, end := observability.StartSpan(ctx, "otp.send",
		attribute.String("otp.type", string(opts.Type)),
		attribute.Bool("otp.force_resend", opts.ForceResend))
	defer func() { end(err) }()
	return s.sendOTP(ctx, email, opts)
}

func (s *OTPService) sendOTP(ctx context.Context, email string, opts OTPOptions) (*OTPTicket, error) {
	email = domain.NormalizeEmail(email)
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	otpType := opts.Type
	if otpType == "" {
		otpType = domain.OTPTypeAccountCreation
	}

	code, err := security.NewNumericCode(s.digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	hash := security.SHA256Hex(code)
	key := otpKey(email)

	if opts.ForceResend {
		if err := s.store.ForceSet(ctx, key, hash, ttl); err != nil {
			observability.RecordOTPEvent(ctx, string(otpType), "send", "error")
			return nil, fmt.Errorf("store otp: %w", err)
		}
	} else {
		stored, err := s.store.SetIfAbsent(ctx, key, hash, ttl)
		if err != nil {
			observability.RecordOTPEvent(ctx, string(otpType), "send", "error")
			return nil, fmt.Errorf("store otp: %w", err)
		}
		if !stored {
			observability.RecordOTPEvent(ctx, string(otpType), "send", "pending")
			return nil, ErrOTPAlreadyPending
		}
	}

	ticket := &OTPTicket{Email: email, ExpiresAt: s.now().Add(ttl), TTL: ttl, Type: otpType}
	delivery := OTPDelivery{
		Email:     email,
		Code:      code,
		ExpiresAt: ticket.ExpiresAt,
		Type:      otpType,
		Language:  i18n.LanguageFromContext(ctx),
	}
	if err := s.notifier.SendOTP(ctx, delivery); err != nil {
		// Leave no code behind that the user never received.
		if _, delErr := s.store.DeleteIfEquals(ctx, key, hash); delErr != nil {
			s.logger.WarnContext(ctx, "otp cleanup after notifier failure", "error", delErr)
		}
		observability.RecordOTPEvent(ctx, string(otpType), "send", "notify_error")
		return nil, fmt.Errorf("deliver otp: %w", err)
	}
	observability.RecordOTPEvent(ctx, string(otpType), "send", "sent")
	return ticket, nil
}

// VerifyOTP checks code against the stored hash. With deleteOnSuccess the
// record is consumed atomically, so only one of several racing callers wins.
func (s *OTPService) VerifyOTP(ctx context.Context, email, code string, deleteOnSuccess bool) (err error) {
	ctx, end := observability.StartSpan(ctx, "otp.verify", attribute.Bool("otp.consume", deleteOnSuccess))
	defer func() { end(err) }()
	return s.verifyOTP(ctx, email, code, deleteOnSuccess)
}

func (s *OTPService) verifyOTP(ctx context.Context, email, code string, deleteOnSuccess bool) error {
	email = domain.NormalizeEmail(email)
	key := otpKey(email)

	stored, ok, err := s.store.Get(ctx, key)
	if err != nil {
		observability.RecordOTPEvent(ctx, "any", "verify", "error")
		return fmt.Errorf("load otp: %w", err)
	}
	if !ok {
		observability.RecordOTPEvent(ctx, "any", "verify", "not_found")
		return ErrOTPNotFound
	}
	candidate := security.SHA256Hex(code)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) != 1 {
		observability.RecordOTPEvent(ctx, "any", "verify", "mismatch")
		return ErrOTPMismatch
	}
	if deleteOnSuccess {
		consumed, err := s.store.DeleteIfEquals(ctx, key, stored)
		if err != nil {
			observability.RecordOTPEvent(ctx, "any", "verify", "error")
			return fmt.Errorf("consume otp: %w", err)
		}
		if !consumed {
			observability.RecordOTPEvent(ctx, "any", "verify", "lost_race")
			return ErrOTPNotFound
		}
	}
	observability.RecordOTPEvent(ctx, "any", "verify", "success")
	return nil
}

func otpKey(email string) string {
	return "otp:" + email
}
