package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/repository"
	"github.com/sandeepkv93/otp-account-service/internal/security"
)

type RegisterInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	MessagingToken string
}

type LoginInput struct {
	Email          string
	Password       string
	MessagingToken string
	ClientIP       string
}

type SocialLoginInput struct {
	Source         domain.RegisterSource
	AccessToken    string
	MessagingToken string
}

type TokenLoginInput struct {
	MessagingToken string
}

type VerifyOTPInput struct {
	Email    string
	Code     string
	Type     domain.OTPType
	ClientIP string
}

type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
	ClientIP    string
}

// AuthResult is what a successful flow hands back to the transport layer.
// Token and OTP are nil when the flow does not produce them.
type AuthResult struct {
	User  *domain.User
	Token *IssuedToken
	OTP   *OTPTicket
}

type AuthSettings struct {
	TokenTTL             time.Duration
	SocialTokenTTL       time.Duration
	OTPTTL               time.Duration
	ForgotPasswordOTPTTL time.Duration
	ResetRevokesSessions bool
}

type AuthService struct {
	users     repository.UserRepository
	messaging repository.MessagingTokenRepository
	otp       *OTPService
	tokens    *TokenService
	lifecycle *AccountLifecycleService
	providers *SocialProviderRegistry
	guard     AttemptGuard
	settings  AuthSettings
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	messaging repository.MessagingTokenRepository,
	otp *OTPService,
	tokens *TokenService,
	lifecycle *AccountLifecycleService,
	providers *SocialProviderRegistry,
	guard AttemptGuard,
	settings AuthSettings,
	logger *slog.Logger,
) *AuthService {
	if guard == nil {
		guard = NoopAttemptGuard{}
	}
	if providers == nil {
		providers = NewSocialProviderRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:     users,
		messaging: messaging,
		otp:       otp,
		tokens:    tokens,
		lifecycle: lifecycle,
		providers: providers,
		guard:     guard,
		settings:  settings,
		logger:    logger,
	}
}

// UserExists includes soft-deleted accounts, which still own their email.
func (s *AuthService) UserExists(ctx context.Context, email string) (bool, error) {
	_, err := s.users.FindByEmail(ctx, domain.NormalizeEmail(email), true)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Email:          domain.NormalizeEmail(in.Email),
		PasswordHash:   hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Verified:       false,
		RegisterSource: domain.RegisterSourceStandard,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.attachMessagingToken(ctx, user.ID, in.MessagingToken)

	// A session is persisted at signup but is not handed out
	// until the email is verified.
	if _, err := s.tokens.Issue(ctx, user, s.settings.TokenTTL); err != nil {
		return nil, err
	}

	// The account exists from here on. A code that was not sent is left for
	// the client to request again, so no ticket is returned.
	result := &AuthResult{User: user}
	ticket, err := s.otp.SendOTP(ctx, user.Email, OTPOptions{TTL: s.settings.OTPTTL, Type: domain.OTPTypeAccountCreation})
	switch {
	case err == nil:
		result.OTP = ticket
	case errors.Is(err, ErrOTPAlreadyPending):
	default:
		s.logger.WarnContext(ctx, "signup otp not delivered", "user_id", user.ID, "error", err)
	}
	observability.RecordAuthLogin(ctx, "register", "success")
	return result, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := domain.NormalizeEmail(in.Email)
	key := AttemptKey{Scope: AttemptScopeLogin, Email: email, IP: in.ClientIP}
	if err := Gate(ctx, s.guard, key); err != nil {
		observability.RecordAuthLogin(ctx, "standard", "throttled")
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email, true)
	if err != nil {
		observability.RecordAuthLogin(ctx, "standard", "not_found")
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ok, err := security.VerifyPassword(user.PasswordHash, in.Password)
	if err != nil && !errors.Is(err, security.ErrInvalidHash) {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		RegisterFailure(ctx, s.guard, key)
		observability.RecordAuthLogin(ctx, "standard", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if err := s.guard.Reset(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "reset login attempts", "error", err)
	}

	if !user.Verified {
		ticket, err := s.otp.SendOTP(ctx, email, OTPOptions{TTL: s.settings.OTPTTL, ForceResend: true, Type: domain.OTPTypeAccountCreation})
		if err != nil {
			return nil, err
		}
		observability.RecordAuthLogin(ctx, "standard", "not_verified")
		return nil, &NotVerifiedError{Email: email, OTPExpiresAt: ticket.ExpiresAt, OTPTTL: ticket.TTL, Type: ticket.Type}
	}

	if err := s.ensureRestorable(ctx, user); err != nil {
		observability.RecordAuthLogin(ctx, "standard", "permanently_deleted")
		return nil, err
	}
	s.attachMessagingToken(ctx, user.ID, in.MessagingToken)
	token, err := s.tokens.Issue(ctx, user, s.settings.TokenTTL)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthLogin(ctx, "standard", "success")
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) SocialLogin(ctx context.Context, in SocialLoginInput) (*AuthResult, error) {
	provider := string(in.Source)
	profile, err := s.providers.Exchange(ctx, in.Source, in.AccessToken)
	if err != nil {
		observability.RecordAuthLogin(ctx, provider, "provider_error")
		return nil, err
	}
	user, err := s.findOrCreateSocialUser(ctx, profile)
	if err != nil {
		observability.RecordAuthLogin(ctx, provider, "error")
		return nil, err
	}
	if err := s.ensureRestorable(ctx, user); err != nil {
		observability.RecordAuthLogin(ctx, provider, "permanently_deleted")
		return nil, err
	}
	s.attachMessagingToken(ctx, user.ID, in.MessagingToken)
	token, err := s.tokens.Issue(ctx, user, s.settings.SocialTokenTTL)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthLogin(ctx, provider, "success")
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) findOrCreateSocialUser(ctx context.Context, profile *SocialProfile) (*domain.User, error) {
	user, err := s.users.FindByEmail(ctx, profile.Email, true)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	user = &domain.User{
		Email:          profile.Email,
		PasswordHash:   domain.PlaceholderPasswordHash,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		Verified:       true,
		RegisterSource: profile.Source,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent first login for the same email.
			return s.users.FindByEmail(ctx, profile.Email, true)
		}
		return nil, fmt.Errorf("create social user: %w", err)
	}
	return user, nil
}

// TokenLogin re-issues a token for the bearer's account. The bearer may belong
// to a soft-deleted account, which is restored while inside the grace window.
func (s *AuthService) TokenLogin(ctx context.Context, userID string, in TokenLoginInput) (*AuthResult, error) {
	user, err := s.loadUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRestorable(ctx, user); err != nil {
		observability.RecordAuthLogin(ctx, "token", "permanently_deleted")
		return nil, err
	}
	s.attachMessagingToken(ctx, user.ID, in.MessagingToken)
	token, err := s.tokens.Issue(ctx, user, s.settings.TokenTTL)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthLogin(ctx, "token", "success")
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) RequestOTP(ctx context.Context, email string, otpType domain.OTPType) (*OTPTicket, error) {
	return s.otp.SendOTP(ctx, email, OTPOptions{TTL: s.settings.OTPTTL, Type: otpType})
}

// VerifyOTP consumes account-creation codes. Forgot-password codes stay in
// place so the follow-up reset can present them again.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*AuthResult, error) {
	email := domain.NormalizeEmail(in.Email)
	key := AttemptKey{Scope: AttemptScopeOTPVerify, Email: email, IP: in.ClientIP}
	if err := Gate(ctx, s.guard, key); err != nil {
		return nil, err
	}
	creation := in.Type == domain.OTPTypeAccountCreation
	if err := s.otp.VerifyOTP(ctx, email, in.Code, creation); err != nil {
		if errors.Is(err, ErrOTPMismatch) {
			RegisterFailure(ctx, s.guard, key)
		}
		return nil, err
	}
	if err := s.guard.Reset(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "reset otp attempts", "error", err)
	}
	if !creation {
		return &AuthResult{}, nil
	}

	user, err := s.users.FindByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !user.Verified {
		if err := s.users.MarkVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("mark verified: %w", err)
		}
		user.Verified = true
	}
	token, err := s.tokens.Issue(ctx, user, s.settings.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string) (*OTPTicket, error) {
	return s.otp.SendOTP(ctx, email, OTPOptions{
		TTL:         s.settings.ForgotPasswordOTPTTL,
		ForceResend: true,
		Type:        domain.OTPTypeForgotPassword,
	})
}

func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	email := domain.NormalizeEmail(in.Email)
	key := AttemptKey{Scope: AttemptScopeOTPVerify, Email: email, IP: in.ClientIP}
	if err := Gate(ctx, s.guard, key); err != nil {
		return err
	}
	if err := s.otp.VerifyOTP(ctx, email, in.Code, true); err != nil {
		if errors.Is(err, ErrOTPMismatch) {
			RegisterFailure(ctx, s.guard, key)
		}
		return err
	}
	if err := s.guard.Reset(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "reset otp attempts", "error", err)
	}

	user, err := s.users.FindByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	hash, err := security.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if s.settings.ResetRevokesSessions {
		if err := s.tokens.InvalidateAll(ctx, user.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if err := s.tokens.Invalidate(ctx, rawToken); err != nil {
		observability.RecordAuthLogout(ctx, "current", "error")
		return err
	}
	observability.RecordAuthLogout(ctx, "current", "success")
	return nil
}

func (s *AuthService) DeleteAccount(ctx context.Context, userID string) (int, error) {
	user, err := s.loadUser(ctx, userID, false)
	if err != nil {
		return 0, err
	}
	if err := s.lifecycle.Delete(ctx, user); err != nil {
		return 0, err
	}
	return s.lifecycle.GraceDays(), nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.loadUser(ctx, userID, false)
}

func (s *AuthService) loadUser(ctx context.Context, userID string, includeTrashed bool) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID, includeTrashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ensureRestorable(ctx context.Context, user *domain.User) error {
	ok, err := s.lifecycle.RestoreIfNotExpired(ctx, user)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermanentlyDeleted
	}
	return nil
}

// Messaging tokens are a convenience; failing to store one never fails a login.
func (s *AuthService) attachMessagingToken(ctx context.Context, userID, token string) {
	if token == "" || s.messaging == nil {
		return
	}
	if err := s.messaging.Attach(ctx, userID, token); err != nil {
		s.logger.WarnContext(ctx, "attach messaging token", "user_id", userID, "error", err)
	}
}
