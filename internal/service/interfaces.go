package service

import (
	"context"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=gomock/auth_service_mock.go -package=servicegomock
//go:generate mockgen -destination=collaborators_mock_test.go -package=service . OTPNotifier,SocialProvider

type AuthServiceInterface interface {
	UserExists(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, in LoginInput) (*AuthResult, error)
	SocialLogin(ctx context.Context, in SocialLoginInput) (*AuthResult, error)
	TokenLogin(ctx context.Context, userID string, in TokenLoginInput) (*AuthResult, error)
	RequestOTP(ctx context.Context, email string, otpType domain.OTPType) (*OTPTicket, error)
	VerifyOTP(ctx context.Context, in VerifyOTPInput) (*AuthResult, error)
	ForgotPassword(ctx context.Context, email string) (*OTPTicket, error)
	ResetPassword(ctx context.Context, in ResetPasswordInput) error
	Logout(ctx context.Context, rawToken string) error
	DeleteAccount(ctx context.Context, userID string) (graceDays int, err error)
	Me(ctx context.Context, userID string) (*domain.User, error)
}

// TokenAuthenticator resolves bearer tokens for the auth middleware.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*domain.AccessToken, error)
}
