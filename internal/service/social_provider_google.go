package service

import (
	"context"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

type GoogleProvider struct {
	cfg SocialProviderConfig
}

func NewGoogleProvider(cfg SocialProviderConfig) *GoogleProvider {
	if cfg.GoogleUserInfo == "" {
		cfg.GoogleUserInfo = "https://www.googleapis.com/oauth2/v3/userinfo"
	}
	return &GoogleProvider{cfg: cfg}
}

func (p *GoogleProvider) Source() domain.RegisterSource { return domain.RegisterSourceGoogle }

func (p *GoogleProvider) Exchange(ctx context.Context, accessToken string) (*SocialProfile, error) {
	client, ctx := bearerClient(ctx, p.cfg, accessToken)
	var body struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := getProviderJSON(ctx, client, p.cfg.Timeout, p.cfg.GoogleUserInfo, &body); err != nil {
		return nil, err
	}
	if body.Email == "" {
		return nil, ErrProviderMissingEmail
	}
	if body.EmailVerified != nil && !*body.EmailVerified {
		return nil, ErrProviderEmailUnverified
	}
	return &SocialProfile{
		Subject:   body.Sub,
		Email:     body.Email,
		FirstName: body.GivenName,
		LastName:  body.FamilyName,
	}, nil
}
