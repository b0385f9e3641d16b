package service

import (
	"context"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

type LinkedInProvider struct {
	cfg SocialProviderConfig
}

func NewLinkedInProvider(cfg SocialProviderConfig) *LinkedInProvider {
	if cfg.LinkedInEmail == "" {
		cfg.LinkedInEmail = "https://api.linkedin.com/v2/emailAddress?q=members&projection=(elements*(handle~))"
	}
	return &LinkedInProvider{cfg: cfg}
}

func (p *LinkedInProvider) Source() domain.RegisterSource { return domain.RegisterSourceLinkedIn }

// Exchange reads the primary email handle. LinkedIn does not share names on
// this endpoint.
func (p *LinkedInProvider) Exchange(ctx context.Context, accessToken string) (*SocialProfile, error) {
	client, ctx := bearerClient(ctx, p.cfg, accessToken)
	var body struct {
		Elements []struct {
			Handle struct {
				EmailAddress string `json:"emailAddress"`
			} `json:"handle~"`
		} `json:"elements"`
	}
	if err := getProviderJSON(ctx, client, p.cfg.Timeout, p.cfg.LinkedInEmail, &body); err != nil {
		return nil, err
	}
	if len(body.Elements) == 0 || body.Elements[0].Handle.EmailAddress == "" {
		return nil, ErrProviderMissingEmail
	}
	return &SocialProfile{Email: body.Elements[0].Handle.EmailAddress}, nil
}
