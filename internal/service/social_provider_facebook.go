package service

import (
	"context"
	"net/url"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

type FacebookProvider struct {
	cfg SocialProviderConfig
}

func NewFacebookProvider(cfg SocialProviderConfig) *FacebookProvider {
	if cfg.FacebookGraph == "" {
		cfg.FacebookGraph = "https://graph.facebook.com/me"
	}
	return &FacebookProvider{cfg: cfg}
}

func (p *FacebookProvider) Source() domain.RegisterSource { return domain.RegisterSourceFacebook }

func (p *FacebookProvider) Exchange(ctx context.Context, accessToken string) (*SocialProfile, error) {
	endpoint, err := url.Parse(p.cfg.FacebookGraph)
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("fields", "id,name,first_name,last_name,email")
	endpoint.RawQuery = q.Encode()

	client, ctx := bearerClient(ctx, p.cfg, accessToken)
	var body struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if err := getProviderJSON(ctx, client, p.cfg.Timeout, endpoint.String(), &body); err != nil {
		return nil, err
	}
	if body.Email == "" {
		return nil, ErrProviderMissingEmail
	}
	first, last := body.FirstName, body.LastName
	if first == "" && last == "" {
		first, last = splitDisplayName(body.Name)
	}
	return &SocialProfile{Subject: body.ID, Email: body.Email, FirstName: first, LastName: last}, nil
}
