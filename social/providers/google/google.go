package google

import (
	"context"
	"net/http"

	"golang.org/x/oauth2/endpoints"

	"github.com/goliatone/go-identity/social"
)

const (
	Name = "google"

	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Config holds the Google OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements social.Provider for Google.
type Provider struct {
	*social.OAuth2Client
	userInfoURL string
}

func New(cfg Config) *Provider {
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	return &Provider{
		OAuth2Client: social.NewOAuth2Client(Name, social.OAuth2Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			CallbackURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			HTTPClient:   cfg.HTTPClient,
			AuthParams:   map[string]string{"access_type": "offline"},
		}, endpoints.Google, DefaultScopes()),
		userInfoURL: cfg.UserInfoURL,
	}
}

// Profile reads the OpenID Connect userinfo endpoint.
func (p *Provider) Profile(ctx context.Context, token *social.Token) (*social.Profile, error) {
	var info googleUserInfo
	if err := p.GetJSON(ctx, token, p.userInfoURL, &info); err != nil {
		return nil, err
	}
	return mapProfile(&info), nil
}
