package github

import (
	"context"
	"net/http"

	"golang.org/x/oauth2/endpoints"

	"github.com/goliatone/go-identity/social"
)

const (
	Name = "github"

	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds the GitHub OAuth app registration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

func DefaultScopes() []string {
	return []string{"read:user", "user:email"}
}

// Provider implements social.Provider for GitHub.
type Provider struct {
	*social.OAuth2Client
	userURL   string
	emailsURL string
}

func New(cfg Config) *Provider {
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	client := social.NewOAuth2Client(Name, social.OAuth2Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		CallbackURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		HTTPClient:   cfg.HTTPClient,
	}, endpoints.GitHub, DefaultScopes())

	return &Provider{
		OAuth2Client: client,
		userURL:      cfg.UserURL,
		emailsURL:    cfg.EmailsURL,
	}
}

// Profile reads the user and picks the primary address from the
// emails endpoint. A failing emails call falls back to the public,
// unverified profile email.
func (p *Provider) Profile(ctx context.Context, token *social.Token) (*social.Profile, error) {
	var user githubUser
	if err := p.GetJSON(ctx, token, p.userURL, &user); err != nil {
		return nil, err
	}

	var emails []githubEmail
	email, verified := user.Email, false
	if err := p.GetJSON(ctx, token, p.emailsURL, &emails); err == nil {
		if e, ok := primaryEmail(emails); ok {
			email, verified = e.Email, e.Verified
		}
	}

	return mapProfile(&user, email, verified), nil
}

func primaryEmail(emails []githubEmail) (githubEmail, bool) {
	for _, e := range emails {
		if e.Primary {
			return e, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e, true
		}
	}
	return githubEmail{}, false
}
