package social

import (
	"context"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Provider is one federated identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string, opts ...AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error)
	Profile(ctx context.Context, token *Token) (*Profile, error)
}

// AuthCodeOption configures the authorization URL.
type AuthCodeOption func(*AuthCodeConfig)

// AuthCodeConfig holds the authorization URL parameters.
type AuthCodeConfig struct {
	Scopes       []string
	CodeVerifier string
	Prompt       string
}

// WithScopes overrides the provider default scopes.
func WithScopes(scopes ...string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Scopes = scopes
	}
}

// WithPKCE adds an S256 code challenge derived from verifier.
func WithPKCE(verifier string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.CodeVerifier = verifier
	}
}

func WithPrompt(prompt string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Prompt = prompt
	}
}

// ApplyAuthCodeOptions resolves opts on top of the default scopes.
func ApplyAuthCodeOptions(defaultScopes []string, opts ...AuthCodeOption) AuthCodeConfig {
	cfg := AuthCodeConfig{Scopes: defaultScopes}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ExchangeOption configures the code exchange.
type ExchangeOption func(*ExchangeConfig)

type ExchangeConfig struct {
	CodeVerifier string
}

// WithCodeVerifier sends the PKCE verifier with the exchange.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.CodeVerifier = verifier
	}
}

func ApplyExchangeOptions(opts ...ExchangeOption) ExchangeConfig {
	var cfg ExchangeConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Token is the provider grant returned by a code exchange.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// OAuth2 converts the token back for authenticated provider calls.
func (t *Token) OAuth2() *oauth2.Token {
	if t == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// ExpiresAtPtr returns nil for tokens without an expiry.
func (t *Token) ExpiresAtPtr() *time.Time {
	if t == nil || t.ExpiresAt.IsZero() {
		return nil
	}
	at := t.ExpiresAt
	return &at
}

// TokenFromOAuth2 maps an x/oauth2 token, reading the granted scopes
// from the "scope" response field.
func TokenFromOAuth2(tok *oauth2.Token) *Token {
	if tok == nil {
		return nil
	}
	out := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scopes = splitScopes(scope)
	}
	return out
}

// Profile is what a provider asserts about the signed in user.
type Profile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	Name           string
	FirstName      string
	LastName       string
	Username       string
	AvatarURL      string
}

func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
