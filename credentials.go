package identity

import (
	"context"
	"strings"
)

// UserFinder looks identities up by username.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// CredentialAuthenticator verifies username and password pairs. Every
// mismatch is reported as ErrInvalidCredentials, and a missing identity
// still pays for one hash comparison.
type CredentialAuthenticator struct {
	users     UserFinder
	hasher    PasswordHasher
	dummyHash string
	logger    Logger
}

type CredentialOption func(*CredentialAuthenticator)

func WithPasswordHasher(h PasswordHasher) CredentialOption {
	return func(c *CredentialAuthenticator) {
		if h != nil {
			c.hasher = h
		}
	}
}

func WithCredentialLogger(l Logger) CredentialOption {
	return func(c *CredentialAuthenticator) {
		c.logger = resolveLogger(l)
	}
}

func NewCredentialAuthenticator(users UserFinder, opts ...CredentialOption) *CredentialAuthenticator {
	c := &CredentialAuthenticator{
		users:  users,
		hasher: BcryptHasher{},
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if h, err := c.hasher.HashPassword("timing-equalizer-" + RandomToken(8)); err == nil {
		c.dummyHash = h
	}

	return c
}

// Verify returns the identity owning username when password matches.
// Backing store failures are returned as is.
func (c *CredentialAuthenticator) Verify(ctx context.Context, username, password string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := c.users.FindByUsername(ctx, username)
	if err != nil && !IsNotFound(err) {
		c.logger.Error("credential lookup failed", "error", err)
		return nil, err
	}

	if user == nil || !user.HasPassword() {
		c.burn(password)
		return nil, ErrInvalidCredentials
	}

	if err := c.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (c *CredentialAuthenticator) burn(password string) {
	if c.dummyHash == "" {
		return
	}
	_ = c.hasher.ComparePasswordAndHash(password, c.dummyHash)
}
