package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/internal/memstore"
)

var fastHasher = identity.BcryptHasher{Cost: 4}

type countingHasher struct {
	identity.PasswordHasher
	compares int
}

func (c *countingHasher) ComparePasswordAndHash(password, hash string) error {
	c.compares++
	return c.PasswordHasher.ComparePasswordAndHash(password, hash)
}

func seedUser(t *testing.T, store *memstore.Store, username, email, password string) *identity.User {
	t.Helper()

	user := &identity.User{Username: username, UsernameSetupComplete: true}
	user.SetEmail(email)
	if password != "" {
		hash, err := fastHasher.HashPassword(password)
		require.NoError(t, err)
		user.PasswordHash = hash
	}

	created, err := store.Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

func TestCredentialAuthenticatorVerify(t *testing.T) {
	store := memstore.New()
	jane := seedUser(t, store, "jane", "jane@example.com", "correct-horse")
	seedUser(t, store, "fed", "fed@example.com", "")

	auth := identity.NewCredentialAuthenticator(store, identity.WithPasswordHasher(fastHasher))

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{name: "valid", username: "jane", password: "correct-horse"},
		{name: "normalized username", username: "  JANE ", password: "correct-horse"},
		{name: "wrong password", username: "jane", password: "wrong", wantErr: true},
		{name: "unknown user", username: "nobody", password: "correct-horse", wantErr: true},
		{name: "federation only", username: "fed", password: "anything", wantErr: true},
		{name: "empty password", username: "jane", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := auth.Verify(context.Background(), tt.username, tt.password)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
				assert.Equal(t, identity.ErrInvalidCredentials.Error(), err.Error())
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, jane.ID, user.ID)
		})
	}
}

func TestCredentialAuthenticatorUnknownUserStillHashes(t *testing.T) {
	store := memstore.New()
	seedUser(t, store, "jane", "jane@example.com", "correct-horse")

	hasher := &countingHasher{PasswordHasher: fastHasher}
	auth := identity.NewCredentialAuthenticator(store, identity.WithPasswordHasher(hasher))

	_, err := auth.Verify(context.Background(), "nobody", "whatever")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.Equal(t, 1, hasher.compares)

	_, err = auth.Verify(context.Background(), "jane", "whatever")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.Equal(t, 2, hasher.compares)
}

func TestCredentialAuthenticatorStoreFailure(t *testing.T) {
	store := memstore.New()
	boom := errors.New("db down")
	store.FailNext("FindByUsername", boom)

	auth := identity.NewCredentialAuthenticator(store, identity.WithPasswordHasher(fastHasher))

	_, err := auth.Verify(context.Background(), "jane", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, identity.ErrInvalidCredentials)
}
