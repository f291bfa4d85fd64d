package social

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateManager_EncryptDecrypt(t *testing.T) {
	sm := NewEncryptedStateManager(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("fedcba9876543210fedcba9876543210"),
		10*time.Minute,
	)

	state := &OAuthState{
		Provider:     "github",
		Action:       ActionLink,
		UserID:       "user-1",
		RedirectURL:  "/dashboard",
		CodeVerifier: "test-verifier",
	}

	encoded, err := sm.Encode(state)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "test-verifier")

	decoded, err := sm.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, state.Provider, decoded.Provider)
	assert.Equal(t, state.Action, decoded.Action)
	assert.Equal(t, state.UserID, decoded.UserID)
	assert.Equal(t, state.RedirectURL, decoded.RedirectURL)
	assert.Equal(t, state.CodeVerifier, decoded.CodeVerifier)
	assert.NotEmpty(t, decoded.Nonce)
}

func TestStateManager_ExpiredState(t *testing.T) {
	sm := NewStateManagerFromSecret("state-secret-0123456789", -1*time.Minute)

	encoded, err := sm.Encode(&OAuthState{Provider: "github"})
	require.NoError(t, err)

	_, err = sm.Decode(encoded)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateManager_RejectsTampering(t *testing.T) {
	sm := NewStateManagerFromSecret("state-secret-0123456789", 0)
	other := NewStateManagerFromSecret("another-secret-0123456789", 0)

	encoded, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	flipped := []byte(encoded)
	mid := len(flipped) / 2
	if flipped[mid] == 'A' {
		flipped[mid] = 'B'
	} else {
		flipped[mid] = 'A'
	}

	tests := []struct {
		name  string
		sm    *EncryptedStateManager
		token string
	}{
		{name: "garbage", sm: sm, token: "not-a-state"},
		{name: "truncated", sm: sm, token: encoded[:10]},
		{name: "modified", sm: sm, token: string(flipped)},
		{name: "other key", sm: other, token: encoded},
		{name: "padded", sm: sm, token: encoded + strings.Repeat("=", 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sm.Decode(tt.token)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}
