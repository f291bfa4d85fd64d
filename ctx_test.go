package identity_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-identity"
)

func TestSessionContextRoundTrip(t *testing.T) {
	view := identity.SessionView{
		ID:                    uuid.NewString(),
		Username:              "ada",
		UsernameSetupComplete: true,
		Email:                 "ada@example.com",
	}

	ctx := identity.WithSession(context.Background(), view)

	got, ok := identity.SessionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, view, got)

	id, err := got.UserUUID()
	require.NoError(t, err)
	assert.Equal(t, view.ID, id.String())
}

func TestSessionFromContextMissing(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
	}{
		{name: "nil context", ctx: nil},
		{name: "empty context", ctx: context.Background()},
		{name: "empty view", ctx: identity.WithSession(context.Background(), identity.SessionView{})},
		{name: "unrelated value", ctx: context.WithValue(context.Background(), struct{}{}, "session")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := identity.SessionFromContext(tt.ctx)
			assert.False(t, ok)
		})
	}
}

func TestGetRouterSession(t *testing.T) {
	view := identity.SessionView{ID: uuid.NewString(), Username: "ada"}

	tests := []struct {
		name   string
		key    string
		stored any
		found  bool
	}{
		{name: "value under default key", key: "", stored: view, found: true},
		{name: "pointer under default key", key: identity.DefaultSessionContextKey, stored: &view, found: true},
		{name: "nil pointer", key: "", stored: (*identity.SessionView)(nil), found: false},
		{name: "empty view", key: "", stored: identity.SessionView{}, found: false},
		{name: "wrong type", key: "", stored: "ada", found: false},
		{name: "nothing stored", key: "", stored: nil, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := router.NewMockContext()
			if tt.stored != nil {
				ctx.LocalsMock[identity.DefaultSessionContextKey] = tt.stored
			}

			got, ok := identity.GetRouterSession(ctx, tt.key)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, view, got)
			}
		})
	}
}

func TestGetRouterSessionCustomKey(t *testing.T) {
	view := identity.SessionView{ID: uuid.NewString()}
	ctx := router.NewMockContext()
	ctx.LocalsMock["user_session"] = view

	got, ok := identity.GetRouterSession(ctx, "user_session")
	require.True(t, ok)
	assert.Equal(t, view.ID, got.ID)

	_, ok = identity.GetRouterSession(ctx, "")
	assert.False(t, ok)
}
