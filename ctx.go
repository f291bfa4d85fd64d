package identity

import (
	"context"

	"github.com/goliatone/go-router"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession stores the session view in the given context
func WithSession(ctx context.Context, view SessionView) context.Context {
	return context.WithValue(ctx, sessionCtxKey, view)
}

// SessionFromContext finds the session view in the context.
func SessionFromContext(ctx context.Context) (SessionView, bool) {
	if ctx == nil {
		return SessionView{}, false
	}
	view, ok := ctx.Value(sessionCtxKey).(SessionView)
	return view, ok && view.ID != ""
}

// GetRouterSession extracts the session view stored by the session
// middleware under key.
func GetRouterSession(ctx router.Context, key string) (SessionView, bool) {
	if key == "" {
		key = DefaultSessionContextKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return SessionView{}, false
	}
	switch view := raw.(type) {
	case SessionView:
		return view, view.ID != ""
	case *SessionView:
		if view == nil {
			return SessionView{}, false
		}
		return *view, view.ID != ""
	}
	return SessionView{}, false
}
