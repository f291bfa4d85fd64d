package social

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-identity"
)

type testRouteRegistrar struct {
	routes []string
}

func (r *testRouteRegistrar) Get(path string, _ router.HandlerFunc, _ ...router.MiddlewareFunc) router.RouteInfo {
	r.routes = append(r.routes, "GET "+path)
	return nil
}

func (r *testRouteRegistrar) Post(path string, _ router.HandlerFunc, _ ...router.MiddlewareFunc) router.RouteInfo {
	r.routes = append(r.routes, "POST "+path)
	return nil
}

func newTestController(f *fixture) *HTTPController {
	routes := identity.NewRouteAuthenticator(f.auth, identity.HTTPConfig{
		CookieName:     "sid",
		CookieHTTPOnly: true,
	})
	return NewHTTPController(f.svc, routes, HTTPConfig{SuccessRedirect: "/home"})
}

func captureRedirect(ctx *router.MockContext) *string {
	var target string
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		target = args.String(0)
	}).Return(nil)
	return &target
}

func stateFromURL(t *testing.T, f *fixture, raw string) *OAuthState {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	state, err := f.state.Decode(parsed.Query().Get("state"))
	require.NoError(t, err)
	return state
}

func TestHTTPControllerRegisterRoutes(t *testing.T) {
	f := newFixture()
	registrar := &testRouteRegistrar{}

	newTestController(f).RegisterRoutes(registrar)

	assert.ElementsMatch(t, []string{
		"GET /auth/social/providers",
		"GET /auth/social/:provider/callback",
		"POST /auth/social/:provider/link",
		"GET /auth/social/:provider",
	}, registrar.routes)
}

func TestHTTPControllerBeginAuthRedirects(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		want     string
	}{
		{name: "relative path kept", redirect: "/after", want: "/after"},
		{name: "absolute url dropped", redirect: "https://evil.example/", want: ""},
		{name: "protocol relative dropped", redirect: "//evil.example/", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			controller := newTestController(f)

			ctx := router.NewMockContext()
			ctx.ParamsM["provider"] = "github"
			ctx.QueriesM["redirect_url"] = tt.redirect
			ctx.On("Context").Return(context.Background())
			target := captureRedirect(ctx)

			require.NoError(t, controller.BeginAuth(ctx))
			require.NotEmpty(t, *target)

			state := stateFromURL(t, f, *target)
			assert.Equal(t, ActionLogin, state.Action)
			assert.Equal(t, tt.want, state.RedirectURL)
		})
	}
}

func TestHTTPControllerBeginAuthUnknownProvider(t *testing.T) {
	f := newFixture()
	controller := newTestController(f)

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "gitlab"
	ctx.On("Context").Return(context.Background())

	var body map[string]any
	ctx.On("JSON", http.StatusNotFound, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, controller.BeginAuth(ctx))
	assert.Equal(t, TextCodeProviderNotFound, body["code"])
}

func TestHTTPControllerBeginLink(t *testing.T) {
	f := newFixture()
	user := f.seedUser(t, "jane", "jane@example.com")
	controller := newTestController(f)

	t.Run("signed in", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.ParamsM["provider"] = "github"
		ctx.LocalsMock[identity.DefaultSessionContextKey] = identity.SessionView{ID: user.ID.String(), Username: "jane"}
		ctx.On("Context").Return(context.Background())

		var payload map[string]string
		ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
			payload = args.Get(1).(map[string]string)
		}).Return(nil)

		require.NoError(t, controller.BeginLink(ctx))

		state := stateFromURL(t, f, payload["redirect_url"])
		assert.Equal(t, ActionLink, state.Action)
		assert.Equal(t, user.ID.String(), state.UserID)
	})

	t.Run("anonymous", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.ParamsM["provider"] = "github"
		ctx.On("Context").Return(context.Background())
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

		require.NoError(t, controller.BeginLink(ctx))
		ctx.AssertCalled(t, "JSON", http.StatusUnauthorized, mock.Anything)
	})
}

func TestHTTPControllerCallbackSetsCookieAndRedirects(t *testing.T) {
	f := newFixture()
	controller := newTestController(f)

	redirect, err := f.svc.BeginWithRedirect(context.Background(), "github", ActionLogin, "", "/dashboard?foo=bar")
	require.NoError(t, err)

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "github"
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = redirect.State
	ctx.On("Context").Return(context.Background())

	var cookie *router.Cookie
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "sid" && c.Value != "" && c.HTTPOnly && c.SameSite == "Lax"
	})).Run(func(args mock.Arguments) {
		cookie = args.Get(0).(*router.Cookie)
	}).Return()
	target := captureRedirect(ctx)

	require.NoError(t, controller.Callback(ctx))
	require.NotNil(t, cookie)

	claims, err := f.tokens.Parse(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "octo", claims.Username)

	parsed, err := url.Parse(*target)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", parsed.Path)
	assert.Equal(t, "bar", parsed.Query().Get("foo"))
	assert.Equal(t, "true", parsed.Query().Get("new_user"))
}

func TestHTTPControllerCallbackFailuresRedirect(t *testing.T) {
	tests := []struct {
		name    string
		queries map[string]string
		want    string
	}{
		{name: "provider error", queries: map[string]string{"error": "access_denied"}, want: "/login?error=access_denied"},
		{name: "missing code", queries: map[string]string{"state": "abc"}, want: "/login?error=social_invalid_state"},
		{name: "bad state", queries: map[string]string{"code": "c", "state": "abc"}, want: "/login?error=social_invalid_state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			controller := newTestController(f)

			ctx := router.NewMockContext()
			ctx.ParamsM["provider"] = "github"
			for k, v := range tt.queries {
				ctx.QueriesM[k] = v
			}
			ctx.On("Context").Return(context.Background())
			target := captureRedirect(ctx)

			require.NoError(t, controller.Callback(ctx))
			assert.Equal(t, tt.want, *target)
			ctx.AssertNotCalled(t, "Cookie", mock.Anything)
		})
	}
}
