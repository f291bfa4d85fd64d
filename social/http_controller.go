package social

import (
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-identity"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPConfig configures the federation routes.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/auth/social")
	PathPrefix string

	// SuccessRedirect is the default redirect after a completed callback (default: "/")
	SuccessRedirect string

	// ErrorRedirect receives failed callbacks with an error query parameter
	// (default: "/login")
	ErrorRedirect string

	// ErrorHandler replaces the redirect on failed callbacks (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// HTTPController exposes FederationService over go-router.
type HTTPController struct {
	Logger     identity.Logger
	federation *FederationService
	routes     *identity.RouteAuthenticator
	config     HTTPConfig
}

// NewHTTPController wires the controller. routes resolves the session for
// link requests and writes the session cookie after a callback.
func NewHTTPController(federation *FederationService, routes *identity.RouteAuthenticator, cfg HTTPConfig) *HTTPController {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth/social"
	}
	cfg.PathPrefix = strings.TrimRight(cfg.PathPrefix, "/")
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login"
	}

	return &HTTPController{
		Logger:     identity.DefaultLogger(),
		federation: federation,
		routes:     routes,
		config:     cfg,
	}
}

// RegisterRoutes registers the federation routes.
func (c *HTTPController) RegisterRoutes(r RouteRegistrar) {
	p := c.config.PathPrefix
	r.Get(p+"/providers", c.ListProviders)
	r.Get(p+"/:provider/callback", c.Callback)
	r.Post(p+"/:provider/link", c.BeginLink, c.routes.ProtectedRoute())
	r.Get(p+"/:provider", c.BeginAuth)
}

func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"providers": c.federation.Providers(),
	})
}

// BeginAuth redirects to the provider to start a login.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	redirect, err := c.federation.BeginWithRedirect(
		ctx.Context(),
		ctx.Param("provider"),
		ActionLogin,
		"",
		safeRedirect(ctx.Query("redirect_url")),
	)
	if err != nil {
		return c.routes.ErrorHandler(ctx, err)
	}
	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// BeginLink answers the provider URL that links it to the signed in identity.
func (c *HTTPController) BeginLink(ctx router.Context) error {
	session, ok := identity.GetRouterSession(ctx, c.routes.Config().SessionContextKey)
	if !ok {
		return c.routes.ErrorHandler(ctx, ErrLinkRequiresLogin)
	}

	redirect, err := c.federation.BeginWithRedirect(
		ctx.Context(),
		ctx.Param("provider"),
		ActionLink,
		session.ID,
		safeRedirect(ctx.Query("redirect_url")),
	)
	if err != nil {
		return c.routes.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"redirect_url": redirect.URL,
	})
}

// Callback completes the provider round trip, sets the session cookie and
// redirects back into the app.
func (c *HTTPController) Callback(ctx router.Context) error {
	if errCode := ctx.Query("error"); errCode != "" {
		target := appendQueryParam(c.config.ErrorRedirect, "error", errCode)
		return ctx.Redirect(target, http.StatusTemporaryRedirect)
	}

	code, state := ctx.Query("code"), ctx.Query("state")
	if code == "" || state == "" {
		return c.handleError(ctx, ErrInvalidState)
	}

	result, err := c.federation.Complete(ctx.Context(), ctx.Param("provider"), code, state)
	if err != nil {
		return c.handleError(ctx, err)
	}

	c.routes.SetSessionCookie(ctx, result.Token)

	target := result.RedirectURL
	if target == "" {
		target = c.config.SuccessRedirect
	}
	if result.IsNewUser {
		target = appendQueryParam(target, "new_user", "true")
	}
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	if identity.HTTPStatus(err) >= http.StatusInternalServerError {
		c.Logger.Error("federation callback failed", "error", err)
	} else {
		c.Logger.Debug("federation callback rejected", "error", err)
	}

	return ctx.Redirect(appendQueryParam(c.config.ErrorRedirect, "error", errorCode(err)), http.StatusTemporaryRedirect)
}

func errorCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" && identity.HTTPStatus(err) < http.StatusInternalServerError {
		return strings.ToLower(rich.TextCode)
	}
	return "auth_failed"
}

// safeRedirect keeps only same-site absolute paths.
func safeRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	return raw
}

func appendQueryParam(rawURL, key, value string) string {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
