package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	DefaultSessionContextKey = "session"
	DefaultCookieName        = "identity_session"
	DefaultAuthScheme        = "Bearer"
	// RefreshedTokenHeader carries a re-signed token to bearer clients.
	RefreshedTokenHeader = "X-Refreshed-Token"
)

// HTTPConfig configures the identity HTTP controller and session middleware.
type HTTPConfig struct {
	// SessionContextKey is the router locals key holding the SessionView (default: "session")
	SessionContextKey string

	// CookieName for the session token (default: "identity_session")
	CookieName string

	// CookieSecure sets the Secure flag on cookies
	CookieSecure bool

	// CookieHTTPOnly sets the HttpOnly flag on cookies
	CookieHTTPOnly bool

	// CookieSameSite sets the SameSite attribute (default: "Lax")
	CookieSameSite string

	// AuthScheme of the Authorization header (default: "Bearer")
	AuthScheme string

	// ContextEnricher propagates the session to the request context (optional)
	ContextEnricher func(ctx context.Context, view SessionView) context.Context

	// ErrorHandler replaces the JSON error writer (optional)
	ErrorHandler func(ctx router.Context, err error) error

	// Debug dumps request payloads
	Debug bool
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.SessionContextKey == "" {
		c.SessionContextKey = DefaultSessionContextKey
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.CookieSameSite == "" {
		c.CookieSameSite = "Lax"
	}
	if c.AuthScheme == "" {
		c.AuthScheme = DefaultAuthScheme
	}
	return c
}

// RouteAuthenticator resolves sessions for HTTP requests and manages the
// session cookie.
type RouteAuthenticator struct {
	auth         *Authenticator
	cfg          HTTPConfig
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewRouteAuthenticator(auth *Authenticator, cfg HTTPConfig) *RouteAuthenticator {
	a := &RouteAuthenticator{
		auth:   auth,
		cfg:    cfg.withDefaults(),
		Logger: defLogger{},
	}
	a.ErrorHandler = a.cfg.ErrorHandler
	if a.ErrorHandler == nil {
		a.ErrorHandler = a.defaultErrHandler
	}
	return a
}

// Config returns the effective configuration.
func (a *RouteAuthenticator) Config() HTTPConfig {
	return a.cfg
}

// ProtectedRoute rejects requests without a valid session.
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return a.middleware(false)
}

// OptionalRoute resolves the session when one is present and lets
// anonymous requests through.
func (a *RouteAuthenticator) OptionalRoute() router.MiddlewareFunc {
	return a.middleware(true)
}

func (a *RouteAuthenticator) middleware(optional bool) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			var (
				view      SessionView
				refreshed string
				err       error
				source    = tokenFromNone
			)
			// a rejected cookie does not hide a valid bearer token
			for _, loc := range tokenLocations(a.cfg) {
				raw := loc.extract(ctx)
				if raw == "" {
					continue
				}
				source = loc.source
				view, refreshed, err = a.auth.Session(ctx.Context(), raw)
				if err == nil || errors.Is(err, ErrStoreUnavailable) {
					break
				}
			}

			if source == tokenFromNone {
				if optional {
					return ctx.Next()
				}
				return a.ErrorHandler(ctx, ErrUnauthenticated)
			}

			if err != nil {
				if optional && !errors.Is(err, ErrStoreUnavailable) {
					a.Logger.Debug("optional session rejected, proceeding", "error", err)
					return ctx.Next()
				}
				return a.ErrorHandler(ctx, err)
			}

			if refreshed != "" {
				switch source {
				case tokenFromCookie:
					a.SetSessionCookie(ctx, refreshed)
				case tokenFromHeader:
					ctx.SetHeader(RefreshedTokenHeader, refreshed)
				}
			}

			ctx.Locals(a.cfg.SessionContextKey, view)

			if a.cfg.ContextEnricher != nil {
				ctx.SetContext(a.cfg.ContextEnricher(ctx.Context(), view))
			}

			return ctx.Next()
		}
	}
}

// SetSessionCookie stores token in the session cookie.
func (a *RouteAuthenticator) SetSessionCookie(c router.Context, token string) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.auth.TokenTTL()),
		Secure:   a.cfg.CookieSecure,
		HTTPOnly: a.cfg.CookieHTTPOnly,
		SameSite: a.cfg.CookieSameSite,
	})
}

// ClearSessionCookie expires the session cookie.
func (a *RouteAuthenticator) ClearSessionCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		Secure:   a.cfg.CookieSecure,
		HTTPOnly: a.cfg.CookieHTTPOnly,
		SameSite: a.cfg.CookieSameSite,
	})
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	return writeJSONError(c, a.Logger, err)
}

// writeJSONError answers with the status and public message of err.
// Internal failures are logged and reported generically.
func writeJSONError(c router.Context, logger Logger, err error) error {
	status := HTTPStatus(err)
	body := map[string]any{
		"error": PublicMessage(err),
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && status < http.StatusInternalServerError {
		if richErr.TextCode != "" {
			body["code"] = richErr.TextCode
		}
		if fields := richErr.ValidationMap(); len(fields) > 0 {
			body["fields"] = fields
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "error", err, "details", print.MaybePrettyJSON(body))
	}

	return c.JSON(status, body)
}
