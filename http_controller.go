package identity

import (
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controllers.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController serves the credential, session, account and secret
// settings routes.
type HTTPController struct {
	Debug       bool
	Logger      Logger
	Auth        *Authenticator
	Provisioner *IdentityProvisioner
	Links       *AccountLinkManager
	Vault       *SecretVault

	routes *RouteAuthenticator
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerProvisioner(p *IdentityProvisioner) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Provisioner = p
		return c
	}
}

func WithControllerLinks(m *AccountLinkManager) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Links = m
		return c
	}
}

func WithControllerVault(v *SecretVault) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Vault = v
		return c
	}
}

func WithControllerLogger(l Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Logger = resolveLogger(l)
		return c
	}
}

// NewHTTPController builds the controller. Routes whose service is not
// configured are not registered.
func NewHTTPController(auth *Authenticator, cfg HTTPConfig, opts ...HTTPControllerOption) *HTTPController {
	if auth == nil {
		panic("identity: HTTPController requires an Authenticator")
	}

	c := &HTTPController{
		Debug:  cfg.Debug,
		Logger: defLogger{},
		Auth:   auth,
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	c.routes = NewRouteAuthenticator(auth, cfg)
	c.routes.Logger = c.Logger

	return c
}

// RouteAuthenticator returns the session middleware shared with other
// controllers.
func (c *HTTPController) RouteAuthenticator() *RouteAuthenticator {
	return c.routes
}

// RegisterRoutes registers the identity routes on group.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	protected := c.routes.ProtectedRoute()

	group.Post("/auth/login", c.Login)
	group.Post("/auth/logout", c.Logout)
	group.Get("/auth/session", c.Session, protected)

	if c.Provisioner != nil {
		group.Post("/auth/register", c.Register)
		group.Post("/auth/username", c.CompleteUsername, protected)
	}

	if c.Links != nil {
		group.Get("/auth/account", c.Account, protected)
		group.Delete("/auth/federation/:provider", c.Disconnect, protected)
	}

	if c.Vault != nil {
		group.Get("/settings/secrets", c.ListSecrets, protected)
		group.Put("/settings/secrets/:name", c.SaveSecret, protected)
		group.Delete("/settings/secrets/:name", c.ClearSecret, protected)
	}
}

// LoginRequest payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 254)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 200)),
	)
}

// Login verifies the credentials, sets the session cookie and returns
// the public identity fields.
func (c *HTTPController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.writeError(ctx, err)
	}

	token, result, err := c.Auth.Login(ctx.Context(), payload.Username, payload.Password)
	if err != nil {
		return c.writeError(ctx, err)
	}

	c.routes.SetSessionCookie(ctx, token)
	return ctx.JSON(http.StatusOK, result)
}

// RegisterRequest is the sign up payload
type RegisterRequest struct {
	Email           string `form:"email" json:"email"`
	Username        string `form:"username" json:"username"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirmPassword"`
	FirstName       string `form:"first_name" json:"firstName"`
	LastName        string `form:"last_name" json:"lastName"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.EmailFormat),
		validation.Field(&r.Username, validation.Length(0, 64)),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 200)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(ValidateStringEquals(r.Password))),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
	)
}

// Register creates a local identity and signs it in.
func (c *HTTPController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.writeError(ctx, err)
	}

	user, err := c.Provisioner.RegisterLocal(ctx.Context(), LocalRegistration{
		Email:     payload.Email,
		Username:  payload.Username,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		return c.writeError(ctx, err)
	}

	token, err := c.Auth.IssueToken(ctx.Context(), user)
	if err != nil {
		return c.writeError(ctx, err)
	}

	c.routes.SetSessionCookie(ctx, token)
	return ctx.JSON(http.StatusCreated, &LoginResult{
		ID:       user.ID.String(),
		Username: user.Username,
		Email:    user.GetEmail(),
		Avatar:   user.Avatar,
	})
}

func (c *HTTPController) Logout(ctx router.Context) error {
	c.routes.ClearSessionCookie(ctx)
	return ctx.JSON(http.StatusOK, map[string]string{
		"status": "signed_out",
	})
}

// Session returns the claim surface of the current session.
func (c *HTTPController) Session(ctx router.Context) error {
	view, ok := c.session(ctx)
	if !ok {
		return c.writeError(ctx, ErrUnauthenticated)
	}
	return ctx.JSON(http.StatusOK, view)
}

// UsernameRequest picks the username of a deferred identity
type UsernameRequest struct {
	Username string `form:"username" json:"username"`
}

func (r UsernameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 64)),
	)
}

// CompleteUsername finishes the username setup and re-issues the session
// so the new claims are visible immediately.
func (c *HTTPController) CompleteUsername(ctx router.Context) error {
	view, ok := c.session(ctx)
	if !ok {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	payload := new(UsernameRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.writeError(ctx, err)
	}

	id, err := view.UserUUID()
	if err != nil {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	user, err := c.Provisioner.CompleteUsernameSetup(ctx.Context(), id, payload.Username)
	if err != nil {
		return c.writeError(ctx, err)
	}

	token, updated, err := c.Auth.Reissue(ctx.Context(), user)
	if err != nil {
		return c.writeError(ctx, err)
	}

	c.routes.SetSessionCookie(ctx, token)
	return ctx.JSON(http.StatusOK, updated)
}

// Account reports the authentication methods of the current identity.
func (c *HTTPController) Account(ctx router.Context) error {
	view, ok := c.session(ctx)
	if !ok {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	id, err := view.UserUUID()
	if err != nil {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	status, err := c.Links.Status(ctx.Context(), id)
	if err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, status)
}

// Disconnect removes the linked account of the :provider route param.
// A body is only needed when the identity has no password yet.
func (c *HTTPController) Disconnect(ctx router.Context) error {
	view, ok := c.session(ctx)
	if !ok {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	payload := new(DisconnectRequest)
	if err := ctx.Bind(payload); err != nil {
		c.Logger.Debug("disconnect without readable body", "error", err)
		payload = new(DisconnectRequest)
	}

	result, err := c.Links.Disconnect(ctx.Context(), view.ID, ctx.Param("provider"), *payload)
	if err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, result)
}

// ListSecrets returns which API secrets are configured, never their values.
func (c *HTTPController) ListSecrets(ctx router.Context) error {
	view, ok := c.session(ctx)
	if !ok {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	id, err := view.UserUUID()
	if err != nil {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	statuses, err := c.Vault.Status(ctx.Context(), id)
	if err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"secrets":   statuses,
		"available": c.Vault.Available(),
	})
}

// SecretRequest carries a plaintext secret. An empty value clears it.
type SecretRequest struct {
	Value string `form:"value" json:"value"`
}

func (r SecretRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Value, validation.Length(0, 8192)),
	)
}

func (c *HTTPController) SaveSecret(ctx router.Context) error {
	view, ok := c.session(ctx)
	if !ok {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	id, err := view.UserUUID()
	if err != nil {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	payload := new(SecretRequest)
	if err := c.bind(ctx, payload); err != nil {
		return c.writeError(ctx, err)
	}

	name := normalizeSecretName(ctx.Param("name"))
	stored, err := c.Vault.Save(ctx.Context(), id, name, payload.Value)
	if err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, SecretStatus{Name: name, Configured: stored})
}

func (c *HTTPController) ClearSecret(ctx router.Context) error {
	view, ok := c.session(ctx)
	if !ok {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	id, err := view.UserUUID()
	if err != nil {
		return c.writeError(ctx, ErrUnauthenticated)
	}

	name := normalizeSecretName(ctx.Param("name"))
	if err := c.Vault.Clear(ctx.Context(), id, name); err != nil {
		return c.writeError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, SecretStatus{Name: name, Configured: false})
}

type validatable interface {
	Validate() error
}

// bind parses and validates the request payload.
func (c *HTTPController) bind(ctx router.Context, payload validatable) error {
	if err := ctx.Bind(payload); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "unable to parse request body").
			WithTextCode("IDENTITY_BAD_REQUEST").
			WithCode(errors.CodeBadRequest)
	}

	if c.Debug {
		fmt.Println("======= IDENTITY REQUEST ======")
		fmt.Println(print.MaybePrettyJSON(redactPayload(payload)))
		fmt.Println("===============================")
	}

	if err := payload.Validate(); err != nil {
		return errors.FromOzzoValidation(err, "invalid request").
			WithTextCode("IDENTITY_VALIDATION_FAILED").
			WithCode(errors.CodeBadRequest)
	}

	return nil
}

func (c *HTTPController) session(ctx router.Context) (SessionView, bool) {
	if view, ok := GetRouterSession(ctx, c.routes.cfg.SessionContextKey); ok {
		return view, true
	}
	return SessionFromContext(ctx.Context())
}

func (c *HTTPController) writeError(ctx router.Context, err error) error {
	if c.routes.cfg.ErrorHandler != nil {
		return c.routes.cfg.ErrorHandler(ctx, err)
	}
	return writeJSONError(ctx, c.Logger, err)
}

// redactPayload masks password and secret fields for debug output.
func redactPayload(payload any) any {
	switch p := payload.(type) {
	case *LoginRequest:
		cp := *p
		cp.Password = mask(cp.Password)
		return cp
	case *RegisterRequest:
		cp := *p
		cp.Password, cp.ConfirmPassword = mask(cp.Password), mask(cp.ConfirmPassword)
		return cp
	case *SecretRequest:
		return SecretRequest{Value: mask(p.Value)}
	}
	return payload
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}

// ValidateStringEquals fails unless the value equals str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return validation.NewError("validation_values_mismatch", "values must match")
		}
		return nil
	}
}
