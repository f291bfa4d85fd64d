package cmd

import (
	"context"
	"fmt"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-identity/internal/config"
	"github.com/goliatone/go-identity/internal/dbx"
	"github.com/goliatone/go-identity/secret"
	"github.com/goliatone/go-identity/social"
	"github.com/goliatone/go-identity/social/providers/github"
	"github.com/goliatone/go-identity/social/providers/google"
)

const socialPrefix = "/auth/social"

// App holds the wired services shared by the commands.
type App struct {
	config *config.Config
	logger *glog.BaseLogger
	db     *bun.DB

	store       *identity.BunStore
	provisioner *identity.IdentityProvisioner
	auth        *identity.Authenticator
	links       *identity.AccountLinkManager
	vault       *identity.SecretVault
	cipher      *secret.Cipher
	federation  *social.FederationService
	activity    identity.ActivitySink
}

func newLogger(c *config.Config) *glog.BaseLogger {
	if c.Debug {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("identityd"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("identityd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

// newStoreApp opens the database only, for commands that do not serve.
func newStoreApp(ctx context.Context, c *config.Config) (*App, error) {
	app := &App{
		config: c,
		logger: newLogger(c),
	}

	db, err := dbx.Open(ctx, dbx.Options{
		Driver: dbx.Driver(c.DBDriver),
		DSN:    c.DBDSN,
		Debug:  c.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	app.store = identity.NewBunStore(db)
	if err := app.store.Validate(); err != nil {
		dbx.Close(db)
		return nil, err
	}

	app.activity = activitymap.Sink(activitymap.LogRecorder(app.GetLogger("activity")))
	allocator := identity.NewUsernameAllocator(app.store,
		identity.WithUsernamePolicy(c.UsernamePolicy()),
		identity.WithAllocatorLogger(app.GetLogger("usernames")),
	)
	app.provisioner = identity.NewIdentityProvisioner(app.store,
		identity.WithAllocator(allocator),
		identity.WithDeferredFederatedUsername(c.DeferFederatedUsername),
		identity.WithProvisionerActivity(app.activity),
		identity.WithProvisionerLogger(app.GetLogger("provisioner")),
	)

	return app, nil
}

// newApp wires every service used by the HTTP server.
func newApp(ctx context.Context, c *config.Config) (*App, error) {
	app, err := newStoreApp(ctx, c)
	if err != nil {
		return nil, err
	}

	if c.Debug {
		app.GetLogger("config").Debug("configuration", "config", print.MaybeHighlightJSON(c))
	}

	activity := app.activity

	var audience []string
	if c.Audience != "" {
		audience = append(audience, c.Audience)
	}
	tokens := identity.NewTokenService([]byte(c.SigningKey),
		identity.WithTokenTTL(c.TokenTTL),
		identity.WithIssuer(c.Issuer),
		identity.WithAudience(audience...),
		identity.WithTokenLogger(app.GetLogger("tokens")),
	)

	app.auth = identity.NewAuthenticator(app.store, tokens,
		identity.WithAuthenticatorActivity(activity),
		identity.WithAuthenticatorLogger(app.GetLogger("auth")),
	)

	app.links = identity.NewAccountLinkManager(app.store,
		identity.WithLinkActivity(activity),
		identity.WithLinkLogger(app.GetLogger("links")),
	)

	key, err := secret.DeriveKey(c.EncryptionSecret, c.EncryptionFallbackSecret)
	if err != nil {
		app.GetLogger("secrets").Warn("encryption secret rejected", "error", err)
	}
	app.cipher = secret.NewCipher(key)
	if !app.cipher.Available() {
		app.GetLogger("secrets").Warn("no encryption secret configured, API secrets and provider tokens will not be stored")
	}

	app.vault = identity.NewSecretVault(app.store, app.cipher,
		identity.WithVaultActivity(activity),
		identity.WithVaultLogger(app.GetLogger("secrets")),
	)

	if c.FederationEnabled() {
		app.federation = app.newFederation(activity)
	}

	return app, nil
}

func (a *App) newFederation(activity identity.ActivitySink) *social.FederationService {
	c := a.config
	opts := []social.FederationOption{
		social.WithTokenCipher(a.cipher),
		social.WithFederationActivity(activity),
		social.WithFederationLogger(a.GetLogger("social")),
	}

	if c.Google.Enabled() {
		opts = append(opts, social.WithProvider(google.New(google.Config{
			ClientID:     c.Google.ClientID,
			ClientSecret: c.Google.ClientSecret,
			CallbackURL:  c.CallbackURL(socialPrefix, google.Name),
		})))
	}
	if c.GitHub.Enabled() {
		opts = append(opts, social.WithProvider(github.New(github.Config{
			ClientID:     c.GitHub.ClientID,
			ClientSecret: c.GitHub.ClientSecret,
			CallbackURL:  c.CallbackURL(socialPrefix, github.Name),
		})))
	}

	return social.NewFederationService(
		a.store,
		a.provisioner,
		a.links,
		a.auth,
		social.NewStateManagerFromSecret(c.OAuthStateKey, social.DefaultStateTTL),
		opts...,
	)
}

// RegisterRoutes mounts the identity and federation controllers.
func (a *App) RegisterRoutes(r identity.RouteRegistrar) {
	controller := identity.NewHTTPController(a.auth, identity.HTTPConfig{
		CookieName:      a.config.CookieName,
		CookieSecure:    a.config.CookieSecure,
		CookieHTTPOnly:  true,
		ContextEnricher: identity.WithSession,
		Debug:           a.config.Debug,
	},
		identity.WithControllerProvisioner(a.provisioner),
		identity.WithControllerLinks(a.links),
		identity.WithControllerVault(a.vault),
		identity.WithControllerLogger(a.GetLogger("http")),
	)
	controller.RegisterRoutes(r)

	if a.federation == nil {
		return
	}

	socialController := social.NewHTTPController(a.federation, controller.RouteAuthenticator(), social.HTTPConfig{
		PathPrefix: socialPrefix,
	})
	socialController.Logger = a.GetLogger("social:http")
	socialController.RegisterRoutes(r)
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) Close() error {
	return dbx.Close(a.db)
}
