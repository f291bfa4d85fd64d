package config_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/internal/config"
)

const signingKey = "0123456789abcdef0123456789abcdef"

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, errors.CategoryValidation, rich.Category)

	names := make([]string, 0, len(rich.ValidationErrors))
	for _, fe := range rich.ValidationErrors {
		names = append(names, fe.Field)
	}
	return names
}

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, config.DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, identity.DefaultCookieName, cfg.CookieName)
	assert.True(t, cfg.UsernameAllowUnderscore)
	assert.Equal(t, identity.DefaultUsernameMaxLength, cfg.UsernameMaxLength)
	assert.False(t, cfg.FederationEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("IDENTITY_HTTP_ADDR", ":9090")
	t.Setenv("IDENTITY_DB_DRIVER", "POSTGRES")
	t.Setenv("IDENTITY_DB_DSN", "postgres://localhost/identity")
	t.Setenv("IDENTITY_SIGNING_KEY", signingKey)
	t.Setenv("IDENTITY_TOKEN_TTL", "2h")
	t.Setenv("IDENTITY_COOKIE_SECURE", "yes")
	t.Setenv("IDENTITY_DEFER_FEDERATED_USERNAME", "1")
	t.Setenv("IDENTITY_USERNAME_ALLOW_UNDERSCORE", "false")
	t.Setenv("IDENTITY_USERNAME_MAX_LENGTH", "16")
	t.Setenv("IDENTITY_GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("IDENTITY_GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("IDENTITY_OAUTH_REDIRECT_BASE", "https://id.example.com/")
	t.Setenv("IDENTITY_OAUTH_STATE_KEY", signingKey)

	cfg := config.Load()

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, config.DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.CookieSecure)
	assert.True(t, cfg.DeferFederatedUsername)
	assert.True(t, cfg.FederationEnabled())
	assert.True(t, cfg.GitHub.Enabled())
	assert.False(t, cfg.Google.Enabled())
	assert.Equal(t, "https://id.example.com/auth/social/github/callback", cfg.CallbackURL("/auth/social/", "github"))

	policy := cfg.UsernamePolicy()
	assert.False(t, policy.AllowUnderscore)
	assert.Equal(t, 16, policy.MaxLength)

	require.NoError(t, cfg.Validate())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("IDENTITY_TOKEN_TTL", "soon")
	t.Setenv("IDENTITY_USERNAME_MAX_LENGTH", "many")
	t.Setenv("IDENTITY_COOKIE_SECURE", "maybe")

	cfg := config.Load()

	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, identity.DefaultUsernameMaxLength, cfg.UsernameMaxLength)
	assert.False(t, cfg.CookieSecure)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.Load()
		cfg.SigningKey = signingKey
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{
			name:   "missing signing key",
			mutate: func(c *config.Config) { c.SigningKey = "" },
			field:  "SigningKey",
		},
		{
			name:   "short signing key",
			mutate: func(c *config.Config) { c.SigningKey = "short" },
			field:  "SigningKey",
		},
		{
			name:   "unknown driver",
			mutate: func(c *config.Config) { c.DBDriver = "mysql" },
			field:  "db_driver",
		},
		{
			name:   "token ttl too short",
			mutate: func(c *config.Config) { c.TokenTTL = time.Second },
			field:  "token_ttl",
		},
		{
			name:   "short encryption secret",
			mutate: func(c *config.Config) { c.EncryptionSecret = "too-short" },
			field:  "EncryptionSecret",
		},
		{
			name:   "username max length below suffix room",
			mutate: func(c *config.Config) { c.UsernameMaxLength = 4 },
			field:  "username_max_length",
		},
		{
			name: "provider without secret",
			mutate: func(c *config.Config) {
				c.Google.ClientID = "g-id"
				c.OAuthRedirectBase = "https://id.example.com"
				c.OAuthStateKey = signingKey
			},
			field: "google.ClientSecret",
		},
		{
			name: "provider without state key",
			mutate: func(c *config.Config) {
				c.GitHub = config.ProviderConfig{ClientID: "id", ClientSecret: "secret"}
				c.OAuthRedirectBase = "https://id.example.com"
			},
			field: "OAuthStateKey",
		},
		{
			name: "provider without redirect base",
			mutate: func(c *config.Config) {
				c.GitHub = config.ProviderConfig{ClientID: "id", ClientSecret: "secret"}
				c.OAuthStateKey = signingKey
			},
			field: "oauth_redirect_base",
		},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, fieldNames(t, err), tt.field)
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	cfg := config.Load()
	require.NoError(t, cfg.ValidateDatabase(), "signing key is not needed for database commands")

	cfg.DBDSN = ""
	err := cfg.ValidateDatabase()
	require.Error(t, err)
	assert.Contains(t, fieldNames(t, err), "db_dsn")
}
