// Package config loads the identityd process configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/secret"
)

const envPrefix = "IDENTITY_"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ProviderConfig holds OAuth client credentials for one provider.
type ProviderConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
}

// Enabled reports whether the provider was configured.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != ""
}

func (p ProviderConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ClientSecret, validation.When(p.ClientID != "", validation.Required)),
	)
}

// Config holds the identityd configuration.
type Config struct {
	HTTPAddr string `json:"http_addr"`
	Debug    bool   `json:"debug"`

	DBDriver string `json:"db_driver"`
	DBDSN    string `json:"db_dsn"`

	SigningKey string        `json:"-"`
	TokenTTL   time.Duration `json:"token_ttl"`
	Issuer     string        `json:"issuer"`
	Audience   string        `json:"audience"`

	EncryptionSecret         string `json:"-"`
	EncryptionFallbackSecret string `json:"-"`

	CookieName   string `json:"cookie_name"`
	CookieSecure bool   `json:"cookie_secure"`

	DeferFederatedUsername  bool `json:"defer_federated_username"`
	UsernameAllowUnderscore bool `json:"username_allow_underscore"`
	UsernameMaxLength       int  `json:"username_max_length"`

	Google ProviderConfig `json:"google"`
	GitHub ProviderConfig `json:"github"`

	OAuthRedirectBase string `json:"oauth_redirect_base"`
	OAuthStateKey     string `json:"-"`
}

// Load reads the configuration from IDENTITY_* environment variables.
// The result is not validated, call Validate once flags are applied.
func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Debug:    getEnvBool("DEBUG", false),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBDSN:    getEnv("DB_DSN", "file:identity.db?cache=shared"),

		SigningKey: getEnv("SIGNING_KEY", ""),
		TokenTTL:   getEnvDuration("TOKEN_TTL", 24*time.Hour),
		Issuer:     getEnv("ISSUER", "identityd"),
		Audience:   getEnv("AUDIENCE", ""),

		EncryptionSecret:         getEnv("ENCRYPTION_SECRET", ""),
		EncryptionFallbackSecret: getEnv("ENCRYPTION_FALLBACK_SECRET", ""),

		CookieName:   getEnv("COOKIE_NAME", identity.DefaultCookieName),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),

		DeferFederatedUsername:  getEnvBool("DEFER_FEDERATED_USERNAME", false),
		UsernameAllowUnderscore: getEnvBool("USERNAME_ALLOW_UNDERSCORE", true),
		UsernameMaxLength:       getEnvInt("USERNAME_MAX_LENGTH", identity.DefaultUsernameMaxLength),

		Google: ProviderConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
		GitHub: ProviderConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		},

		OAuthRedirectBase: strings.TrimRight(getEnv("OAUTH_REDIRECT_BASE", ""), "/"),
		OAuthStateKey:     getEnv("OAUTH_STATE_KEY", ""),
	}
}

// FederationEnabled reports whether any OAuth provider is configured.
func (c *Config) FederationEnabled() bool {
	return c.Google.Enabled() || c.GitHub.Enabled()
}

// UsernamePolicy returns the allocator policy for this configuration.
func (c *Config) UsernamePolicy() identity.UsernamePolicy {
	policy := identity.DefaultUsernamePolicy()
	policy.AllowUnderscore = c.UsernameAllowUnderscore
	policy.MaxLength = c.UsernameMaxLength
	return policy
}

// CallbackURL builds the provider callback URL under OAuthRedirectBase.
func (c *Config) CallbackURL(prefix, provider string) string {
	return c.OAuthRedirectBase + strings.TrimRight(prefix, "/") + "/" + provider + "/callback"
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	federation := c.FederationEnabled()
	minUsername := identity.DefaultUsernameMinLength + identity.DefaultUsernameSuffixLen

	err := validation.ValidateStruct(c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.DBDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DBDSN, validation.Required),
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.TokenTTL, validation.By(positiveDuration)),
		validation.Field(&c.EncryptionSecret, validation.Length(secret.MinSecretLength, 0)),
		validation.Field(&c.UsernameMaxLength, validation.Min(minUsername), validation.Max(64)),
		validation.Field(&c.Google),
		validation.Field(&c.GitHub),
		validation.Field(&c.OAuthRedirectBase, validation.When(federation, validation.Required, is.URL)),
		validation.Field(&c.OAuthStateKey, validation.When(federation, validation.Required, validation.Length(32, 0))),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid configuration")
	}
	return nil
}

// ValidateDatabase checks only the database settings, for commands that
// never issue tokens.
func (c *Config) ValidateDatabase() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DBDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DBDSN, validation.Required),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid database configuration")
	}
	return nil
}

func positiveDuration(value any) error {
	d, _ := value.(time.Duration)
	if d < time.Minute {
		return fmt.Errorf("must be at least %s", time.Minute)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(envPrefix + key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok || value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(envPrefix + key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
