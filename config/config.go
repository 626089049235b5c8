// Package config loads the buildtracker server and CLI settings from the
// environment.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-buildtracker"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ProviderLocal    = "local"
	ProviderSupabase = "supabase"

	ProfilesDatabase = "database"
)

// Config implements buildtracker.Config
type Config struct {
	HTTPAddr string `env:"BUILDTRACKER_HTTP_ADDR" envDefault:":8080"`
	SiteURL  string `env:"BUILDTRACKER_SITE_URL"  envDefault:"http://localhost:8080"`
	LogLevel string `env:"BUILDTRACKER_LOG_LEVEL" envDefault:"info"`

	DatabaseDriver string `env:"BUILDTRACKER_DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"BUILDTRACKER_DATABASE_DSN"    envDefault:"file:buildtracker.db?cache=shared&_fk=1"`

	AuthProvider string        `env:"BUILDTRACKER_AUTH_PROVIDER" envDefault:"local"`
	SigningKey   string        `env:"BUILDTRACKER_SIGNING_KEY"`
	TokenTTL     time.Duration `env:"BUILDTRACKER_TOKEN_TTL"     envDefault:"1h"`
	Issuer       string        `env:"BUILDTRACKER_TOKEN_ISSUER"`

	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`

	// ProfileSource is where identities read profiles from: database or supabase
	ProfileSource string `env:"BUILDTRACKER_PROFILE_SOURCE" envDefault:"database"`

	RedisAddr     string `env:"BUILDTRACKER_REDIS_ADDR"`
	RedisPassword string `env:"BUILDTRACKER_REDIS_PASSWORD"`
	RedisDB       int    `env:"BUILDTRACKER_REDIS_DB"      envDefault:"0"`
	RedisChannel  string `env:"BUILDTRACKER_REDIS_CHANNEL" envDefault:"buildtracker:session"`

	AccessTokenCookie     string        `env:"BUILDTRACKER_ACCESS_COOKIE"           envDefault:"bt_access_token"`
	RefreshTokenCookie    string        `env:"BUILDTRACKER_REFRESH_COOKIE"          envDefault:"bt_refresh_token"`
	CookieDuration        time.Duration `env:"BUILDTRACKER_COOKIE_DURATION"         envDefault:"1h"`
	RefreshCookieDuration time.Duration `env:"BUILDTRACKER_REFRESH_COOKIE_DURATION" envDefault:"720h"`
	SecureCookies         bool          `env:"BUILDTRACKER_SECURE_COOKIES"          envDefault:"false"`
	RejectedRouteKey      string        `env:"BUILDTRACKER_REJECTED_ROUTE_KEY"      envDefault:"login_redirect"`
	RejectedRouteDefault  string        `env:"BUILDTRACKER_REJECTED_ROUTE_DEFAULT"  envDefault:"/login"`

	CSRFKey string `env:"BUILDTRACKER_CSRF_KEY"`
}

var _ buildtracker.Config = (*Config)(nil)

// Load parses the environment and validates the result
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "parse env")
	}

	cfg.AuthProvider = strings.ToLower(strings.TrimSpace(cfg.AuthProvider))

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithMetadata(map[string]any{"fields": buildtracker.FormatValidationErrorToMap(err)})
	}
	return cfg, nil
}

func (c Config) Validate() error {
	signingKey := []validation.Rule{validation.Length(32, 0)}
	supabaseURL := []validation.Rule{is.URL}
	supabaseAnonKey := []validation.Rule{}

	switch c.AuthProvider {
	case ProviderLocal:
		signingKey = append(signingKey, validation.Required)
	case ProviderSupabase:
		supabaseURL = append(supabaseURL, validation.Required)
		supabaseAnonKey = append(supabaseAnonKey, validation.Required)
	}

	return validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.SiteURL, validation.Required, is.URL),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In(
			buildtracker.DriverSQLite, buildtracker.DriverPostgres,
		)),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.AuthProvider, validation.Required, validation.In(ProviderLocal, ProviderSupabase)),
		validation.Field(&c.SigningKey, signingKey...),
		validation.Field(&c.SupabaseURL, supabaseURL...),
		validation.Field(&c.SupabaseAnonKey, supabaseAnonKey...),
		validation.Field(&c.ProfileSource, validation.In(ProfilesDatabase, ProviderSupabase)),
		validation.Field(&c.CSRFKey, validation.Length(32, 0)),
		validation.Field(&c.AccessTokenCookie, validation.Required),
		validation.Field(&c.RefreshTokenCookie, validation.Required),
	)
}

func (c Config) GetAccessTokenCookie() string {
	return c.AccessTokenCookie
}

func (c Config) GetRefreshTokenCookie() string {
	return c.RefreshTokenCookie
}

func (c Config) GetCookieDuration() time.Duration {
	return c.CookieDuration
}

func (c Config) GetRefreshCookieDuration() time.Duration {
	return c.RefreshCookieDuration
}

func (c Config) GetSecureCookies() bool {
	return c.SecureCookies
}

func (c Config) GetRejectedRouteKey() string {
	return c.RejectedRouteKey
}

func (c Config) GetRejectedRouteDefault() string {
	return c.RejectedRouteDefault
}

func (c Config) GetSiteURL() string {
	return c.SiteURL
}

// JWTSecret is the secret used to verify access tokens: the local signing
// key or the Supabase project JWT secret
func (c Config) JWTSecret() string {
	if c.AuthProvider == ProviderSupabase {
		return c.SupabaseJWTSecret
	}
	return c.SigningKey
}

// ClientConfig is the btctl configuration
type ClientConfig struct {
	Endpoint        string `env:"BUILDTRACKER_ENDPOINT"  envDefault:"http://localhost:8080"`
	AnonKey         string `env:"SUPABASE_ANON_KEY"`
	CredentialsPath string `env:"BUILDTRACKER_CREDENTIALS"`
	LogLevel        string `env:"BUILDTRACKER_LOG_LEVEL" envDefault:"warn"`
}

// LoadClient parses the btctl environment
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "parse env")
	}
	return cfg, nil
}

// Redacted returns a copy safe to log
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.SigningKey = mask(c.SigningKey)
	c.SupabaseAnonKey = mask(c.SupabaseAnonKey)
	c.SupabaseJWTSecret = mask(c.SupabaseJWTSecret)
	c.RedisPassword = mask(c.RedisPassword)
	c.CSRFKey = mask(c.CSRFKey)
	return c
}
