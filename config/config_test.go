package config

import (
	"testing"
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUILDTRACKER_SIGNING_KEY", testKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, buildtracker.DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, ProviderLocal, cfg.AuthProvider)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, "bt_access_token", cfg.GetAccessTokenCookie())
	assert.Equal(t, "bt_refresh_token", cfg.GetRefreshTokenCookie())
	assert.Equal(t, 720*time.Hour, cfg.GetRefreshCookieDuration())
	assert.Equal(t, "/login", cfg.GetRejectedRouteDefault())
	assert.False(t, cfg.GetSecureCookies())
	assert.Equal(t, testKey, cfg.JWTSecret())
}

func TestLoadLocalRequiresSigningKey(t *testing.T) {
	t.Setenv("BUILDTRACKER_SIGNING_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, buildtracker.ValidationFields(err), "SigningKey")
}

func TestLoadSupabase(t *testing.T) {
	t.Setenv("BUILDTRACKER_AUTH_PROVIDER", " Supabase ")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SUPABASE_JWT_SECRET", "jwt-secret")
	t.Setenv("BUILDTRACKER_SECURE_COOKIES", "true")
	t.Setenv("BUILDTRACKER_COOKIE_DURATION", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderSupabase, cfg.AuthProvider)
	assert.Equal(t, "jwt-secret", cfg.JWTSecret())
	assert.True(t, cfg.GetSecureCookies())
	assert.Equal(t, 15*time.Minute, cfg.GetCookieDuration())
}

func TestLoadSupabaseRequiresURL(t *testing.T) {
	t.Setenv("BUILDTRACKER_AUTH_PROVIDER", "supabase")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("BUILDTRACKER_SIGNING_KEY", testKey)
	t.Setenv("BUILDTRACKER_DATABASE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("BUILDTRACKER_DATABASE_DRIVER", "sqlite")
	t.Setenv("BUILDTRACKER_TOKEN_TTL", "soon")

	_, err = Load()
	require.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("BUILDTRACKER_ENDPOINT", "https://builds.example.com")
	t.Setenv("BUILDTRACKER_CREDENTIALS", "/tmp/creds.yaml")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "https://builds.example.com", cfg.Endpoint)
	assert.Equal(t, "/tmp/creds.yaml", cfg.CredentialsPath)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadProfileSource(t *testing.T) {
	t.Setenv("BUILDTRACKER_SIGNING_KEY", testKey)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProfilesDatabase, cfg.ProfileSource)

	t.Setenv("BUILDTRACKER_PROFILE_SOURCE", "ldap")
	_, err = Load()
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := Config{SigningKey: testKey, SupabaseAnonKey: "anon", HTTPAddr: ":9000"}

	redacted := cfg.Redacted()
	assert.Equal(t, "****", redacted.SigningKey)
	assert.Equal(t, "****", redacted.SupabaseAnonKey)
	assert.Empty(t, redacted.CSRFKey)
	assert.Equal(t, ":9000", redacted.HTTPAddr)
	assert.Equal(t, testKey, cfg.SigningKey)
}
