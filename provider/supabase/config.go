package supabase

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// Config holds the project settings
type Config struct {
	// URL is the project URL, e.g. "https://abc.supabase.co"
	URL string

	// AnonKey is the public API key sent as the apikey header
	AnonKey string

	// JWTSecret verifies access tokens locally when set
	JWTSecret string

	// Timeout bounds every request when HTTPClient is nil.
	// Default: 10 seconds.
	Timeout time.Duration

	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig(url, anonKey string) Config {
	return Config{
		URL:     url,
		AnonKey: anonKey,
		Timeout: 10 * time.Second,
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("supabase url is required", errors.CategoryBadInput).
			WithTextCode("SUPABASE_URL_MISSING")
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		return errors.New("supabase anon key is required", errors.CategoryBadInput).
			WithTextCode("SUPABASE_KEY_MISSING")
	}
	return nil
}

func (c Config) baseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.URL), "/")
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
