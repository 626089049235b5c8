package buildtracker

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// SessionSource returns the raw session for the current caller.
// A nil session with a nil error means there is no session.
type SessionSource interface {
	GetSession(ctx context.Context) (*Session, error)
}

// TokenVerifier turns an access token into a session
type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) (*Session, error)
}

// ProfileFinder looks up the optional profile record of an account
type ProfileFinder interface {
	FindProfile(ctx context.Context, userID string) (*Profile, error)
}

// SessionNotifier delivers session change events to subscribers
type SessionNotifier interface {
	OnSessionChange(fn func(SessionEvent)) (unsubscribe func())
	Publish(ctx context.Context, event SessionEvent) error
}

// Resolver resolves the identity of the current caller
type Resolver interface {
	ResolveIdentity(ctx context.Context) Identity
}

// AuthBackend is the hosted identity service: it owns accounts, passwords
// and session tokens.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Tokens, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	GetUser(ctx context.Context, accessToken string) (*Account, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
}

// Account is the identity service view of a user
type Account struct {
	ID           string         `json:"id" yaml:"id"`
	Email        string         `json:"email,omitempty" yaml:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty" yaml:"user_metadata,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Tokens is the result of a sign in, sign up or refresh. AccessToken is
// empty when the backend requires email confirmation before sign in.
type Tokens struct {
	AccessToken  string   `json:"access_token,omitempty" yaml:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty" yaml:"refresh_token"`
	TokenType    string   `json:"token_type,omitempty" yaml:"token_type"`
	ExpiresIn    int      `json:"expires_in,omitempty" yaml:"expires_in"`
	ExpiresAt    int64    `json:"expires_at,omitempty" yaml:"expires_at"`
	User         *Account `json:"user,omitempty" yaml:"user"`
}

// HasSession reports whether the tokens carry a usable session
func (t *Tokens) HasSession() bool {
	return t != nil && t.AccessToken != ""
}

// Config holds the HTTP session options
type Config interface {
	GetAccessTokenCookie() string
	GetRefreshTokenCookie() string
	GetCookieDuration() time.Duration
	GetRefreshCookieDuration() time.Duration
	GetSecureCookies() bool
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetSiteURL() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] BUILDTRACKER "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] BUILDTRACKER "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] BUILDTRACKER "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] BUILDTRACKER "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
