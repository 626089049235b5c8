package buildtracker

import (
	"context"
	"fmt"
	"time"
)

// SessionClient reads the current session from a SessionSource.
// CurrentSession never fails, errors are logged and reported as no session.
type SessionClient struct {
	source   SessionSource
	notifier SessionNotifier
	backend  AuthBackend
	logger   Logger
	now      func() time.Time
}

// NewSessionClient wraps source
func NewSessionClient(source SessionSource) *SessionClient {
	return &SessionClient{
		source: source,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (c *SessionClient) WithLogger(l Logger) *SessionClient {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithNotifier sets the notifier used by OnSessionChange and SignOut
func (c *SessionClient) WithNotifier(n SessionNotifier) *SessionClient {
	c.notifier = n
	return c
}

// WithBackend sets the backend used by SignOut
func (c *SessionClient) WithBackend(b AuthBackend) *SessionClient {
	c.backend = b
	return c
}

// CurrentSession returns the current session or nil
func (c *SessionClient) CurrentSession(ctx context.Context) (session *Session) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("session source panic", "panic", fmt.Sprint(rec))
			session = nil
		}
	}()

	if c == nil || c.source == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return nil
	}

	session, err := c.source.GetSession(ctx)
	if err != nil {
		if IsTokenExpired(err) {
			c.logger.Debug("session token expired")
		} else {
			c.logger.Warn("session lookup failed", "error", err)
		}
		return nil
	}

	if session == nil || session.UserID == "" {
		return nil
	}

	if session.Expired(c.now()) {
		c.logger.Debug("session expired", "user_id", session.UserID)
		return nil
	}

	return session
}

// OnSessionChange subscribes fn to session change events
func (c *SessionClient) OnSessionChange(fn func(SessionEvent)) (unsubscribe func()) {
	if c.notifier == nil || fn == nil {
		return func() {}
	}
	return c.notifier.OnSessionChange(fn)
}

// SignOut revokes the session carried by ctx and publishes a sign out event
func (c *SessionClient) SignOut(ctx context.Context) error {
	session := c.CurrentSession(ctx)

	if c.backend != nil {
		if token, ok := AccessTokenFromContext(ctx); ok && token != "" {
			if err := c.backend.SignOut(ctx, token); err != nil {
				c.logger.Warn("backend sign out failed", "error", err)
			}
		}
	}

	if c.notifier == nil {
		return nil
	}

	event := NewSessionEvent(SessionSignedOut, nil)
	if session != nil {
		event.Session = &Session{UserID: session.UserID, Email: session.Email}
	}
	return c.notifier.Publish(ctx, event)
}

// TokenSessionSource reads the access token placed on the context by the
// HTTP session middleware and verifies it.
type TokenSessionSource struct {
	verifier TokenVerifier
}

// NewTokenSessionSource creates a source backed by verifier
func NewTokenSessionSource(verifier TokenVerifier) *TokenSessionSource {
	return &TokenSessionSource{verifier: verifier}
}

func (s *TokenSessionSource) GetSession(ctx context.Context) (*Session, error) {
	token, ok := AccessTokenFromContext(ctx)
	if !ok || token == "" {
		return nil, nil
	}
	return s.verifier.VerifyToken(ctx, token)
}
