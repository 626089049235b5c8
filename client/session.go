package client

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-buildtracker"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultRefreshSkew refreshes tokens this long before they expire
const DefaultRefreshSkew = time.Minute

// Session is a buildtracker.SessionSource for a single signed in user. It
// signs in and out through an AuthBackend and refreshes stored tokens before
// they expire.
type Session struct {
	mu       sync.Mutex
	store    CredentialStore
	backend  buildtracker.AuthBackend
	verifier buildtracker.TokenVerifier
	notifier buildtracker.SessionNotifier
	logger   buildtracker.Logger
	skew     time.Duration
	now      func() time.Time
}

var _ buildtracker.SessionSource = (*Session)(nil)

// NewSession creates a session. verifier turns access tokens into sessions,
// the backend itself is used when it implements TokenVerifier and verifier
// is nil.
func NewSession(store CredentialStore, backend buildtracker.AuthBackend, verifier buildtracker.TokenVerifier) *Session {
	if verifier == nil {
		verifier, _ = backend.(buildtracker.TokenVerifier)
	}
	return &Session{
		store:    store,
		backend:  backend,
		verifier: verifier,
		logger:   nopLogger{},
		skew:     DefaultRefreshSkew,
		now:      time.Now,
	}
}

func (s *Session) WithLogger(l buildtracker.Logger) *Session {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithNotifier publishes sign in, sign out and refresh events to n
func (s *Session) WithNotifier(n buildtracker.SessionNotifier) *Session {
	s.notifier = n
	return s
}

func (s *Session) WithRefreshSkew(d time.Duration) *Session {
	if d >= 0 {
		s.skew = d
	}
	return s
}

// SignIn exchanges credentials for tokens and stores them
func (s *Session) SignIn(ctx context.Context, email, password string) (*buildtracker.Tokens, error) {
	tokens, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	err = s.store.Save(ctx, tokens)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, buildtracker.SessionSignedIn, tokens)
	return tokens, nil
}

// SignOut revokes the stored session and clears the store. The store is
// cleared even when the backend rejects the token.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	tokens, err := s.store.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	err = s.store.Clear(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if tokens.HasSession() {
		if err := s.backend.SignOut(ctx, tokens.AccessToken); err != nil {
			s.logger.Warn("backend sign out failed", "error", err)
		}
	}

	event := buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)
	if tokens != nil && tokens.User != nil {
		event.Session = &buildtracker.Session{UserID: tokens.User.ID, Email: tokens.User.Email}
	}
	s.notify(ctx, event)
	return nil
}

// Refresh exchanges the stored refresh token for a new pair
func (s *Session) Refresh(ctx context.Context) (*buildtracker.Tokens, error) {
	s.mu.Lock()
	tokens, err := s.store.Load(ctx)
	if err == nil && (tokens == nil || tokens.RefreshToken == "") {
		err = buildtracker.ErrNotAuthenticated.Clone()
	}
	if err == nil {
		tokens, err = s.refreshLocked(ctx, tokens)
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	s.publish(ctx, buildtracker.SessionTokenRefreshed, tokens)
	return tokens, nil
}

// AccessToken returns a usable access token, refreshing it first when it is
// about to expire. It returns "" when there is no session.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	tokens, err := s.store.Load(ctx)
	if err != nil || !tokens.HasSession() {
		s.mu.Unlock()
		return "", err
	}

	refreshed := false
	if s.expiring(tokens) && tokens.RefreshToken != "" {
		tokens, err = s.refreshLocked(ctx, tokens)
		refreshed = err == nil
	}
	s.mu.Unlock()

	if err != nil {
		return "", err
	}

	// subscribers may read the session again, publish unlocked
	if refreshed {
		s.publish(ctx, buildtracker.SessionTokenRefreshed, tokens)
	}
	return tokens.AccessToken, nil
}

// GetSession verifies the stored access token. An expired token is
// refreshed once and verified again.
func (s *Session) GetSession(ctx context.Context) (*buildtracker.Session, error) {
	if s.verifier == nil {
		return nil, goerrors.New("session has no token verifier", goerrors.CategoryInternal)
	}

	token, err := s.AccessToken(ctx)
	if err != nil || token == "" {
		return nil, err
	}

	session, err := s.verifier.VerifyToken(buildtracker.WithAccessToken(ctx, token), token)
	if err == nil || !buildtracker.IsTokenExpired(err) {
		return session, err
	}

	// the local clock and the issuer disagree, force a refresh
	if _, rerr := s.Refresh(ctx); rerr != nil {
		return nil, err
	}

	token, err = s.AccessToken(ctx)
	if err != nil || token == "" {
		return nil, err
	}
	return s.verifier.VerifyToken(buildtracker.WithAccessToken(ctx, token), token)
}

// Context returns ctx carrying the current access token, for resolvers
// reading the token from the context
func (s *Session) Context(ctx context.Context) context.Context {
	token, err := s.AccessToken(ctx)
	if err != nil {
		s.logger.Debug("no access token for context", "error", err)
		return ctx
	}
	if token == "" {
		return ctx
	}
	return buildtracker.WithAccessToken(ctx, token)
}

func (s *Session) expiring(tokens *buildtracker.Tokens) bool {
	if tokens.ExpiresAt == 0 {
		return false
	}
	return !s.now().Add(s.skew).Before(time.Unix(tokens.ExpiresAt, 0))
}

func (s *Session) refreshLocked(ctx context.Context, current *buildtracker.Tokens) (*buildtracker.Tokens, error) {
	tokens, err := s.backend.Refresh(ctx, current.RefreshToken)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuth {
			s.logger.Info("refresh token rejected, clearing credentials")
			if cerr := s.store.Clear(ctx); cerr != nil {
				s.logger.Error("clear credentials failed", "error", cerr)
			}
		}
		return nil, err
	}

	if tokens.User == nil {
		tokens.User = current.User
	}

	if err := s.store.Save(ctx, tokens); err != nil {
		return nil, err
	}

	s.logger.Debug("session refreshed")
	return tokens, nil
}

func (s *Session) publish(ctx context.Context, eventType buildtracker.SessionEventType, tokens *buildtracker.Tokens) {
	var session *buildtracker.Session
	if tokens != nil && tokens.User != nil {
		session = &buildtracker.Session{
			UserID:   tokens.User.ID,
			Email:    tokens.User.Email,
			Metadata: tokens.User.UserMetadata,
		}
		if tokens.ExpiresAt > 0 {
			exp := time.Unix(tokens.ExpiresAt, 0).UTC()
			session.ExpiresAt = &exp
		}
	}
	s.notify(ctx, buildtracker.NewSessionEvent(eventType, session))
}

func (s *Session) notify(ctx context.Context, event buildtracker.SessionEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("session event publish failed", "type", string(event.Type), "error", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(format string, args ...any) {}
func (nopLogger) Info(format string, args ...any)  {}
func (nopLogger) Warn(format string, args ...any)  {}
func (nopLogger) Error(format string, args ...any) {}
