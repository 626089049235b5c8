package buildtracker

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteSession moves the identity service session between cookies and the
// request: it resolves the identity once per request and stores it in the
// request context and router locals.
type RouteSession struct {
	cfg              Config
	backend          AuthBackend
	resolver         Resolver
	notifier         SessionNotifier
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewRouteSession(cfg Config, backend AuthBackend, resolver Resolver) *RouteSession {
	s := &RouteSession{
		cfg:      cfg,
		backend:  backend,
		resolver: resolver,
		Logger:   defLogger{},
	}
	s.ErrorHandler = s.defaultErrHandler
	s.AuthErrorHandler = s.defaultAuthErrHandler
	return s
}

func (s *RouteSession) WithLogger(l Logger) *RouteSession {
	if l != nil {
		s.Logger = l
	}
	return s
}

// WithNotifier publishes sign in, sign out and refresh events to n
func (s *RouteSession) WithNotifier(n SessionNotifier) *RouteSession {
	s.notifier = n
	return s
}

// Middleware resolves the identity for every request. Requests without a
// session continue as anonymous.
func (s *RouteSession) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			ctx := c.Context()
			token := s.accessToken(c)

			identity := Unauthenticated()
			if token != "" {
				identity = s.resolver.ResolveIdentity(WithAccessToken(ctx, token))
			}

			if !identity.IsAuthenticated {
				if refreshed, ok := s.refresh(c); ok {
					token = refreshed
					identity = s.resolver.ResolveIdentity(WithAccessToken(ctx, token))
				}
			}

			ctx = WithIdentity(WithAccessToken(ctx, token), identity)
			c.SetContext(ctx)
			c.Locals(IdentityLocalsKey, identity)
			if identity.IsAuthenticated {
				c.Locals(UserIDLocalsKey, identity.UserID())
			}

			return next(c)
		}
	}
}

// RequireIdentity rejects anonymous requests with AuthErrorHandler
func (s *RouteSession) RequireIdentity() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !GetRouterIdentity(c).IsAuthenticated {
				return s.AuthErrorHandler(c, ErrNotAuthenticated.Clone())
			}
			return next(c)
		}
	}
}

// SignIn exchanges credentials for tokens and stores them in cookies
func (s *RouteSession) SignIn(c router.Context, email, password string) (*Tokens, error) {
	tokens, err := s.backend.SignInWithPassword(c.Context(), email, password)
	if err != nil {
		s.Logger.Info("sign in failed", "email", email, "error", err)
		return nil, err
	}

	s.setTokens(c, tokens)
	s.publish(c.Context(), SessionSignedIn, tokens)
	return tokens, nil
}

// SignUp registers an account. When the backend returns a session it is
// stored in cookies, otherwise the account waits for email confirmation.
func (s *RouteSession) SignUp(c router.Context, email, password string, metadata map[string]any) (*Tokens, error) {
	tokens, err := s.backend.SignUp(c.Context(), email, password, metadata)
	if err != nil {
		s.Logger.Info("sign up failed", "email", email, "error", err)
		return nil, err
	}

	if tokens.HasSession() {
		s.setTokens(c, tokens)
		s.publish(c.Context(), SessionSignedIn, tokens)
	}
	return tokens, nil
}

// SignOut revokes the session and clears the cookies. Backend failures are
// logged, the cookies are cleared regardless.
func (s *RouteSession) SignOut(c router.Context) {
	ctx := c.Context()
	identity := GetRouterIdentity(c)

	if token, ok := AccessTokenFromContext(ctx); ok && token != "" {
		if err := s.backend.SignOut(ctx, token); err != nil {
			s.Logger.Warn("backend sign out failed", "error", err)
		}
	}

	s.clearTokens(c)

	if s.notifier != nil {
		event := NewSessionEvent(SessionSignedOut, nil)
		if identity.IsAuthenticated {
			event.Session = &Session{UserID: identity.UserID(), Email: identity.EmailAddress()}
		}
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.Logger.Warn("publish sign out failed", "error", err)
		}
	}
}

// ResetPassword asks the backend to email a recovery link
func (s *RouteSession) ResetPassword(c router.Context, email string) error {
	redirectTo := strings.TrimRight(s.cfg.GetSiteURL(), "/") + "/login"
	return s.backend.ResetPasswordForEmail(c.Context(), email, redirectTo)
}

func (s *RouteSession) GetRedirect(c router.Context, def string) string {
	key := s.cfg.GetRejectedRouteKey()
	r := c.Cookies(key)
	if r == "" || !isLocalPath(r) {
		return def
	}
	s.cookieDel(c, key)
	return r
}

func (s *RouteSession) SetRedirect(c router.Context) {
	key := s.cfg.GetRejectedRouteKey()
	s.Logger.Debug("setting redirect cookie", "key", key, "path", c.OriginalURL())

	c.Cookie(&router.Cookie{
		Name:     key,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   s.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (s *RouteSession) accessToken(c router.Context) string {
	if token := c.Cookies(s.cfg.GetAccessTokenCookie()); token != "" {
		return token
	}

	auth := c.GetString("Authorization", "")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// refresh exchanges the refresh token cookie for a new session. Cookies are
// only cleared when the backend rejects the refresh token, a transport
// failure leaves them for the next request.
func (s *RouteSession) refresh(c router.Context) (string, bool) {
	refreshToken := c.Cookies(s.cfg.GetRefreshTokenCookie())
	if refreshToken == "" {
		return "", false
	}

	tokens, err := s.backend.Refresh(c.Context(), refreshToken)
	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) && richErr.Category == errors.CategoryAuth {
			s.Logger.Info("refresh token rejected, clearing session", "error", richErr.Message)
			s.clearTokens(c)
		} else {
			s.Logger.Warn("session refresh failed", "error", err)
		}
		return "", false
	}

	if !tokens.HasSession() {
		return "", false
	}

	s.setTokens(c, tokens)
	s.publish(c.Context(), SessionTokenRefreshed, tokens)
	return tokens.AccessToken, true
}

func (s *RouteSession) publish(ctx context.Context, eventType SessionEventType, tokens *Tokens) {
	if s.notifier == nil {
		return
	}

	event := NewSessionEvent(eventType, sessionFromTokens(tokens))
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.Logger.Warn("publish session event failed", "type", string(eventType), "error", err)
	}
}

func (s *RouteSession) setTokens(c router.Context, tokens *Tokens) {
	if !tokens.HasSession() {
		return
	}

	s.setCookie(c, s.cfg.GetAccessTokenCookie(), tokens.AccessToken, s.cfg.GetCookieDuration())
	if tokens.RefreshToken != "" {
		s.setCookie(c, s.cfg.GetRefreshTokenCookie(), tokens.RefreshToken, s.cfg.GetRefreshCookieDuration())
	}
}

func (s *RouteSession) clearTokens(c router.Context) {
	s.cookieDel(c, s.cfg.GetAccessTokenCookie())
	s.cookieDel(c, s.cfg.GetRefreshTokenCookie())
}

func (s *RouteSession) setCookie(c router.Context, name, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   s.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (s *RouteSession) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   s.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (s *RouteSession) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	s.Logger.Info(
		"authentication required, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	s.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/login", statusCode)
}

func (s *RouteSession) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	s.Logger.Info(
		"request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth:
		return s.AuthErrorHandler(c, richErr)
	case errors.CategoryNotFound:
		return c.Status(http.StatusNotFound).Render("errors/404", MergeTemplateData(c, router.ViewContext{
			"error": richErr,
		}))
	default:
		code := richErr.Code
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return c.Status(code).Render("errors/500", MergeTemplateData(c, router.ViewContext{
			"error": richErr,
		}))
	}
}

func sessionFromTokens(tokens *Tokens) *Session {
	if tokens == nil || tokens.User == nil {
		return nil
	}
	session := &Session{
		UserID:   tokens.User.ID,
		Email:    tokens.User.Email,
		Metadata: tokens.User.UserMetadata,
	}
	if tokens.ExpiresAt > 0 {
		exp := time.Unix(tokens.ExpiresAt, 0).UTC()
		session.ExpiresAt = &exp
	}
	return session
}

// isLocalPath accepts only same site absolute paths as redirect targets
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, "\\")
}
