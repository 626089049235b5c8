package buildtracker_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testConfig struct{}

func (testConfig) GetAccessTokenCookie() string            { return "bt_access" }
func (testConfig) GetRefreshTokenCookie() string           { return "bt_refresh" }
func (testConfig) GetCookieDuration() time.Duration        { return time.Hour }
func (testConfig) GetRefreshCookieDuration() time.Duration { return 24 * time.Hour }
func (testConfig) GetSecureCookies() bool                  { return false }
func (testConfig) GetRejectedRouteKey() string             { return "rejected_route" }
func (testConfig) GetRejectedRouteDefault() string         { return "/login" }
func (testConfig) GetSiteURL() string                      { return "http://localhost:8978" }

type refreshBackend struct {
	buildtracker.AuthBackend
	tokens *buildtracker.Tokens
	err    error
	calls  []string
}

func (b *refreshBackend) Refresh(ctx context.Context, refreshToken string) (*buildtracker.Tokens, error) {
	b.calls = append(b.calls, refreshToken)
	return b.tokens, b.err
}

// tokenResolver authenticates the "good" access token only
func tokenResolver(good string) resolverFunc {
	return func(ctx context.Context) buildtracker.Identity {
		if token, ok := buildtracker.AccessTokenFromContext(ctx); ok && token == good {
			return authenticated("u1", "jane@x.com", "Jane")
		}
		return buildtracker.Unauthenticated()
	}
}

func runMiddleware(t *testing.T, s *buildtracker.RouteSession, ctx *router.MockContext) (buildtracker.Identity, bool) {
	t.Helper()

	var got buildtracker.Identity
	ctx.On("Context").Return(context.Background())
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	ctx.On("Locals", buildtracker.IdentityLocalsKey, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		got = args.Get(1).(buildtracker.Identity)
	})
	ctx.On("Locals", buildtracker.UserIDLocalsKey, mock.Anything).Return(nil).Maybe()

	nextCalled := false
	handler := s.Middleware()(func(c router.Context) error {
		nextCalled = true
		return nil
	})

	require.NoError(t, handler(ctx))
	return got, nextCalled
}

func TestRouteSession_MiddlewareBearerToken(t *testing.T) {
	s := buildtracker.NewRouteSession(testConfig{}, &refreshBackend{}, tokenResolver("good-token"))

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer good-token")

	identity, nextCalled := runMiddleware(t, s, ctx)

	assert.True(t, nextCalled)
	assert.True(t, identity.IsAuthenticated)
	assert.Equal(t, "u1", identity.UserID())
	ctx.AssertCalled(t, "Locals", buildtracker.UserIDLocalsKey, "u1")
}

func TestRouteSession_MiddlewareCookieWinsOverHeader(t *testing.T) {
	s := buildtracker.NewRouteSession(testConfig{}, &refreshBackend{}, tokenResolver("cookie-token"))

	ctx := router.NewMockContext()
	ctx.CookiesM["bt_access"] = "cookie-token"

	identity, _ := runMiddleware(t, s, ctx)

	assert.True(t, identity.IsAuthenticated)
	ctx.AssertNotCalled(t, "GetString", "Authorization", "")
}

func TestRouteSession_MiddlewareAnonymous(t *testing.T) {
	backend := &refreshBackend{}
	s := buildtracker.NewRouteSession(testConfig{}, backend, tokenResolver("good-token"))

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("")

	identity, nextCalled := runMiddleware(t, s, ctx)

	assert.True(t, nextCalled, "anonymous requests continue")
	assert.False(t, identity.IsAuthenticated)
	assert.Empty(t, backend.calls, "no refresh cookie, no refresh")
	ctx.AssertNotCalled(t, "Locals", buildtracker.UserIDLocalsKey, mock.Anything)
}

func TestRouteSession_MiddlewareRefreshesExpiredSession(t *testing.T) {
	backend := &refreshBackend{
		tokens: &buildtracker.Tokens{
			AccessToken:  "good-token",
			RefreshToken: "refresh-2",
			User:         &buildtracker.Account{ID: "u1", Email: "jane@x.com"},
		},
	}
	s := buildtracker.NewRouteSession(testConfig{}, backend, tokenResolver("good-token"))

	ctx := router.NewMockContext()
	ctx.CookiesM["bt_access"] = "stale-token"
	ctx.CookiesM["bt_refresh"] = "refresh-1"
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "bt_access" && c.Value == "good-token" && c.HTTPOnly
	})).Return().Once()
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "bt_refresh" && c.Value == "refresh-2" && c.HTTPOnly
	})).Return().Once()

	identity, _ := runMiddleware(t, s, ctx)

	assert.Equal(t, []string{"refresh-1"}, backend.calls)
	assert.True(t, identity.IsAuthenticated)
	ctx.AssertExpectations(t)
}

func TestRouteSession_MiddlewareRejectedRefreshClearsCookies(t *testing.T) {
	backend := &refreshBackend{err: buildtracker.ErrTokenExpired.Clone()}
	s := buildtracker.NewRouteSession(testConfig{}, backend, tokenResolver("good-token"))

	ctx := router.NewMockContext()
	ctx.CookiesM["bt_access"] = "stale-token"
	ctx.CookiesM["bt_refresh"] = "refresh-1"

	cleared := map[string]bool{}
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Value == "" && c.Expires.Before(time.Now())
	})).Return().Run(func(args mock.Arguments) {
		cleared[args.Get(0).(*router.Cookie).Name] = true
	})

	identity, nextCalled := runMiddleware(t, s, ctx)

	assert.True(t, nextCalled)
	assert.False(t, identity.IsAuthenticated)
	assert.True(t, cleared["bt_access"])
	assert.True(t, cleared["bt_refresh"])
}

func TestRouteSession_RequireIdentity(t *testing.T) {
	s := buildtracker.NewRouteSession(testConfig{}, &refreshBackend{}, tokenResolver(""))

	t.Run("anonymous redirects to login", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("OriginalURL").Return("/builds/new").Maybe()
		ctx.On("Method").Return("GET")
		ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.HTTPOnly
		})).Return()
		ctx.On("Redirect", "/login", []int{http.StatusFound}).Return(nil)

		nextCalled := false
		handler := s.RequireIdentity()(func(c router.Context) error {
			nextCalled = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.False(t, nextCalled)
		ctx.AssertExpectations(t)
	})

	t.Run("authenticated passes through", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock[buildtracker.IdentityLocalsKey] = authenticated("u1", "jane@x.com", "Jane")

		nextCalled := false
		handler := s.RequireIdentity()(func(c router.Context) error {
			nextCalled = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.True(t, nextCalled)
	})
}

func TestRouteSession_GetRedirect(t *testing.T) {
	s := buildtracker.NewRouteSession(testConfig{}, &refreshBackend{}, tokenResolver(""))

	t.Run("local path", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.CookiesM["rejected_route"] = "/builds/42"
		ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		assert.Equal(t, "/builds/42", s.GetRedirect(ctx, "/dashboard"))
		ctx.AssertExpectations(t)
	})

	for _, target := range []string{"https://evil.example.com", "//evil.example.com", "/\\evil.example.com", ""} {
		t.Run("rejects "+target, func(t *testing.T) {
			ctx := router.NewMockContext()
			ctx.CookiesM["rejected_route"] = target

			assert.Equal(t, "/dashboard", s.GetRedirect(ctx, "/dashboard"))
			ctx.AssertNotCalled(t, "Cookie", mock.Anything)
		})
	}
}

func TestAuthController_LoginShow(t *testing.T) {
	s := buildtracker.NewRouteSession(testConfig{}, &refreshBackend{}, tokenResolver(""))
	ctrl := buildtracker.NewAuthController(buildtracker.WithAuthSession(s))

	t.Run("renders the form for anonymous visitors", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock["csrf_token"] = "req-token"

		ctx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
			data, ok := args.Get(1).(router.ViewContext)
			require.True(t, ok, "expected router.ViewContext")
			assert.Equal(t, "req-token", data["csrf_token"])
			assert.Contains(t, data["csrf_field"], "req-token")
			identity, ok := data["current_identity"].(buildtracker.Identity)
			require.True(t, ok)
			assert.False(t, identity.IsAuthenticated)
		})

		require.NoError(t, ctrl.LoginShow(ctx))
		ctx.AssertExpectations(t)
	})

	t.Run("redirects signed in users", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock[buildtracker.IdentityLocalsKey] = authenticated("u1", "jane@x.com", "Jane")
		ctx.On("Redirect", ctrl.Routes.AfterLogin, []int{http.StatusFound}).Return(nil)

		require.NoError(t, ctrl.LoginShow(ctx))
		ctx.AssertExpectations(t)
	})
}

func TestNewAuthControllerRequiresSession(t *testing.T) {
	assert.Panics(t, func() {
		buildtracker.NewAuthController()
	})
}

func TestValidateStringEquals(t *testing.T) {
	rule := buildtracker.ValidateStringEquals("secret")
	assert.NoError(t, rule("secret"))
	assert.Error(t, rule("other"))
}
