package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-errors"
)

// Client is a GoTrue REST client
type Client struct {
	cfg    Config
	http   *http.Client
	logger buildtracker.Logger
	now    func() time.Time
}

var (
	_ buildtracker.AuthBackend   = (*Client)(nil)
	_ buildtracker.TokenVerifier = (*Client)(nil)
)

// NewClient validates cfg and creates a client
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		http:   cfg.httpClient(),
		logger: nopLogger{},
		now:    time.Now,
	}, nil
}

func (c *Client) WithLogger(l buildtracker.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// session is the GoTrue session payload. Sign up without auto confirmation
// returns the user fields at the top level instead.
type session struct {
	buildtracker.Tokens
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    *time.Time     `json:"created_at"`
}

func (s *session) tokens(now time.Time) *buildtracker.Tokens {
	t := s.Tokens
	if t.User == nil && s.ID != "" {
		t.User = &buildtracker.Account{
			ID:           s.ID,
			Email:        s.Email,
			UserMetadata: s.UserMetadata,
			CreatedAt:    s.CreatedAt,
		}
	}
	if t.AccessToken != "" && t.ExpiresAt == 0 && t.ExpiresIn > 0 {
		t.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).Unix()
	}
	return &t
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*buildtracker.Tokens, error) {
	out := &session{}
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]any{
		"email":    email,
		"password": password,
	}, out)
	if err != nil {
		return nil, err
	}
	return out.tokens(c.now()), nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*buildtracker.Tokens, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	out := &session{}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, out); err != nil {
		return nil, err
	}
	return out.tokens(c.now()), nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*buildtracker.Tokens, error) {
	out := &session{}
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]any{
		"refresh_token": refreshToken,
	}, out)
	if err != nil {
		return nil, err
	}
	return out.tokens(c.now()), nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*buildtracker.Account, error) {
	if accessToken == "" {
		return nil, buildtracker.ErrNotAuthenticated.Clone()
	}
	out := &buildtracker.Account{}
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]any{"email": email}, nil)
}

// VerifyToken asks the identity service for the token owner. Prefer
// NewJWTVerifier when the JWT secret is available.
func (c *Client) VerifyToken(ctx context.Context, token string) (*buildtracker.Session, error) {
	account, err := c.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &buildtracker.Session{
		UserID:   account.ID,
		Email:    account.Email,
		Metadata: account.UserMetadata,
	}, nil
}

// apiError is the union of the GoTrue error shapes
type apiError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) message() string {
	for _, m := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.baseURL()+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "build request")
	}

	if bearer == "" {
		bearer = c.cfg.AnonKey
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("identity service request failed", "path", path, "error", err)
		return errors.Wrap(err, errors.CategoryOperation, "identity service unreachable").
			WithTextCode("IDENTITY_SERVICE_UNAVAILABLE")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "read identity service response")
	}

	if res.StatusCode >= http.StatusBadRequest {
		return c.statusError(res.StatusCode, path, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "decode identity service response")
	}
	return nil
}

func (c *Client) statusError(status int, path string, raw []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	msg := apiErr.message()
	if msg == "" {
		msg = fmt.Sprintf("identity service returned %d", status)
	}

	meta := map[string]any{
		"status": status,
		"path":   path,
	}
	if apiErr.ErrorCode != "" {
		meta["error_code"] = apiErr.ErrorCode
	}

	switch {
	case strings.Contains(path, "grant_type=password") && (status == http.StatusBadRequest || status == http.StatusUnauthorized):
		return buildtracker.ErrInvalidCredentials.Clone().WithMetadata(meta)
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		strings.Contains(path, "grant_type=refresh_token") && status == http.StatusBadRequest:
		return errors.New(msg, errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode("IDENTITY_SERVICE_REJECTED").
			WithMetadata(meta)
	case status == http.StatusTooManyRequests:
		return errors.New(msg, errors.CategoryRateLimit).
			WithCode(status).
			WithTextCode("IDENTITY_SERVICE_RATE_LIMIT").
			WithMetadata(meta)
	case status < http.StatusInternalServerError:
		return errors.New(msg, errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest).
			WithTextCode("IDENTITY_SERVICE_BAD_REQUEST").
			WithMetadata(meta)
	default:
		return errors.New(msg, errors.CategoryOperation).
			WithCode(status).
			WithTextCode("IDENTITY_SERVICE_UNAVAILABLE").
			WithMetadata(meta)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(format string, args ...any) {}
func (nopLogger) Info(format string, args ...any)  {}
func (nopLogger) Warn(format string, args ...any)  {}
func (nopLogger) Error(format string, args ...any) {}
