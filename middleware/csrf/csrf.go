// Package csrf protects form posts with stateless signed tokens bound to the
// signed in user, or to the client IP for anonymous visitors.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required")
)

const (
	DefaultNonceLength        = 16
	DefaultTemplateHelpersKey = "template_helpers"
	DefaultContextKey         = "csrf_token"
	DefaultFormFieldName      = "_token"
	DefaultHeaderName         = "X-CSRF-Token"
	MinSecureKeyLength        = 32
)

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	ContextKey    string
	FormFieldName string
	HeaderName    string

	// SessionKey binds a token to the requester. Defaults to the user_id
	// local and falls back to the client IP.
	SessionKey func(router.Context) string

	ErrorHandler   router.ErrorHandler
	SuccessHandler router.HandlerFunc

	// SafeMethods are not validated, they only receive a fresh token
	SafeMethods []string

	// Expiration is the token lifetime, zero disables expiry checks
	Expiration time.Duration

	SecureKey []byte

	DisableTemplateHelpers bool
	TemplateHelpersKey     string
}

// New creates a new CSRF middleware
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := configDefault(config...)

		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			session := cfg.SessionKey(ctx)

			token, err := issueToken(cfg.SecureKey, session, time.Now())
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
			ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)
			if !cfg.DisableTemplateHelpers {
				ctx.LocalsMerge(cfg.TemplateHelpersKey, TemplateHelpersWithRouter(ctx, cfg.ContextKey))
			}

			if slices.Contains(cfg.SafeMethods, strings.ToUpper(ctx.Method())) {
				return cfg.SuccessHandler(ctx)
			}

			received := ctx.FormValue(cfg.FormFieldName)
			if received == "" {
				received = ctx.GetString(cfg.HeaderName, "")
			}
			if received == "" {
				return cfg.ErrorHandler(ctx, ErrTokenMissing)
			}

			if err := verifyToken(cfg.SecureKey, received, session, cfg.Expiration, time.Now()); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// SessionFromLocals returns the user_id local or the client IP
func SessionFromLocals(ctx router.Context) string {
	if id, ok := ctx.Locals("user_id").(string); ok && id != "" {
		return "user:" + id
	}
	return "ip:" + ctx.IP()
}

// token layout: base64(unix:nonce:session:hmac)
func issueToken(key []byte, session string, now time.Time) (string, error) {
	if len(key) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, DefaultNonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s:%s", now.UTC().Unix(), hex.EncodeToString(nonce), encodeSession(session))
	token := payload + ":" + hex.EncodeToString(sign(key, payload))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func verifyToken(key []byte, token, session string, ttl time.Duration, now time.Time) error {
	if len(key) == 0 {
		return ErrSecureKeyMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(parts[3])
	if err != nil {
		return ErrTokenMismatch
	}

	if !hmac.Equal(signature, sign(key, strings.Join(parts[:3], ":"))) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(encodeSession(session))) != 1 {
		return ErrTokenMismatch
	}

	issued, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if ttl > 0 && now.UTC().After(time.Unix(issued, 0).Add(ttl)) {
		return ErrTokenExpired
	}

	return nil
}

func sign(key []byte, payload string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// session values may contain ':' (IPv6)
func encodeSession(session string) string {
	return hex.EncodeToString([]byte(session))
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.SessionKey == nil {
		cfg.SessionKey = SessionFromLocals
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.TemplateHelpersKey == "" {
		cfg.TemplateHelpersKey = DefaultTemplateHelpersKey
	}

	cfg.SecureKey = initializeSecureKey(cfg.SecureKey)

	return cfg
}

func defaultErrorHandler(ctx router.Context, err error) error {
	switch err {
	case ErrTokenMissing:
		return ctx.Status(router.StatusBadRequest).SendString("CSRF token missing")
	case ErrTokenMismatch:
		return ctx.Status(router.StatusForbidden).SendString("CSRF token mismatch")
	case ErrTokenExpired:
		return ctx.Status(router.StatusForbidden).SendString("CSRF token expired")
	default:
		return ctx.Status(router.StatusInternalServerError).SendString("CSRF validation error")
	}
}

// initializeSecureKey generates a process local key when none is configured.
// Tokens then do not survive a restart.
func initializeSecureKey(current []byte) []byte {
	if len(current) > 0 {
		if len(current) < MinSecureKeyLength {
			panic(fmt.Errorf("csrf: secure key must be at least %d bytes, got %d", MinSecureKeyLength, len(current)))
		}
		return current
	}
	key := make([]byte, MinSecureKeyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}

// TemplateHelpersWithRouter returns the csrf_* template values for the
// current request
func TemplateHelpersWithRouter(ctx router.Context, tokenKey string) map[string]any {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token, _ := ctx.Locals(tokenKey).(string)

	fieldName := DefaultFormFieldName
	if val, ok := ctx.Locals(tokenKey + "_field").(string); ok && val != "" {
		fieldName = val
	}

	headerName := DefaultHeaderName
	if val, ok := ctx.Locals(tokenKey + "_header").(string); ok && val != "" {
		headerName = val
	}

	escaped := html.EscapeString(token)
	return map[string]any{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + html.EscapeString(fieldName) + `" value="` + escaped + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + escaped + `">`,
		"csrf_header_name": headerName,
	}
}

// TokenHandler serves the current token as JSON for API clients
func TokenHandler(contextKey string) router.HandlerFunc {
	if contextKey == "" {
		contextKey = DefaultContextKey
	}
	return func(ctx router.Context) error {
		token, _ := ctx.Locals(contextKey).(string)
		if token == "" {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": ErrTokenMissing.Error(),
			})
		}

		ctx.SetHeader("Cache-Control", "no-store, max-age=0")

		return ctx.JSON(router.StatusOK, map[string]string{
			"token":       token,
			"header_name": DefaultHeaderName,
		})
	}
}
