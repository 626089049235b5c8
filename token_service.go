package buildtracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultAudience is the audience of identity service access tokens
const DefaultAudience = "authenticated"

// AccessClaims are the claims of an identity service access token
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
}

// Session maps the claims to a Session
func (c *AccessClaims) Session() *Session {
	s := &Session{
		UserID:   c.Subject,
		Email:    c.Email,
		Metadata: c.UserMetadata,
	}
	if c.IssuedAt != nil {
		iat := c.IssuedAt.Time.UTC()
		s.IssuedAt = &iat
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time.UTC()
		s.ExpiresAt = &exp
	}
	return s
}

// TokenService signs and verifies HS256 access tokens. It is the
// TokenVerifier of a session source and the issuer of the local provider.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

var _ TokenVerifier = (*TokenService)(nil)

// NewTokenService creates a service for signingKey. An empty audience means
// DefaultAudience.
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, audience ...string) *TokenService {
	if len(audience) == 0 {
		audience = []string{DefaultAudience}
	}
	return &TokenService{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   audience,
		logger:     defLogger{},
		now:        time.Now,
	}
}

func (ts *TokenService) WithLogger(l Logger) *TokenService {
	if l != nil {
		ts.logger = l
	}
	return ts
}

// TTL returns the lifetime of issued tokens
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Sign issues an access token for account
func (ts *TokenService) Sign(account *Account, sessionID string) (string, time.Time, error) {
	if account == nil || account.ID == "" {
		return "", time.Time{}, errors.New("account must not be empty", errors.CategoryInternal)
	}

	now := ts.now()
	expiresAt := now.Add(ts.ttl)
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   account.ID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:        account.Email,
		Role:         DefaultAudience,
		UserMetadata: account.UserMetadata,
		SessionID:    sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, expiresAt, nil
}

// Parse validates tokenString and returns its claims
func (ts *TokenService) Parse(tokenString string) (*AccessClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrTokenMalformed.Clone()
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService parse encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired.Clone()
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithCode(ErrTokenMalformed.Code).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed.Clone()
	}

	return claims, nil
}

// VerifyToken validates an access token and returns its session
func (ts *TokenService) VerifyToken(ctx context.Context, token string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := ts.Parse(token)
	if err != nil {
		return nil, err
	}
	return claims.Session(), nil
}
