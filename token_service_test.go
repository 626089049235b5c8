package buildtracker_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-buildtracker"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func TestTokenService_SignAndVerify(t *testing.T) {
	ts := buildtracker.NewTokenService(testSigningKey, time.Hour, "buildtracker")
	account := &buildtracker.Account{
		ID:           "u1",
		Email:        "jane@x.com",
		UserMetadata: map[string]any{"full_name": "Jane Doe"},
	}

	token, expiresAt, err := ts.Sign(account, "sess-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	session, err := ts.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "jane@x.com", session.Email)
	assert.Equal(t, "Jane Doe", session.MetadataString("full_name"))
	require.NotNil(t, session.ExpiresAt)
	assert.False(t, session.Expired(time.Now()))

	claims, err := ts.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, buildtracker.DefaultAudience, claims.Role)
}

func TestTokenService_Expired(t *testing.T) {
	ts := buildtracker.NewTokenService(testSigningKey, -time.Minute, "")

	token, _, err := ts.Sign(&buildtracker.Account{ID: "u1"}, "")
	require.NoError(t, err)

	_, err = ts.VerifyToken(context.Background(), token)
	require.Error(t, err)
	assert.True(t, buildtracker.IsTokenExpired(err))
}

func TestTokenService_Rejects(t *testing.T) {
	issuer := buildtracker.NewTokenService(testSigningKey, time.Hour, "buildtracker")
	token, _, err := issuer.Sign(&buildtracker.Account{ID: "u1"}, "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		verifier *buildtracker.TokenService
		token    string
	}{
		{
			name:     "empty token",
			verifier: issuer,
			token:    "  ",
		},
		{
			name:     "garbage",
			verifier: issuer,
			token:    "not.a.jwt",
		},
		{
			name:     "wrong key",
			verifier: buildtracker.NewTokenService([]byte("fedcba9876543210fedcba9876543210"), time.Hour, "buildtracker"),
			token:    token,
		},
		{
			name:     "wrong issuer",
			verifier: buildtracker.NewTokenService(testSigningKey, time.Hour, "someone-else"),
			token:    token,
		},
		{
			name:     "wrong audience",
			verifier: buildtracker.NewTokenService(testSigningKey, time.Hour, "buildtracker", "service_role"),
			token:    token,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := tt.verifier.VerifyToken(context.Background(), tt.token)

			require.Error(t, err)
			assert.Nil(t, session)

			var richErr *errors.Error
			require.True(t, errors.As(err, &richErr))
			assert.Equal(t, buildtracker.ErrTokenMalformed.TextCode, richErr.TextCode)
			assert.Equal(t, errors.CategoryAuth, richErr.Category)
		})
	}
}

func TestTokenService_SignRequiresAccount(t *testing.T) {
	ts := buildtracker.NewTokenService(testSigningKey, time.Hour, "")

	_, _, err := ts.Sign(nil, "")
	assert.Error(t, err)

	_, _, err = ts.Sign(&buildtracker.Account{}, "")
	assert.Error(t, err)
}

func TestTokenService_CancelledContext(t *testing.T) {
	ts := buildtracker.NewTokenService(testSigningKey, time.Hour, "")
	token, _, err := ts.Sign(&buildtracker.Account{ID: "u1"}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ts.VerifyToken(ctx, token)
	assert.ErrorIs(t, err, context.Canceled)
}
