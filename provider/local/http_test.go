package local

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-buildtracker"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandlerUserWithBearer(t *testing.T) {
	backend, _ := newTestBackend(t)
	h := &handlers{backend: backend}

	tokens, err := backend.SignUp(context.Background(), "ada@example.com", "secret1", nil)
	require.NoError(t, err)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("GetString", "Authorization", "").Return("Bearer " + tokens.AccessToken)

	var account *buildtracker.Account
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		account = args.Get(1).(*buildtracker.Account)
	}).Return(nil).Once()

	require.NoError(t, h.user(ctx))
	require.NotNil(t, account)
	assert.Equal(t, tokens.User.ID, account.ID)
}

func TestHandlerUserRejectsMissingToken(t *testing.T) {
	backend, _ := newTestBackend(t)
	h := &handlers{backend: backend}

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("GetString", "Authorization", "").Return("")
	ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil).Once()

	require.NoError(t, h.user(ctx))
	ctx.AssertExpectations(t)
}

func TestWriteBackendError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"credentials", buildtracker.ErrInvalidCredentials.Clone(), http.StatusBadRequest, "invalid_credentials"},
		{"refresh", invalidRefreshToken("revoked"), http.StatusBadRequest, "invalid_refresh_token"},
		{"conflict", ErrEmailTaken.Clone(), http.StatusUnprocessableEntity, "user_already_exists"},
		{"validation", goerrors.New("bad email", goerrors.CategoryValidation), http.StatusUnprocessableEntity, "validation_failed"},
		{"plain", assert.AnError, http.StatusInternalServerError, "unexpected_failure"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := router.NewMockContext()

			var body map[string]any
			ctx.On("JSON", tc.status, mock.Anything).Run(func(args mock.Arguments) {
				body = args.Get(1).(map[string]any)
			}).Return(nil).Once()

			require.NoError(t, writeBackendError(ctx, tc.err, http.StatusBadRequest))
			assert.Equal(t, tc.code, body["error"])
			assert.Equal(t, tc.status, body["code"])
		})
	}
}

func TestBearerToken(t *testing.T) {
	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("bearer abc ")
	assert.Equal(t, "abc", bearerToken(ctx))

	basic := router.NewMockContext()
	basic.On("GetString", "Authorization", "").Return("Basic xyz")
	assert.Equal(t, "", bearerToken(basic))
}
