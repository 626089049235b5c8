package local

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-buildtracker"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RegisterRoutes serves the identity service endpoints used by the REST
// client under prefix, usually "/auth/v1"
func RegisterRoutes[T any](app router.Router[T], backend *Backend, prefix string) {
	h := &handlers{backend: backend}
	prefix = strings.TrimRight(prefix, "/")

	app.Post(prefix+"/signup", h.signUp).SetName("local-auth.signup")
	app.Post(prefix+"/token", h.token).SetName("local-auth.token")
	app.Get(prefix+"/user", h.user).SetName("local-auth.user")
	app.Post(prefix+"/logout", h.logout).SetName("local-auth.logout")
	app.Post(prefix+"/recover", h.recover).SetName("local-auth.recover")
}

type handlers struct {
	backend *Backend
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

type tokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type recoverRequest struct {
	Email string `json:"email"`
}

func (h *handlers) signUp(ctx router.Context) error {
	req := new(signUpRequest)
	if err := ctx.Bind(req); err != nil {
		return writeError(ctx, http.StatusBadRequest, "bad_json", err.Error())
	}

	tokens, err := h.backend.SignUp(ctx.Context(), req.Email, req.Password, req.Data)
	if err != nil {
		return writeBackendError(ctx, err, http.StatusUnprocessableEntity)
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (h *handlers) token(ctx router.Context) error {
	req := new(tokenRequest)
	if err := ctx.Bind(req); err != nil {
		return writeError(ctx, http.StatusBadRequest, "bad_json", err.Error())
	}

	var (
		tokens *buildtracker.Tokens
		err    error
	)

	switch grant := ctx.Query("grant_type", ""); grant {
	case "password":
		tokens, err = h.backend.SignInWithPassword(ctx.Context(), req.Email, req.Password)
	case "refresh_token":
		tokens, err = h.backend.Refresh(ctx.Context(), req.RefreshToken)
	default:
		return writeError(ctx, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type: "+grant)
	}

	if err != nil {
		return writeBackendError(ctx, err, http.StatusBadRequest)
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (h *handlers) user(ctx router.Context) error {
	account, err := h.backend.GetUser(ctx.Context(), bearerToken(ctx))
	if err != nil {
		return writeBackendError(ctx, err, http.StatusUnauthorized)
	}
	return ctx.JSON(http.StatusOK, account)
}

func (h *handlers) logout(ctx router.Context) error {
	if err := h.backend.SignOut(ctx.Context(), bearerToken(ctx)); err != nil {
		return writeBackendError(ctx, err, http.StatusUnauthorized)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (h *handlers) recover(ctx router.Context) error {
	req := new(recoverRequest)
	if err := ctx.Bind(req); err != nil {
		return writeError(ctx, http.StatusBadRequest, "bad_json", err.Error())
	}

	if err := h.backend.ResetPasswordForEmail(ctx.Context(), req.Email, ctx.Query("redirect_to", "")); err != nil {
		return writeBackendError(ctx, err, http.StatusBadRequest)
	}
	return ctx.JSON(http.StatusOK, map[string]any{})
}

func bearerToken(ctx router.Context) string {
	auth := ctx.GetString("Authorization", "")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// writeBackendError answers with the hosted service error shape, authStatus
// is used for rejected credentials and tokens
func writeBackendError(ctx router.Context, err error, authStatus int) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return writeError(ctx, http.StatusInternalServerError, "unexpected_failure", "unexpected failure")
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		code := "invalid_grant"
		if richErr.TextCode != "" {
			code = strings.ToLower(richErr.TextCode)
		}
		return writeError(ctx, authStatus, code, richErr.Message)
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return writeError(ctx, http.StatusUnprocessableEntity, "validation_failed", richErr.Message)
	case goerrors.CategoryConflict:
		return writeError(ctx, http.StatusUnprocessableEntity, "user_already_exists", richErr.Message)
	default:
		return writeError(ctx, http.StatusInternalServerError, "unexpected_failure", richErr.Message)
	}
}

func writeError(ctx router.Context, status int, code, msg string) error {
	return ctx.JSON(status, map[string]any{
		"code":              status,
		"error_code":        code,
		"error":             code,
		"error_description": msg,
		"msg":               msg,
	})
}
