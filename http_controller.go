package buildtracker

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")
	app.Post(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.post")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	return controller
}

type AuthControllerRoutes struct {
	Login         string
	Logout        string
	Register      string
	PasswordReset string
	AfterLogin    string
}

type AuthControllerViews struct {
	Login         string
	Register      string
	PasswordReset string
}

type AuthController struct {
	Logger       Logger
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Session      *RouteSession
	ErrorHandler router.ErrorHandler
	// OnSignUp runs after a successful registration, e.g. to seed a profile
	OnSignUp func(ctx context.Context, account *Account, fullName string) error
}

type AuthControllerOption func(*AuthController) *AuthController

func WithAuthSession(s *RouteSession) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Session = s
		return ac
	}
}

func WithAuthLogger(l Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if l != nil {
			ac.Logger = l
		}
		return ac
	}
}

func WithOnSignUp(fn func(ctx context.Context, account *Account, fullName string) error) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.OnSignUp = fn
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:         "/login",
			Logout:        "/logout",
			Register:      "/register",
			PasswordReset: "/password-reset",
			AfterLogin:    "/dashboard",
		},
		Views: &AuthControllerViews{
			Login:         "login",
			Register:      "register",
			PasswordReset: "password_reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Session == nil {
		panic("Missing RouteSession in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.Session.ErrorHandler
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	if GetRouterIdentity(ctx).IsAuthenticated {
		return ctx.Redirect(a.Routes.AfterLogin, fiber.StatusFound)
	}
	return ctx.Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
		"errors": nil,
		"record": nil,
	}))
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	payload.Email = strings.TrimSpace(payload.Email)

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	if _, err := a.Session.SignIn(ctx, payload.Email, payload.Password); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Invalid email or password",
		}).Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
			"errors": map[string]string{"authentication": "Authentication Error"},
			"record": payload,
		}))
	}

	redirect := a.Session.GetRedirect(ctx, a.Routes.AfterLogin)
	a.Logger.Debug("login redirect", "path", redirect)

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Session.SignOut(ctx)
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "You have been signed out",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationCreatePayload{},
	}))
}

// RegistrationCreatePayload is the form paylaod
type RegistrationCreatePayload struct {
	FullName        string `form:"full_name" json:"full_name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		}))
	}

	payload.Email = strings.TrimSpace(payload.Email)
	payload.FullName = strings.TrimSpace(payload.FullName)

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		}))
	}

	var metadata map[string]any
	if payload.FullName != "" {
		metadata = map[string]any{"full_name": payload.FullName}
	}

	tokens, err := a.Session.SignUp(ctx, payload.Email, payload.Password, metadata)
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Registration failed",
		}).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"form": err.Error()},
		}))
	}

	if a.OnSignUp != nil && tokens.User != nil {
		if err := a.OnSignUp(ctx.Context(), tokens.User, payload.FullName); err != nil {
			a.Logger.Warn("post sign up hook failed", "user_id", tokens.User.ID, "error", err)
		}
	}

	if !tokens.HasSession() {
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Check your email to confirm your account",
		}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Successful user registration",
	}).Redirect(a.Routes.AfterLogin, fiber.StatusSeeOther)
}

func (a *AuthController) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, MergeTemplateData(ctx, router.ViewContext{
		"errors": nil,
		"sent":   false,
	}))
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// PasswordResetPost always reports success for a well formed email so the
// form can not be used to probe for accounts.
func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload.Email = strings.TrimSpace(payload.Email)

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.PasswordReset, MergeTemplateData(ctx, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
			"sent":       false,
		}))
	}

	if err := a.Session.ResetPassword(ctx, payload.Email); err != nil {
		a.Logger.Warn("password reset request failed", "error", err)
	}

	return ctx.Render(a.Views.PasswordReset, MergeTemplateData(ctx, router.ViewContext{
		"record": payload,
		"sent":   true,
	}))
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
