package auth

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultTokenHeader carries the session token on login responses
const DefaultTokenHeader = "Jwt-Token"

// DefaultPrincipalKey is the router locals key holding the authenticated principal
const DefaultPrincipalKey = "principal"

// RegisterAuthRoutes mounts the controller on app. The protected
// middlewares guard the routes that need a session.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController, protected ...router.MiddlewareFunc) {
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost)
	app.Post(controller.Routes.PasswordResetUpdate, controller.PasswordResetExecute)
	app.Get(controller.Routes.Me, controller.Me, protected...)
}

type AuthControllerRoutes struct {
	Login               string
	PasswordReset       string
	PasswordResetUpdate string
	Me                  string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Gate         *AuthenticationGate
	Resets       *ResetTokenFlow
	Routes       *AuthControllerRoutes
	TokenHeader  string
	PrincipalKey string
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

// WithTokenHeader sets the response header carrying the session token
func WithTokenHeader(header string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if header != "" {
			c.TokenHeader = header
		}
		return c
	}
}

// WithPrincipalKey sets the locals key the protected middleware stores the principal under
func WithPrincipalKey(key string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if key != "" {
			c.PrincipalKey = key
		}
		return c
	}
}

// WithControllerDebug dumps request payloads, secrets redacted
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(gate *AuthenticationGate, resets *ResetTokenFlow, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		Gate:         gate,
		Resets:       resets,
		TokenHeader:  DefaultTokenHeader,
		PrincipalKey: DefaultPrincipalKey,
		ErrorHandler: ErrorResponse,
		Routes: &AuthControllerRoutes{
			Login:               "/login",
			PasswordReset:       "/password-reset",
			PasswordResetUpdate: "/password-reset/update",
			Me:                  "/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Gate == nil {
		panic("Missing AuthenticationGate in auth controller...")
	}

	if c.Resets == nil {
		panic("Missing ResetTokenFlow in auth controller...")
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, errMalformedBody(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("login payload", "payload", print.MaybePrettyJSON(LoginRequest{
			Username: payload.Username,
			Password: "***",
		}))
	}

	result, err := a.Gate.Login(ctx.Context(), payload.Username, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	ctx.SetHeader(a.TokenHeader, result.Token.Value)
	ctx.SetHeader(fiber.HeaderAccessControlExposeHeaders, a.TokenHeader)

	return ctx.JSON(http.StatusOK, result.Principal)
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email" query:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil || payload.Email == "" {
		payload.Email = ctx.Query("email", "")
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	handler := NewInitializePasswordResetHandler(a.Resets).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, NewHTTPResponse(http.StatusOK, "Password reset link sent successfully."))
}

// PasswordResetUpdatePayload carries the reset token and the new password
type PasswordResetUpdatePayload struct {
	Token           string `form:"token" json:"token" query:"token"`
	NewPassword     string `form:"newPassword" json:"newPassword" query:"newPassword"`
	ConfirmPassword string `form:"confirmPassword" json:"confirmPassword" query:"confirmPassword"`
}

// Validate only checks presence; matching and token checks belong to the flow
func (r PasswordResetUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	payload := new(PasswordResetUpdatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset update parse payload", "error", err)
		return a.ErrorHandler(ctx, errMalformedBody(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	handler := NewFinalizePasswordResetHandler(a.Resets).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:           payload.Token,
		Password:        payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
	}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, NewHTTPResponse(http.StatusOK, "Password updated successfully."))
}

// Me returns the principal stored by the protected route middleware
func (a *AuthController) Me(ctx router.Context) error {
	principal, ok := GetRouterPrincipal(ctx, a.PrincipalKey)
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthenticated.Clone())
	}
	return ctx.JSON(http.StatusOK, principal)
}

func errMalformedBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body").
		WithCode(goerrors.CodeBadRequest)
}
