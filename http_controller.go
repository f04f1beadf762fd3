package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

type Middleware interface {
	ProtectedRoute(allowed RoleSet, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// RegisterAuthRoutes mounts the identity endpoints. Login and register are
// public; logout and profile mutations run behind the session gate. The
// logout route is registered at the same path the gate treats as its
// cross-check exemption.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	gate := controller.Auther.ProtectedRoute(NewRoleSet(), nil)

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")

	app.Post(controller.Routes.Register, controller.RegisterPost).
		SetName("auth.register")

	app.Post(controller.Routes.Logout, controller.LogoutPost, gate).
		SetName("auth.logout")

	app.Put(controller.Routes.Username, controller.UsernamePut, gate).
		SetName("auth.username")
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Register string
	Username string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auther       HTTPAuthenticator
	Identity     Authenticator
	ErrorHandler router.ErrorHandler
	// ContextKey is the locals key the session gate stores claims under.
	// It must match the gate's configured key or claim reads come up empty.
	ContextKey string
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:    "/auth/login",
			Logout:   "/auth/logout",
			Register: "/auth/register",
			Username: "/auth/profile/username",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Identity == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.ContextKey == "" {
		if keyer, ok := c.Auther.(interface{ ContextKey() string }); ok {
			c.ContextKey = keyer.ContextKey()
		}
	}

	return c
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithRepository sets the repository manager
func WithRepository(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

// WithHTTPAuthenticator sets the HTTP transport authenticator
func WithHTTPAuthenticator(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

// WithIdentityAuthenticator sets the core authenticator used for re-issuance
func WithIdentityAuthenticator(identity Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Identity = identity
		return c
	}
}

// WithControllerContextKey overrides the locals key claims are read from
func WithControllerContextKey(key string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if key != "" {
			c.ContextKey = key
		}
		return c
	}
}

// WithControllerRoutes overrides the default route paths
func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			validation.Length(1, 100),
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		// never log the payload itself, it carries the password
		a.Logger.Debug("login attempt: %s", payload.Identifier)
	}

	token, err := a.Auther.Login(ctx, payload)
	if err != nil {
		a.Logger.Error("login rejected", "identifier", payload.Identifier, "error", err)
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"token": token,
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	if err := a.Auther.Logout(ctx); err != nil {
		a.Logger.Error("logout error", "error", err)
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "logged_out",
	})
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Role            string `form:"role" json:"role"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(3, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Role, validation.By(ValidateRole)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Role:      payload.Role,
		Password:  payload.Password,
	}

	registerUser := RegisterUserHandler{repo: a.Repo}
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error", "error", err)
		return ctx.JSON(router.StatusConflict, map[string]string{
			"error": "registration failed",
		})
	}

	// a new account gets a session right away, same path as login
	token, err := a.Auther.Login(ctx, LoginRequest{
		Identifier: payload.Email,
		Password:   payload.Password,
	})
	if err != nil {
		a.Logger.Error("post-register login error", "error", err)
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	return ctx.JSON(router.StatusCreated, map[string]string{
		"token": token,
	})
}

// UsernameRequest carries a claim-bearing profile mutation
type UsernameRequest struct {
	Username string `form:"username" json:"username"`
}

// Validate will run validation rules
func (r UsernameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 100)),
	)
}

// UsernamePut changes the username and, because the username is baked into
// token claims, re-issues the token and overwrites the session slot. The
// response carries the replacement token; the cookie is refreshed in place.
func (a *AuthController) UsernamePut(ctx router.Context) error {
	payload := new(UsernameRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("username parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	claims, ok := GetRouterClaims(ctx, a.ContextKey)
	if !ok {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	var res *ChangeUsernameResponse
	req := ChangeUsernameMessage{
		UserID:   claims.Subject(),
		Username: payload.Username,
		OnResponse: func(resp *ChangeUsernameResponse) {
			res = resp
		},
	}

	changeUsername := ChangeUsernameHandler{repo: a.Repo, identity: a.Identity}
	if err := changeUsername.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("username change error", "error", err)
		return ctx.JSON(router.StatusConflict, map[string]string{
			"error": "username change failed",
		})
	}

	if a.Debug {
		a.Logger.Debug("username change response: %s", print.MaybePrettyJSON(res))
	}

	if refresher, ok := a.Auther.(interface {
		RefreshCookie(c router.Context, token string)
	}); ok && res != nil {
		refresher.RefreshCookie(ctx, res.Token)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"username": res.Username,
		"token":    res.Token,
	})
}

func defaultErrHandler(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]string{
		"error": "invalid request payload",
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors for JSON output
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validation.Errors); ok {
		for field, fieldErr := range ve {
			out[field] = fieldErr.Error()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}

// ValidateStringEquals builds a rule asserting the value matches str
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values do not match")
		}
		return nil
	}
}

// ValidateRole accepts an empty role (defaults to learner) or a known role
func ValidateRole(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := ParseRole(s); err != nil {
		return fmt.Errorf("role must be one of %v", KnownRoles())
	}
	return nil
}

// ValidatePhoneNumber builds a rule that parses the value as a phone number
// in the given default region
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return err
		}
		if !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}
