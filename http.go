package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/classbook/classbook-auth/middleware/sessionware"
)

// RouteAuthenticator wires the authentication and authorization gates into
// HTTP routes and owns the cookie half of the credential transport.
type RouteAuthenticator struct {
	auth           *Auther
	cfg            Config
	cookieDuration time.Duration
	Logger         Logger
	ErrorHandler   func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther *Auther, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := time.Duration(normalizeTokenExpiration(cfg.GetTokenExpiration())) * time.Hour

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
	}

	a.ErrorHandler = a.MakeAPIAuthErrorHandler()

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// ContextKey is the locals key the session gate stores claims under. The
// cookie shares the same name.
func (a RouteAuthenticator) ContextKey() string {
	return a.cfg.GetContextKey()
}

// ProtectedRoute gates a route: authentication first, then role membership.
// An empty RoleSet admits any authenticated identity. The gate consults the
// session registry on every request except the configured logout route.
func (a *RouteAuthenticator) ProtectedRoute(allowed RoleSet, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.ErrorHandler
	}

	return sessionware.New(sessionware.Config{
		ErrorHandler:    errorHandler,
		ContextKey:      a.cfg.GetContextKey(),
		TokenLookup:     a.cfg.GetTokenLookup(),
		AuthScheme:      a.cfg.GetAuthScheme(),
		TokenValidator:  tokenValidatorAdapter{service: a.auth.TokenService()},
		Sessions:        a.auth.Registry(),
		LogoutRoute:     a.cfg.GetLogoutRoute(),
		AllowedRoles:    allowed.Roles(),
		ContextEnricher: enrichRequestContext,
	})
}

// Login authenticates the payload, records the session, and sets the cookie.
// The token is also returned so REST handlers can include it in the body.
func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) (string, error) {
	token, err := a.auth.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return "", err
	}

	a.setCookieToken(ctx, token, a.cookieDuration)
	return token, nil
}

// Logout revokes the session for the identity attached to the request and
// clears the cookie. A session already superseded or missing deletes cleanly.
func (a *RouteAuthenticator) Logout(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.cfg.GetContextKey())
	if !ok {
		return ErrMissingCredential
	}

	if err := a.auth.Logout(ctx.Context(), claims.Subject()); err != nil {
		a.Logger.Error("Logout error", "subject_id", claims.Subject(), "error", err)
		return err
	}

	a.cookieDel(ctx, a.cfg.GetContextKey())
	return nil
}

// RefreshCookie overwrites the transport cookie after a token re-issuance
func (a *RouteAuthenticator) RefreshCookie(ctx router.Context, token string) {
	a.setCookieToken(ctx, token, a.cookieDuration)
}

// MakeAPIAuthErrorHandler maps gate failures to JSON responses. Every
// authentication failure is a 401 with the same outward shape; the distinct
// internal kind goes to the log, never the body. Role denials are 403.
func (a *RouteAuthenticator) MakeAPIAuthErrorHandler() func(c router.Context, err error) error {
	return func(ctx router.Context, err error) error {
		richErr := a.classifyAuthError(err)

		kind := richErr.TextCode
		a.Logger.Info(
			"Request rejected by auth gate",
			"kind", kind,
			"path", ctx.OriginalURL(),
			"method", ctx.Method(),
		)

		if kind == TextCodeForbidden {
			return ctx.JSON(router.StatusForbidden, map[string]string{
				"error": "forbidden",
			})
		}

		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}
}

// classifyAuthError folds middleware sentinels and token errors into the
// module taxonomy. Registry outages are logged as infrastructure faults and
// collapse to the no-credential kind outward: fail closed, never authorize
// on an erroring store.
func (a *RouteAuthenticator) classifyAuthError(err error) *goerrors.Error {
	switch {
	case goerrors.Is(err, sessionware.ErrTokenMissing):
		return ErrMissingCredential
	case goerrors.Is(err, sessionware.ErrSessionSuperseded):
		return ErrSessionInvalidated
	case goerrors.Is(err, sessionware.ErrSessionUnavailable):
		a.Logger.Error("session registry fault during authentication", "error", err)
		return ErrMissingCredential
	case goerrors.Is(err, sessionware.ErrRoleDenied):
		return ErrForbidden
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	if IsTokenExpiredError(err) {
		return ErrTokenExpired
	}

	return ErrTokenMalformed
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: a.cookieSameSite(),
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: a.cookieSameSite(),
	})
}

func (a *RouteAuthenticator) cookieSameSite() string {
	if v := a.cfg.GetCookieSameSite(); v != "" {
		return v
	}
	return "Lax"
}

// tokenValidatorAdapter bridges the auth TokenService to the middleware's
// mirrored interface
type tokenValidatorAdapter struct {
	service TokenService
}

func (v tokenValidatorAdapter) Validate(tokenString string) (sessionware.AuthClaims, error) {
	claims, err := v.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// enrichRequestContext propagates the verified identity into the standard
// context so the CRUD layer never re-derives it
func enrichRequestContext(c context.Context, claims sessionware.AuthClaims, rawToken string) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}

	return WithRawTokenContext(WithClaimsContext(c, authClaims), rawToken)
}

var _ HTTPAuthenticator = (*RouteAuthenticator)(nil)
