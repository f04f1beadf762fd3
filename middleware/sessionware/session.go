// Package sessionware is the request-pipeline gate for the application:
// it extracts a bearer credential, verifies signature and expiry, cross-checks
// the token against the session registry, and enforces role membership. It is
// read-only and idempotent; a request that fails any step is terminal, the
// gate never retries.
package sessionware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-router"
)

var defaultTokenLookup = "cookie:classbook_session,header:" + router.HeaderAuthorization

var (
	// ErrTokenMissing is returned when no credential is presented at all
	ErrTokenMissing = errors.New("no credential presented")
	// ErrSessionSuperseded is returned for tokens that verify but no longer
	// match the registry entry for their subject
	ErrSessionSuperseded = errors.New("session superseded or revoked")
	// ErrSessionUnavailable is returned when the registry cannot be reached;
	// the gate fails closed
	ErrSessionUnavailable = errors.New("session registry unreachable")
	// ErrRoleDenied is returned after authentication when the identity role
	// is not in the allowed set
	ErrRoleDenied = errors.New("insufficient role for this operation")
)

// TokenValidator interface for validating tokens without import cycles.
// This mirrors the TokenService.Validate method from the auth package.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// AuthClaims interface for structured claims without import cycles.
// This mirrors the AuthClaims interface from the auth package.
type AuthClaims interface {
	Subject() string
	UserID() string
	Username() string
	Email() string
	Role() string
	HasRole(role string) bool
}

// SessionChecker looks up the currently valid token for a subject. This
// mirrors the read half of the auth package SessionRegistry. Absence is an
// empty string, never an error; errors mean the registry is unreachable.
type SessionChecker interface {
	Get(ctx context.Context, subjectID string) (string, error)
}

// ValidationListener is invoked after a token has been validated but before
// the session cross-check and authorization run.
type ValidationListener func(ctx router.Context, claims AuthClaims) error

type Config struct {
	// Filter skips the gate entirely when it returns true
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler

	// ContextKey is the router locals key claims are stored under
	ContextKey string
	// RawTokenKey is the router locals key the presented token is stored under
	RawTokenKey string
	// TokenLookup is a comma-separated list of extraction sources, e.g.
	// "cookie:classbook_session,header:Authorization". Sources are tried in
	// order and the first hit wins, so listing the cookie first gives it
	// precedence over the header.
	TokenLookup string
	AuthScheme  string

	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// Sessions is required; it is the cross-check that makes revocation
	// immediate instead of wait-for-expiry
	Sessions SessionChecker

	// LogoutRoute is the one path that skips the session cross-check, so a
	// user whose session was already evicted by a newer login can still
	// complete logout with their superseded token. Claims are trusted as-is
	// on this path.
	LogoutRoute string

	// AllowedRoles gates the request by role after authentication. Empty
	// means any authenticated identity is admitted.
	AllowedRoles []string

	// ContextEnricher propagates claims and the raw token to the standard
	// Go context after all checks pass.
	ContextEnricher func(c context.Context, claims AuthClaims, rawToken string) context.Context

	// ValidationListeners are invoked after token validation succeeds.
	ValidationListeners []ValidationListener
}

func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := ExtractRawTokenFromContext(ctx, cfg.getExtractors())
			if raw == "" {
				if err == nil {
					err = ErrTokenMissing
				}
				return cfg.ErrorHandler(ctx, err)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.runValidationListeners(ctx, claims); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if !cfg.isLogoutRequest(ctx) {
				if err := crossCheckSession(ctx, cfg, claims, raw); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			if err := checkAllowedRoles(claims, cfg.AllowedRoles); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, claims)
			ctx.Locals(cfg.RawTokenKey, raw)

			if cfg.ContextEnricher != nil {
				stdCtx := cfg.ContextEnricher(ctx.Context(), claims, raw)
				ctx.SetContext(stdCtx)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// crossCheckSession compares the presented token against the registry slot
// for its subject. The token is only authoritative while it matches exactly;
// a missing slot, an expired slot, and a slot overwritten by a newer login
// are all the same outcome. Registry faults deny, never admit.
func crossCheckSession(ctx router.Context, cfg Config, claims AuthClaims, raw string) error {
	current, err := cfg.Sessions.Get(ctx.Context(), claims.Subject())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	if current == "" || current != raw {
		return ErrSessionSuperseded
	}

	return nil
}

func checkAllowedRoles(claims AuthClaims, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	for _, role := range allowed {
		if claims.HasRole(role) {
			return nil
		}
	}

	return ErrRoleDenied
}

func (cfg *Config) isLogoutRequest(ctx router.Context) bool {
	if cfg.LogoutRoute == "" {
		return false
	}
	return requestPath(ctx) == cfg.LogoutRoute
}

func requestPath(ctx router.Context) string {
	url := ctx.OriginalURL()
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return url
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []TokenExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if errors.Is(err, ErrRoleDenied) {
				return c.Status(router.StatusForbidden).SendString(ErrRoleDenied.Error())
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired session")
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: session middleware configuration: TokenValidator is required.")
	}

	if cfg.Sessions == nil {
		panic("AUTH: session middleware configuration: Sessions registry is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.RawTokenKey == "" {
		cfg.RawTokenKey = cfg.ContextKey + "_token"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []TokenExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx router.Context, claims AuthClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// cookie:classbook_session,header:Authorization,query:auth_token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		// header:Authorization
		parts := strings.Split(strings.TrimSpace(rootPart), ":")

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, tokenFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(parts[1]))
		}
	}

	return extractors
}

type TokenExtractor func(c router.Context) (string, error)

// tokenFromHeader returns a function that extracts the token from the request header.
func tokenFromHeader(header string, authScheme string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l == 0 {
			return "", ErrTokenMissing
		}
		authScheme = strings.TrimSpace(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissing
	}
}

// tokenFromQuery returns a function that extracts the token from the query string.
func tokenFromQuery(param string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}

// tokenFromCookie returns a function that extracts the token from the named cookie.
func tokenFromCookie(name string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}
