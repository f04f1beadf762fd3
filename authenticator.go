package auth

import (
	"context"
	"reflect"
	"time"
)

// Auther orchestrates credential verification, token issuance, and session
// registration. It owns the login/logout/re-issuance protocol; per-request
// validation lives in middleware/sessionware.
type Auther struct {
	provider        IdentityProvider
	registry        SessionRegistry
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
	tokenService    TokenService
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, registry SessionRegistry, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:        provider,
		registry:        registry,
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: normalizeTokenExpiration(opts.GetTokenExpiration()),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		tokenService:    tokenService,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	// Update the TokenService logger as well
	s.tokenService = NewTokenService(
		s.signingKey,
		s.tokenExpiration,
		s.issuer,
		s.audience,
		logger,
	)
	return s
}

// WithTokenService sets a custom token service
func (s *Auther) WithTokenService(service TokenService) *Auther {
	if service != nil {
		s.tokenService = service
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Registry returns the session registry used by this Authenticator
func (s *Auther) Registry() SessionRegistry {
	return s.registry
}

// TokenTTL is the validity window tokens and session records share
func (s *Auther) TokenTTL() time.Duration {
	return time.Duration(s.tokenExpiration) * time.Hour
}

// Login verifies the credential, mints a token, and records it as the single
// authoritative session for the subject. A successful login from a second
// device overwrites the first device's registry slot, which is what
// invalidates the older token.
func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		return "", ErrIdentityNotFound
	}

	return s.issueAndRegister(ctx, identity)
}

// Logout revokes the subject's session. It is idempotent: deleting a session
// that no longer exists, or was already superseded by a newer login, is fine.
func (s *Auther) Logout(ctx context.Context, subjectID string) error {
	if err := s.registry.Delete(ctx, subjectID); err != nil {
		s.logger.Error("Logout session delete error", "subject_id", subjectID, "error", err)
		return err
	}
	return nil
}

// Reissue mints a fresh token for an already-verified identity and overwrites
// the registry slot. Use it after a claim-bearing profile field changes:
// claims are a cached projection of the user record, and overwriting the
// session is how that cache is invalidated. Tokens issued before the call
// fail their next registry cross-check.
func (s *Auther) Reissue(ctx context.Context, identity Identity) (string, error) {
	if identity == nil || reflect.ValueOf(identity).IsZero() {
		return "", ErrIdentityNotFound
	}
	return s.issueAndRegister(ctx, identity)
}

// ClaimsFromToken validates a raw token and returns its claims. Signature and
// expiry only; it does not consult the session registry.
func (s *Auther) ClaimsFromToken(raw string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("ClaimsFromToken validation failed", "error", err)
		return nil, err
	}
	return claims, nil
}

// IdentityFromClaims loads the current user record behind a set of claims
func (s *Auther) IdentityFromClaims(ctx context.Context, claims AuthClaims) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Error("IdentityFromClaims find identity by identifier: %s", err)
		return nil, err
	}
	return identity, nil
}

func (s *Auther) issueAndRegister(ctx context.Context, identity Identity) (string, error) {
	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.logger.Error("token generation failed", "subject_id", identity.ID(), "error", err)
		return "", err
	}

	if err := s.registry.Put(ctx, identity.ID(), token, s.TokenTTL()); err != nil {
		s.logger.Error("session registration failed", "subject_id", identity.ID(), "error", err)
		return "", err
	}

	return token, nil
}

var _ Authenticator = (*Auther)(nil)
