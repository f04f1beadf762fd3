package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeNoCredential identifies requests that carried no token at all.
	TextCodeNoCredential = "AUTH_NO_CREDENTIAL"
	// TextCodeTokenMalformed identifies structurally invalid or badly signed tokens.
	TextCodeTokenMalformed = "AUTH_TOKEN_MALFORMED"
	// TextCodeTokenExpired identifies tokens whose validity window elapsed.
	TextCodeTokenExpired = "AUTH_TOKEN_EXPIRED"
	// TextCodeSessionInvalidated identifies cryptographically valid tokens that
	// are no longer the authoritative session for their subject.
	TextCodeSessionInvalidated = "AUTH_SESSION_INVALIDATED"
	// TextCodeForbidden identifies authenticated identities with an insufficient role.
	TextCodeForbidden = "AUTH_FORBIDDEN"
	// TextCodeRegistryUnavailable identifies session registry infrastructure faults.
	TextCodeRegistryUnavailable = "AUTH_REGISTRY_UNAVAILABLE"
)

// ErrMissingCredential is returned when a request presents no token.
var ErrMissingCredential = goerrors.New("no credential presented", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoCredential).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail structural or signature checks.
var ErrTokenMalformed = goerrors.New("token is malformed or has an invalid signature", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when the token validity window has elapsed.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionInvalidated is returned when a token verifies and has not expired
// but no longer matches the registry entry for its subject: the user logged in
// elsewhere, logged out, or the server re-issued the token after a profile change.
var ErrSessionInvalidated = goerrors.New("session superseded or revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalidated).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned after successful authentication when the identity
// role is not in the allowed set for the operation.
var ErrForbidden = goerrors.New("insufficient role for this operation", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrRegistryUnavailable is an infrastructure fault: the session registry could
// not be reached within its timeout. Callers must fail closed, it collapses to
// an unauthenticated response outward.
var ErrRegistryUnavailable = goerrors.New("session registry unreachable", goerrors.CategoryInternal).
	WithTextCode(TextCodeRegistryUnavailable).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode("IDENTITY_NOT_FOUND")

// ErrMismatchedHashAndPassword is returned when credential verification fails
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when a user is inside the cool down period
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode("TOO_MANY_LOGIN_ATTEMPTS")

// ErrNoEmptyString is returned when a required string input was empty
var ErrNoEmptyString = goerrors.New("value should not be an empty string", goerrors.CategoryValidation)

// AuthFailureKind returns the internal failure kind (text code) for an
// authentication or authorization error, so telemetry never has to guess the
// reason from message text. Returns false for errors outside the taxonomy.
func AuthFailureKind(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return "", false
	}

	switch richErr.TextCode {
	case TextCodeNoCredential,
		TextCodeTokenMalformed,
		TextCodeTokenExpired,
		TextCodeSessionInvalidated,
		TextCodeForbidden,
		TextCodeRegistryUnavailable:
		return richErr.TextCode, true
	}

	return "", false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for malformed or badly signed tokens
func IsMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

// IsSessionInvalidatedError will check for superseded or revoked sessions
func IsSessionInvalidatedError(err error) bool {
	return hasTextCode(err, TextCodeSessionInvalidated)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
