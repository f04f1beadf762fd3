package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// UserRole is the user's role. The application knows exactly two roles:
// learners (students enrolled in classes) and staff (teachers and
// administrators). Anything else is rejected at construction time.
type UserRole string

const (
	// RoleLearner is a student account (i.e. view classes, submit assignments)
	RoleLearner UserRole = "learner"
	// RoleStaff is a teacher account (i.e. manage classes, modules, assignments)
	RoleStaff UserRole = "staff"
)

// ParseRole parses a string into a UserRole, failing for unknown values.
func ParseRole(roleStr string) (UserRole, error) {
	role := UserRole(roleStr)
	if !role.IsValid() {
		return "", goerrors.New("unknown user role", goerrors.CategoryValidation).
			WithTextCode("INVALID_ROLE").
			WithMetadata(map[string]any{"role": roleStr})
	}
	return role, nil
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleLearner, RoleStaff:
		return true
	default:
		return false
	}
}

// KnownRoles returns all predefined roles
func KnownRoles() []UserRole {
	return []UserRole{RoleLearner, RoleStaff}
}

// RoleSet is the set of roles allowed to perform a protected operation.
// The empty set admits any authenticated identity.
type RoleSet map[UserRole]struct{}

// NewRoleSet builds a RoleSet from the given roles
func NewRoleSet(roles ...UserRole) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Allows reports whether the given role is admitted by this set
func (s RoleSet) Allows(role UserRole) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[role]
	return ok
}

// Roles returns the members of the set as strings, for middleware configs
func (s RoleSet) Roles() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	return out
}

// Authorize gates an authenticated identity by role. It is a pure function of
// the claims role and the allowed set; it must only run after authentication
// produced valid claims.
func Authorize(claims AuthClaims, allowed RoleSet) error {
	if claims == nil {
		panic("auth: Authorize called without authenticated claims")
	}

	role, err := ParseRole(claims.Role())
	if err != nil {
		return ErrForbidden
	}

	if !allowed.Allows(role) {
		return ErrForbidden
	}

	return nil
}
