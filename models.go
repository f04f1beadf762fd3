package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus tracks the lifecycle state of an account
type UserStatus = string

const (
	// UserStatusActive is a normal, authenticatable account
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended is a staff-suspended account; login is blocked
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusDisabled is a permanently closed account
	UserStatusDisabled UserStatus = "disabled"
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status         UserStatus     `bun:"status,notnull,default:'active'" json:"status,omitempty"`
	FirstName      string         `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	ProfilePicture string         `bun:"profile_picture" json:"profile_picture,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string         `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the status field for records created before the
// status column existed
func (u *User) EnsureStatus() {
	if u != nil && u.Status == "" {
		u.Status = UserStatusActive
	}
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}
	record.EnsureStatus()
	if record.Role == "" {
		record.Role = RoleLearner
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// statusAuthError maps a non-authenticatable status to the error login
// should surface
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive, "":
		return nil
	case UserStatusSuspended:
		return goerrors.New("account is suspended", goerrors.CategoryAuth).
			WithTextCode("ACCOUNT_SUSPENDED").
			WithCode(goerrors.CodeUnauthorized)
	case UserStatusDisabled:
		return goerrors.New("account is disabled", goerrors.CategoryAuth).
			WithTextCode("ACCOUNT_DISABLED").
			WithCode(goerrors.CodeUnauthorized)
	default:
		return goerrors.New("account status does not permit login", goerrors.CategoryAuth).
			WithTextCode("ACCOUNT_STATUS_UNKNOWN").
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"status": status})
	}
}
