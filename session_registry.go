package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionKeyPrefix namespaces registry keys in the shared store
const DefaultSessionKeyPrefix = "session:"

// DefaultRegistryTimeout bounds every registry round-trip. A lookup that
// exceeds it is treated by callers as "no valid session", never as a grant.
const DefaultRegistryTimeout = 3 * time.Second

// RedisSessionRegistry is the shared, TTL-backed map of subject id to the
// currently valid token, reachable by every request-handling process. It is
// the enforcement point for "only the most recent login is valid": Put is an
// unconditional overwrite, so a login from a second device silently
// supersedes the first device's session.
//
// The registry is injected into the gates that need it; construct it at
// startup with Connect and dispose of it with Close. It is never package
// state.
type RedisSessionRegistry struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	logger  Logger
}

// Verify interface compliance
var _ SessionRegistry = (*RedisSessionRegistry)(nil)

// SessionRegistryOption configures a RedisSessionRegistry
type SessionRegistryOption func(*RedisSessionRegistry)

// WithSessionKeyPrefix overrides the key namespace
func WithSessionKeyPrefix(prefix string) SessionRegistryOption {
	return func(r *RedisSessionRegistry) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRegistryTimeout overrides the per-call timeout
func WithRegistryTimeout(timeout time.Duration) SessionRegistryOption {
	return func(r *RedisSessionRegistry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithRegistryLogger sets the logger used for infrastructure faults
func WithRegistryLogger(logger Logger) SessionRegistryOption {
	return func(r *RedisSessionRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewSessionRegistry creates a registry backed by the given Redis client.
func NewSessionRegistry(client redis.UniversalClient, opts ...SessionRegistryOption) *RedisSessionRegistry {
	r := &RedisSessionRegistry{
		client:  client,
		prefix:  DefaultSessionKeyPrefix,
		timeout: DefaultRegistryTimeout,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Connect verifies the backing store is reachable. Call it at startup and
// fail the process if it errors; a gate without a registry can only deny.
func (r *RedisSessionRegistry) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return goerrors.Wrap(err, ErrRegistryUnavailable.Category, ErrRegistryUnavailable.Message).
			WithTextCode(ErrRegistryUnavailable.TextCode)
	}
	return nil
}

// Close releases the underlying client
func (r *RedisSessionRegistry) Close() error {
	return r.client.Close()
}

// Put records token as the single authoritative session for subjectID,
// silently superseding whatever was there. Last writer wins; concurrent
// logins for the same subject need no coordination because the slot never
// requires a read-modify-write.
func (r *RedisSessionRegistry) Put(ctx context.Context, subjectID, token string, ttl time.Duration) error {
	if subjectID == "" || token == "" {
		return ErrNoEmptyString
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(subjectID), token, ttl).Err(); err != nil {
		r.logger.Error("session registry put failed", "subject_id", subjectID, "error", err)
		return r.unavailable(err)
	}

	return nil
}

// Get returns the currently valid token for subjectID, or the empty string
// when no session exists. Missing, expired, and deleted are indistinguishable
// on purpose. Transport faults return ErrRegistryUnavailable so the gate
// can fail closed.
func (r *RedisSessionRegistry) Get(ctx context.Context, subjectID string) (string, error) {
	if subjectID == "" {
		return "", ErrNoEmptyString
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	token, err := r.client.Get(ctx, r.key(subjectID)).Result()
	if err != nil {
		if goerrors.Is(err, redis.Nil) {
			return "", nil
		}
		r.logger.Error("session registry get failed", "subject_id", subjectID, "error", err)
		return "", r.unavailable(err)
	}

	return token, nil
}

// Delete revokes the session for subjectID. Deleting a session that no
// longer exists is not an error.
func (r *RedisSessionRegistry) Delete(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return ErrNoEmptyString
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(subjectID)).Err(); err != nil {
		r.logger.Error("session registry delete failed", "subject_id", subjectID, "error", err)
		return r.unavailable(err)
	}

	return nil
}

func (r *RedisSessionRegistry) key(subjectID string) string {
	return r.prefix + subjectID
}

func (r *RedisSessionRegistry) unavailable(err error) error {
	return goerrors.Wrap(err, ErrRegistryUnavailable.Category, ErrRegistryUnavailable.Message).
		WithTextCode(ErrRegistryUnavailable.TextCode).
		WithCode(goerrors.CodeUnauthorized)
}
