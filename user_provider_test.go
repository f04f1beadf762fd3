package auth_test

import (
	"context"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/classbook/classbook-auth"
)

// MockUserTracker implements auth.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSucccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func testUser(t *testing.T, password string) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	return &auth.User{
		ID:           uuid.New(),
		Role:         auth.RoleLearner,
		Status:       auth.UserStatusActive,
		Username:     "amara",
		Email:        "amara@example.com",
		PasswordHash: hash,
	}
}

func TestVerifyIdentity(t *testing.T) {
	ctx := context.Background()
	password := "password1234"
	user := testUser(t, password)

	t.Run("valid credentials", func(t *testing.T) {
		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackSucccessfulLogin", ctx, user).Return(nil).Once()

		provider := auth.NewUserProvider(store)

		identity, err := provider.VerifyIdentity(ctx, user.Email, password)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), identity.ID())
		assert.Equal(t, "amara", identity.Username())
		assert.Equal(t, "learner", identity.Role())

		store.AssertExpectations(t)
	})

	t.Run("unknown identifier reads like a bad password", func(t *testing.T) {
		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "ghost@example.com").
			Return(nil, repository.NewRecordNotFound()).Once()

		provider := auth.NewUserProvider(store)

		_, err := provider.VerifyIdentity(ctx, "ghost@example.com", password)
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})

	t.Run("wrong password tracks the attempt", func(t *testing.T) {
		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackAttemptedLogin", ctx, user).Return(nil).Once()

		provider := auth.NewUserProvider(store)

		_, err := provider.VerifyIdentity(ctx, user.Email, "not-the-password")
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)

		store.AssertExpectations(t)
	})

	t.Run("too many recent attempts", func(t *testing.T) {
		now := time.Now()
		throttled := testUser(t, password)
		throttled.LoginAttempts = auth.MaxLoginAttempts + 1
		throttled.LoginAttemptAt = &now

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, throttled.Email).Return(throttled, nil).Once()

		provider := auth.NewUserProvider(store)

		_, err := provider.VerifyIdentity(ctx, throttled.Email, password)
		assert.ErrorIs(t, err, auth.ErrTooManyLoginAttempts)
	})

	t.Run("cool down elapsed resets the counter", func(t *testing.T) {
		longAgo := time.Now().Add(-auth.CoolDownPeriod - time.Hour)
		cooled := testUser(t, password)
		cooled.LoginAttempts = auth.MaxLoginAttempts + 3
		cooled.LoginAttemptAt = &longAgo

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, cooled.Email).Return(cooled, nil).Once()
		store.On("TrackSucccessfulLogin", ctx, cooled).Return(nil).Once()

		provider := auth.NewUserProvider(store)

		_, err := provider.VerifyIdentity(ctx, cooled.Email, password)
		assert.NoError(t, err)
	})

	t.Run("suspended account cannot log in", func(t *testing.T) {
		suspended := testUser(t, password)
		suspended.Status = auth.UserStatusSuspended

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, suspended.Email).Return(suspended, nil).Once()

		provider := auth.NewUserProvider(store)

		_, err := provider.VerifyIdentity(ctx, suspended.Email, password)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "suspended")
	})

	t.Run("unknown role fails verification", func(t *testing.T) {
		odd := testUser(t, password)
		odd.Role = auth.UserRole("superuser")

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, odd.Email).Return(odd, nil).Once()
		store.On("TrackSucccessfulLogin", ctx, odd).Return(nil).Once()

		provider := auth.NewUserProvider(store)

		_, err := provider.VerifyIdentity(ctx, odd.Email, password)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "role")
	})
}

func TestFindIdentityByIdentifier(t *testing.T) {
	ctx := context.Background()
	user := testUser(t, "password1234")

	store := new(MockUserTracker)
	store.On("GetByIdentifier", ctx, user.ID.String()).Return(user, nil).Once()

	provider := auth.NewUserProvider(store)

	identity, err := provider.FindIdentityByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.Email, identity.Email())
}
