package service_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/pkg/password"
	"VerificarSmsPlatform/services/panel-service/internal/service"
)

type userFixture struct {
	service  *service.UserService
	users    *MockUserRepository
	sessions *MockSessionRepository
	hasher   *password.BcryptHasher
	audit    *capturePublisher
}

func setupUserService() *userFixture {
	f := &userFixture{
		users:    &MockUserRepository{},
		sessions: &MockSessionRepository{},
		hasher:   password.NewBcryptHasher(bcrypt.MinCost),
		audit:    &capturePublisher{},
	}
	f.service = service.NewUserService(f.users, f.sessions, f.hasher, f.audit, logger.NewNop())
	return f
}

func notFound() error {
	return errors.New(errors.ErrNotFound, "user not found")
}

func TestUserService_CreateUser(t *testing.T) {
	f := setupUserService()
	ctx := context.Background()

	f.users.On("FindByUsername", ctx, "carla").Return(nil, notFound())
	f.users.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Username == "carla" && u.Role == "operador" && password.IsBcrypt(u.PasswordHash)
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.User).ID = 12
	}).Return(nil)

	user, err := f.service.CreateUser(ctx, "admin", service.CreateUserRequest{
		Username: " carla ",
		Password: "Sucursal2024",
		Email:    "carla@verificar.com.ar",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), user.ID)
	assert.Equal(t, "operador", user.Role)
	assert.True(t, f.hasher.Verify("Sucursal2024", user.PasswordHash))
	assert.Equal(t, []string{audit.UserCreated}, f.audit.types())
	f.users.AssertExpectations(t)
}

func TestUserService_CreateUser_Rejected(t *testing.T) {
	testCases := []struct {
		name  string
		req   service.CreateUserRequest
		code  errors.ErrorCode
		field string
	}{
		{"short username", service.CreateUserRequest{Username: "ab", Password: "Sucursal2024"}, errors.ErrValidation, "usuario"},
		{"unknown role", service.CreateUserRequest{Username: "carla", Password: "Sucursal2024", Role: "root"}, errors.ErrValidation, "rol"},
		{"bad email", service.CreateUserRequest{Username: "carla", Password: "Sucursal2024", Email: "carla"}, errors.ErrValidation, "email"},
		{"weak password", service.CreateUserRequest{Username: "carla", Password: "clave"}, errors.ErrValidation, "password"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupUserService()
			f.users.On("FindByUsername", mock.Anything, "carla").Return(nil, notFound()).Maybe()

			_, err := f.service.CreateUser(context.Background(), "admin", tc.req)
			customErr, ok := errors.As(err)
			require.True(t, ok, "expected *errors.Error, got %v", err)
			assert.Equal(t, tc.code, customErr.Code)
			assert.Equal(t, tc.field, customErr.Details)
			f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestUserService_CreateUser_Duplicate(t *testing.T) {
	f := setupUserService()
	ctx := context.Background()

	f.users.On("FindByUsername", ctx, "ana").Return(&domain.User{ID: 1, Username: "ana"}, nil)

	_, err := f.service.CreateUser(ctx, "admin", service.CreateUserRequest{Username: "ana", Password: "Sucursal2024"})
	assert.True(t, errors.HasCode(err, errors.ErrConflict))
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUserService_UpdateUser_PropagatesToSessions(t *testing.T) {
	f := setupUserService()
	ctx := context.Background()

	hash, err := f.hasher.Hash("Operador1")
	require.NoError(t, err)
	f.users.On("FindByUsername", ctx, "ana").Return(&domain.User{ID: 7, Username: "ana", PasswordHash: hash, Role: "operador"}, nil)
	f.users.On("FindByUsername", ctx, "ana.gomez").Return(nil, notFound())
	f.users.On("Update", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == 7 && u.Username == "ana.gomez" && u.Role == "admin" && u.PasswordHash == hash
	})).Return(nil)
	f.sessions.On("UpdateByUsername", ctx, "ana", mock.MatchedBy(func(u domain.SessionUpdate) bool {
		return u.Username != nil && *u.Username == "ana.gomez" &&
			u.Role != nil && *u.Role == "admin" && u.Email == nil
	})).Return(2, nil)

	result, err := f.service.UpdateUser(ctx, "admin", "ana", service.UpdateUserRequest{
		NewUsername: "ana.gomez",
		Password:    "Operador1",
		Role:        "Admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SessionsUpdated)
	assert.False(t, result.SelfEdit)
	assert.Equal(t, []string{audit.UserUpdated}, f.audit.types())
	f.users.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
}

func TestUserService_UpdateUser_PasswordOnly(t *testing.T) {
	f := setupUserService()
	ctx := context.Background()

	hash, err := f.hasher.Hash("Operador1")
	require.NoError(t, err)
	f.users.On("FindByUsername", ctx, "ana").Return(&domain.User{ID: 7, Username: "ana", PasswordHash: hash, Role: "operador"}, nil)

	var stored string
	f.users.On("Update", ctx, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.User).PasswordHash
	}).Return(nil)

	result, err := f.service.UpdateUser(ctx, "ana", "ana", service.UpdateUserRequest{Password: "NuevaClave9"})
	require.NoError(t, err)
	assert.True(t, result.SelfEdit)
	assert.True(t, f.hasher.Verify("NuevaClave9", stored))
	f.sessions.AssertNotCalled(t, "UpdateByUsername", mock.Anything, mock.Anything, mock.Anything)
}

func TestUserService_UpdateUser_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		f := setupUserService()
		f.users.On("FindByUsername", ctx, "nadie").Return(nil, notFound())

		_, err := f.service.UpdateUser(ctx, "admin", "nadie", service.UpdateUserRequest{Role: "guest"})
		assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	})

	t.Run("name taken", func(t *testing.T) {
		f := setupUserService()
		f.users.On("FindByUsername", ctx, "ana").Return(&domain.User{ID: 7, Username: "ana", Role: "operador"}, nil)
		f.users.On("FindByUsername", ctx, "bob").Return(&domain.User{ID: 8, Username: "bob"}, nil)

		_, err := f.service.UpdateUser(ctx, "admin", "ana", service.UpdateUserRequest{NewUsername: "bob"})
		assert.True(t, errors.HasCode(err, errors.ErrConflict))
		f.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("session store down", func(t *testing.T) {
		f := setupUserService()
		f.users.On("FindByUsername", ctx, "ana").Return(&domain.User{ID: 7, Username: "ana", Role: "operador"}, nil)
		f.users.On("Update", ctx, mock.Anything).Return(nil)
		f.sessions.On("UpdateByUsername", ctx, "ana", mock.Anything).
			Return(0, errors.Unavailable(stderrors.New("connection refused"), "session"))

		_, err := f.service.UpdateUser(ctx, "admin", "ana", service.UpdateUserRequest{Role: "guest"})
		assert.True(t, errors.HasCode(err, errors.ErrStoreUnavailable))
		assert.Empty(t, f.audit.types())
	})
}

func TestUserService_DeleteUser(t *testing.T) {
	f := setupUserService()
	ctx := context.Background()

	f.users.On("FindByUsername", ctx, "bob").Return(&domain.User{ID: 8, Username: "bob"}, nil)
	f.users.On("Delete", ctx, int64(8)).Return(nil)
	f.sessions.On("DeleteByUsername", ctx, "bob").Return(3, nil)

	revoked, err := f.service.DeleteUser(ctx, "admin", "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, revoked)
	assert.Equal(t, []string{audit.UserDeleted}, f.audit.types())
	f.users.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
}

func TestUserService_DeleteUser_Self(t *testing.T) {
	f := setupUserService()

	_, err := f.service.DeleteUser(context.Background(), "Admin", "admin")
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))
	f.users.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.sessions.AssertNotCalled(t, "DeleteByUsername", mock.Anything, mock.Anything)
}
