package service

import (
	"context"
	"strconv"
	"strings"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/ratelimit"
	"VerificarSmsPlatform/pkg/validation"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/pkg/password"
	"VerificarSmsPlatform/services/panel-service/internal/repository"
)

var allowedRoles = []string{
	string(ratelimit.RoleAdmin),
	string(ratelimit.RoleOperator),
	string(ratelimit.RoleGuest),
}

// CreateUserRequest запрос на создание пользователя
type CreateUserRequest struct {
	Username string `json:"usuario"`
	Password string `json:"password"`
	Role     string `json:"rol"`
	Email    string `json:"email"`
}

// UpdateUserRequest изменение пользователя; пустые поля не меняются
type UpdateUserRequest struct {
	NewUsername string  `json:"nuevo_usuario"`
	Password    string  `json:"password"`
	Role        string  `json:"rol"`
	Email       *string `json:"email"`
}

// UpdateUserResult результат изменения пользователя
type UpdateUserResult struct {
	User            *domain.User
	SelfEdit        bool
	SessionsUpdated int
}

// UserService управление пользователями панели
// Изменения роли, имени и email переносятся в активные сессии пользователя
type UserService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	hasher    password.Hasher
	validator *validation.Validator
	audit     audit.Publisher
	log       logger.Logger
}

// NewUserService создает новый экземпляр UserService
func NewUserService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	hasher password.Hasher,
	publisher audit.Publisher,
	log logger.Logger,
) *UserService {
	if publisher == nil {
		publisher = audit.Nop{}
	}
	return &UserService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		validator: validation.NewValidator(),
		audit:     publisher,
		log:       log,
	}
}

func normalizeRole(role string) string {
	return string(ratelimit.ParseRole(role))
}

func (s *UserService) validateUsername(username string) error {
	return s.validator.ValidateStringLength(username, "usuario", 3, 50)
}

func (s *UserService) validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if err := s.validator.ValidateStringLength(email, "email", 3, 255); err != nil {
		return err
	}
	if !strings.Contains(email, "@") {
		return errors.New(errors.ErrValidation, "email must contain @").WithDetails("email")
	}
	return nil
}

// hash проверяет сложность пароля и возвращает bcrypt хэш
func (s *UserService) hash(plaintext string) (string, error) {
	if !s.hasher.Validate(plaintext) {
		return "", errors.New(errors.ErrValidation, "password does not meet the strength policy").WithDetails("password")
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to hash password")
	}
	return hash, nil
}

// ensureAvailable возвращает CONFLICT, если имя уже занято
func (s *UserService) ensureAvailable(ctx context.Context, username string) error {
	_, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		return errors.New(errors.ErrConflict, "username already exists").WithDetails(username)
	}
	if errors.HasCode(err, errors.ErrNotFound) {
		return nil
	}
	return err
}

// GetUser возвращает пользователя по имени
func (s *UserService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return s.users.FindByUsername(ctx, strings.TrimSpace(username))
}

// CreateUser создает пользователя с bcrypt хэшем; роль по умолчанию operador
func (s *UserService) CreateUser(ctx context.Context, actor string, req CreateUserRequest) (*domain.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Role = normalizeRole(req.Role)
	if req.Role == "" {
		req.Role = string(ratelimit.RoleOperator)
	}

	if err := s.validateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateEnum(req.Role, allowedRoles, "rol"); err != nil {
		return nil, err
	}
	if err := s.validateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, req.Username); err != nil {
		return nil, err
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Email:        req.Email,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("User created",
		logger.CtxField(ctx),
		logger.String("actor", actor),
		logger.String("username", user.Username),
		logger.String("role", user.Role))
	s.audit.Publish(ctx, audit.Event{
		Type:     audit.UserCreated,
		Username: actor,
		Details:  map[string]string{"target": user.Username, "role": user.Role},
	})
	return user, nil
}

// UpdateUser изменяет имя, пароль, роль и email пользователя.
// Пароль перехэшируется только если отличается от текущего.
func (s *UserService) UpdateUser(ctx context.Context, actor, username string, req UpdateUserRequest) (*UpdateUserResult, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	previous := *user

	var changes domain.SessionUpdate
	if name := strings.TrimSpace(req.NewUsername); name != "" && name != user.Username {
		if err := s.validateUsername(name); err != nil {
			return nil, err
		}
		if err := s.ensureAvailable(ctx, name); err != nil {
			return nil, err
		}
		user.Username = name
		changes.Username = &user.Username
	}

	passwordChanged := false
	if req.Password != "" && !s.hasher.Verify(req.Password, user.PasswordHash) {
		hash, err := s.hash(req.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
		passwordChanged = true
	}

	if role := normalizeRole(req.Role); role != "" && role != user.Role {
		if err := s.validator.ValidateEnum(role, allowedRoles, "rol"); err != nil {
			return nil, err
		}
		user.Role = role
		changes.Role = &user.Role
	}

	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != user.Email {
			if err := s.validateEmail(email); err != nil {
				return nil, err
			}
			user.Email = email
			changes.Email = &user.Email
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	result := &UpdateUserResult{User: user, SelfEdit: strings.EqualFold(actor, previous.Username)}
	if changes.Username != nil || changes.Role != nil || changes.Email != nil {
		// Повтор того же изменения идемпотентен, поэтому ошибка хранилища возвращается клиенту
		updated, err := s.sessions.UpdateByUsername(ctx, previous.Username, changes)
		if err != nil {
			s.log.Error("Failed to propagate user change to sessions",
				logger.CtxField(ctx),
				logger.String("username", previous.Username),
				logger.Error(err))
			return nil, err
		}
		result.SessionsUpdated = updated
	}

	s.log.Info("User updated",
		logger.CtxField(ctx),
		logger.String("actor", actor),
		logger.String("username", previous.Username),
		logger.String("new_username", user.Username),
		logger.String("role", user.Role),
		logger.Bool("password_changed", passwordChanged),
		logger.Int("sessions_updated", result.SessionsUpdated))
	s.audit.Publish(ctx, audit.Event{
		Type:     audit.UserUpdated,
		Username: actor,
		Details: map[string]string{
			"target":           previous.Username,
			"new_username":     user.Username,
			"role":             user.Role,
			"password_changed": strconv.FormatBool(passwordChanged),
		},
	})
	return result, nil
}

// DeleteUser удаляет пользователя и все его сессии.
// Администратор не может удалить собственного пользователя.
func (s *UserService) DeleteUser(ctx context.Context, actor, username string) (int, error) {
	username = strings.TrimSpace(username)
	if strings.EqualFold(actor, username) {
		return 0, errors.New(errors.ErrForbidden, "cannot delete the user of the active session").WithDetails(username)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return 0, err
	}

	revoked, err := s.sessions.DeleteByUsername(ctx, user.Username)
	if err != nil {
		s.log.Error("User deleted but sessions were not revoked",
			logger.CtxField(ctx),
			logger.String("username", user.Username),
			logger.Error(err))
		return 0, err
	}

	s.log.Info("User deleted",
		logger.CtxField(ctx),
		logger.String("actor", actor),
		logger.String("username", user.Username),
		logger.Int("sessions_revoked", revoked))
	s.audit.Publish(ctx, audit.Event{
		Type:     audit.UserDeleted,
		Username: actor,
		Details:  map[string]string{"target": user.Username, "sessions": strconv.Itoa(revoked)},
	})
	return revoked, nil
}
