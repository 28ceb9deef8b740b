package service

import (
	"context"
	"strconv"
	"strings"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/pkg/password"
	"VerificarSmsPlatform/services/panel-service/internal/repository"
)

// LoginResult результат успешного входа
type LoginResult struct {
	Token   string
	Session *domain.Session
}

// AuthService сервис аутентификации и управления сессиями
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	hasher   password.Hasher
	audit    audit.Publisher
	log      logger.Logger
}

// NewAuthService создает новый экземпляр AuthService
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	hasher password.Hasher,
	publisher audit.Publisher,
	log logger.Logger,
) *AuthService {
	if publisher == nil {
		publisher = audit.Nop{}
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		audit:    publisher,
		log:      log,
	}
}

func invalidCredentials() *errors.Error {
	return errors.New(errors.ErrInvalidCredentials, "invalid username or password")
}

// Login проверяет учетные данные и создает сессию
// Неизвестный пользователь и неверный пароль неразличимы для клиента
func (s *AuthService) Login(ctx context.Context, username, plaintext, ip string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || plaintext == "" {
		return nil, errors.New(errors.ErrValidation, "username and password are required")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.HasCode(err, errors.ErrNotFound) {
			s.log.Error("User lookup failed", logger.CtxField(ctx), logger.String("username", username), logger.Error(err))
			return nil, err
		}
		s.hasher.DummyVerify(plaintext)
		s.loginFailed(ctx, username, ip, "unknown_user")
		return nil, invalidCredentials()
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		s.loginFailed(ctx, username, ip, "wrong_password")
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, plaintext)
	}

	session := &domain.Session{
		Username: user.Username,
		Role:     user.Role,
		UserID:   user.ID,
		Email:    user.Email,
	}
	token, err := s.sessions.Create(ctx, session)
	if err != nil {
		s.log.Error("Failed to create session", logger.CtxField(ctx), logger.String("username", username), logger.Error(err))
		return nil, err
	}

	s.log.Info("User logged in",
		logger.CtxField(ctx),
		logger.String("username", user.Username),
		logger.String("role", user.Role),
		logger.String("ip", ip))
	s.audit.Publish(ctx, audit.Event{Type: audit.LoginSucceeded, Username: user.Username, IP: ip})

	return &LoginResult{Token: token, Session: session}, nil
}

// rehash переводит хэш на bcrypt с текущей стоимостью, ошибка не прерывает вход
func (s *AuthService) rehash(ctx context.Context, user *domain.User, plaintext string) {
	legacy := !password.IsBcrypt(user.PasswordHash)

	hash, err := s.hasher.Hash(plaintext)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.log.Warn("Password rehash failed", logger.CtxField(ctx), logger.String("username", user.Username), logger.Error(err))
		return
	}

	user.PasswordHash = hash
	s.log.Info("Password hash upgraded", logger.CtxField(ctx), logger.String("username", user.Username), logger.Bool("legacy", legacy))
	s.audit.Publish(ctx, audit.Event{
		Type:     audit.PasswordRehashed,
		Username: user.Username,
		Details:  map[string]string{"legacy": strconv.FormatBool(legacy)},
	})
}

func (s *AuthService) loginFailed(ctx context.Context, username, ip, reason string) {
	s.log.Warn("Login failed",
		logger.CtxField(ctx),
		logger.String("username", username),
		logger.String("ip", ip),
		logger.String("reason", reason))
	s.audit.Publish(ctx, audit.Event{
		Type:     audit.LoginFailed,
		Username: username,
		IP:       ip,
		Details:  map[string]string{"reason": reason},
	})
}

// Authenticate возвращает сессию по токену
// Ошибка хранилища трактуется как отсутствие аутентификации
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, errors.New(errors.ErrSessionNotFound, "session token is missing")
	}

	session, found, err := s.sessions.Get(ctx, token)
	if err != nil {
		s.log.Warn("Session lookup failed, treating request as unauthenticated", logger.CtxField(ctx), logger.Error(err))
		return nil, errors.Wrap(err, errors.ErrSessionNotFound, "session store unavailable")
	}
	if !found {
		return nil, errors.New(errors.ErrSessionNotFound, "session not found")
	}
	return session, nil
}

// Logout удаляет сессию
func (s *AuthService) Logout(ctx context.Context, token string, session *domain.Session) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return err
	}

	username := ""
	if session != nil {
		username = session.Username
	}
	s.log.Info("User logged out", logger.CtxField(ctx), logger.String("username", username))
	s.audit.Publish(ctx, audit.Event{Type: audit.Logout, Username: username})
	return nil
}

// ListSessions возвращает все активные сессии
func (s *AuthService) ListSessions(ctx context.Context) ([]domain.ActiveSession, error) {
	return s.sessions.ListAll(ctx)
}

// RevokeSession удаляет одну сессию по токену
func (s *AuthService) RevokeSession(ctx context.Context, actor, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return err
	}
	s.audit.Publish(ctx, audit.Event{Type: audit.SessionRevoked, Username: actor, Details: map[string]string{"scope": "token"}})
	return nil
}

// RevokeUser удаляет все сессии пользователя
func (s *AuthService) RevokeUser(ctx context.Context, actor, username string) (int, error) {
	deleted, err := s.sessions.DeleteByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	s.log.Info("User sessions revoked",
		logger.CtxField(ctx),
		logger.String("actor", actor),
		logger.String("username", username),
		logger.Int("deleted", deleted))
	s.audit.Publish(ctx, audit.Event{
		Type:     audit.SessionRevoked,
		Username: actor,
		Details:  map[string]string{"scope": "user", "target": username},
	})
	return deleted, nil
}
