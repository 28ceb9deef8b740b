package repository

import (
	"context"
	"time"

	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

// UserRepository интерфейс для работы с пользователями панели
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id int64) error
}

// SessionRepository интерфейс для работы с сессиями
// Ошибки хранилища возвращаются как STORE_UNAVAILABLE
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) (string, error)
	Get(ctx context.Context, token string) (*domain.Session, bool, error)
	Update(ctx context.Context, token string, update domain.SessionUpdate) error
	Delete(ctx context.Context, token string) error
	ListAll(ctx context.Context) ([]domain.ActiveSession, error)
	Extend(ctx context.Context, token string) error
	DeleteByUsername(ctx context.Context, username string) (int, error)
	UpdateByUsername(ctx context.Context, username string, update domain.SessionUpdate) (int, error)
}

// VerificationRepository интерфейс для журнала отправленных кодов
type VerificationRepository interface {
	Save(ctx context.Context, verification *domain.Verification) error
	CountSent(ctx context.Context, monthStart, dayStart time.Time) (domain.SentCounts, error)
	CountByBranch(ctx context.Context, limit int) ([]domain.BranchCount, error)
	CountByDay(ctx context.Context, since time.Time) ([]domain.DayCount, error)
	CountByUser(ctx context.Context) ([]domain.UserCount, error)
	CountByStatus(ctx context.Context) (domain.StatusCounts, error)
	CountByHour(ctx context.Context, since time.Time) ([]domain.HourCount, error)
}
