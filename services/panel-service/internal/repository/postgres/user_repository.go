package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

// UserRepository реализация репозитория пользователей для PostgreSQL
type UserRepository struct {
	db Querier
}

// NewUserRepository создает новый экземпляр UserRepository
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername возвращает пользователя по имени
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, usuario, hash_password, rol, COALESCE(email, '')
		FROM usuarios WHERE usuario = $1`

	var user domain.User
	err := r.db.QueryRow(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Email,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrNotFound, "user not found")
		}
		return nil, errors.Unavailable(err, "user")
	}

	return &user, nil
}

// UpdatePasswordHash заменяет хэш пароля, используется при миграции на bcrypt
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	query := `UPDATE usuarios SET hash_password = $2 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, hash)
	if err != nil {
		return errors.Unavailable(err, "user")
	}
	if result.RowsAffected() == 0 {
		return errors.New(errors.ErrNotFound, "user not found")
	}
	return nil
}

// Create добавляет пользователя и заполняет его ID
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO usuarios (usuario, hash_password, rol, email)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id`

	err := r.db.QueryRow(ctx, query, user.Username, user.PasswordHash, user.Role, user.Email).Scan(&user.ID)
	if err != nil {
		return mapWriteError(err, "user")
	}
	return nil
}

// Update сохраняет имя, хэш, роль и email пользователя
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `UPDATE usuarios
		SET usuario = $2, hash_password = $3, rol = $4, email = NULLIF($5, '')
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, user.ID, user.Username, user.PasswordHash, user.Role, user.Email)
	if err != nil {
		return mapWriteError(err, "user")
	}
	if result.RowsAffected() == 0 {
		return errors.New(errors.ErrNotFound, "user not found")
	}
	return nil
}

// Delete удаляет пользователя; журнал отправок удаляется каскадно
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM usuarios WHERE id = $1`, id)
	if err != nil {
		return errors.Unavailable(err, "user")
	}
	if result.RowsAffected() == 0 {
		return errors.New(errors.ErrNotFound, "user not found")
	}
	return nil
}
