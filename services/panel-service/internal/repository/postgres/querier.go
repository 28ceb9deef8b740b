package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"VerificarSmsPlatform/pkg/errors"
)

// uniqueViolation код ошибки PostgreSQL для нарушения уникальности
const uniqueViolation = "23505"

// Querier подмножество pgxpool.Pool, используемое репозиториями
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// mapWriteError переводит нарушение уникальности в CONFLICT, остальное в STORE_UNAVAILABLE
func mapWriteError(err error, component string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrap(err, errors.ErrConflict, "value already in use").WithDetails(pgErr.ConstraintName)
	}
	return errors.Unavailable(err, component)
}
