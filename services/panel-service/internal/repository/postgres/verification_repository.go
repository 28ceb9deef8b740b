package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

// VerificationRepository журнал отправленных кодов в PostgreSQL
type VerificationRepository struct {
	db Querier
}

// NewVerificationRepository создает новый экземпляр VerificationRepository
func NewVerificationRepository(db Querier) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Save добавляет запись и заполняет ID и время отправки
func (r *VerificationRepository) Save(ctx context.Context, v *domain.Verification) error {
	query := `INSERT INTO verificaciones
		(person_id, phone_number, merchant_code, merchant_name, verification_code, estado, error_mensaje, usuario_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id, fecha`

	err := r.db.QueryRow(ctx, query,
		v.PersonID,
		v.PhoneNumber,
		v.MerchantCode,
		v.MerchantName,
		v.VerificationCode,
		v.Status,
		v.ErrorMessage,
		v.UserID,
	).Scan(&v.ID, &v.SentAt)
	if err != nil {
		return errors.Unavailable(err, "verification")
	}
	return nil
}

// CountSent считает отправки за все время, с начала месяца и с начала дня
func (r *VerificationRepository) CountSent(ctx context.Context, monthStart, dayStart time.Time) (domain.SentCounts, error) {
	query := `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE fecha >= $1),
			COUNT(*) FILTER (WHERE fecha >= $2)
		FROM verificaciones`

	var counts domain.SentCounts
	if err := r.db.QueryRow(ctx, query, monthStart, dayStart).Scan(&counts.Total, &counts.Month, &counts.Today); err != nil {
		return domain.SentCounts{}, errors.Unavailable(err, "verification")
	}
	return counts, nil
}

// CountByBranch возвращает филиалы с наибольшим числом отправок
func (r *VerificationRepository) CountByBranch(ctx context.Context, limit int) ([]domain.BranchCount, error) {
	query := `SELECT merchant_code, COUNT(*) AS total
		FROM verificaciones
		GROUP BY merchant_code
		ORDER BY total DESC, merchant_code
		LIMIT $1`

	return collect(ctx, r.db, query, []any{limit}, func(row pgx.CollectableRow) (domain.BranchCount, error) {
		var c domain.BranchCount
		err := row.Scan(&c.Branch, &c.Total)
		return c, err
	})
}

// CountByDay считает отправки по дням начиная с since; дни без отправок не возвращаются
func (r *VerificationRepository) CountByDay(ctx context.Context, since time.Time) ([]domain.DayCount, error) {
	query := `SELECT date_trunc('day', fecha) AS dia, COUNT(*)
		FROM verificaciones
		WHERE fecha >= $1
		GROUP BY dia
		ORDER BY dia`

	return collect(ctx, r.db, query, []any{since}, func(row pgx.CollectableRow) (domain.DayCount, error) {
		var c domain.DayCount
		err := row.Scan(&c.Day, &c.Count)
		return c, err
	})
}

// CountByUser считает отправки по пользователям
func (r *VerificationRepository) CountByUser(ctx context.Context) ([]domain.UserCount, error) {
	query := `SELECT u.usuario, COUNT(v.id) AS total
		FROM verificaciones v
		JOIN usuarios u ON u.id = v.usuario_id
		GROUP BY u.usuario
		ORDER BY total DESC, u.usuario`

	return collect(ctx, r.db, query, nil, func(row pgx.CollectableRow) (domain.UserCount, error) {
		var c domain.UserCount
		err := row.Scan(&c.Username, &c.Total)
		return c, err
	})
}

// CountByStatus считает успешные и неудачные отправки
func (r *VerificationRepository) CountByStatus(ctx context.Context) (domain.StatusCounts, error) {
	query := `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE estado IN ($1, $2)),
			COUNT(*) FILTER (WHERE estado = $3)
		FROM verificaciones`

	var counts domain.StatusCounts
	err := r.db.QueryRow(ctx, query, domain.VerificationSent, domain.VerificationTest, domain.VerificationFailed).
		Scan(&counts.Total, &counts.Succeeded, &counts.Failed)
	if err != nil {
		return domain.StatusCounts{}, errors.Unavailable(err, "verification")
	}
	return counts, nil
}

// CountByHour считает отправки по часу суток начиная с since
func (r *VerificationRepository) CountByHour(ctx context.Context, since time.Time) ([]domain.HourCount, error) {
	query := `SELECT EXTRACT(HOUR FROM fecha)::int AS hora, COUNT(*)
		FROM verificaciones
		WHERE fecha >= $1
		GROUP BY hora
		ORDER BY hora`

	return collect(ctx, r.db, query, []any{since}, func(row pgx.CollectableRow) (domain.HourCount, error) {
		var c domain.HourCount
		err := row.Scan(&c.Hour, &c.Total)
		return c, err
	})
}

func collect[T any](ctx context.Context, db Querier, query string, args []any, scan pgx.RowToFunc[T]) ([]T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable(err, "verification")
	}
	result, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, errors.Unavailable(err, "verification")
	}
	return result, nil
}
