package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/repository"
)

const (
	topBranches  = 5
	usageDays    = 7
	metricsHours = 24
)

// ReportService сводки по журналу отправленных кодов
type ReportService struct {
	verifications repository.VerificationRepository
	log           logger.Logger
	now           func() time.Time
}

// NewReportService создает новый экземпляр ReportService
func NewReportService(verifications repository.VerificationRepository, log logger.Logger) *ReportService {
	return &ReportService{
		verifications: verifications,
		log:           log,
		now:           time.Now,
	}
}

// WithClock подменяет источник времени
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Usage возвращает общее число отправок, топ филиалов и отправки за последние 7 дней.
// Дни без отправок присутствуют в ответе с нулем.
func (s *ReportService) Usage(ctx context.Context) (*domain.UsageStats, error) {
	now := s.now()
	today := startOfDay(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	since := today.AddDate(0, 0, -(usageDays - 1))

	counts, err := s.verifications.CountSent(ctx, monthStart, today)
	if err != nil {
		return nil, err
	}
	branches, err := s.verifications.CountByBranch(ctx, topBranches)
	if err != nil {
		return nil, err
	}
	days, err := s.verifications.CountByDay(ctx, since)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]int64, len(days))
	for _, d := range days {
		byDate[d.Day.In(now.Location()).Format(time.DateOnly)] += d.Count
	}

	stats := &domain.UsageStats{
		SentCounts: counts,
		ByBranch:   branches,
		LastDays:   make([]domain.DayCount, 0, usageDays),
	}
	if stats.ByBranch == nil {
		stats.ByBranch = []domain.BranchCount{}
	}
	for i := 0; i < usageDays; i++ {
		day := since.AddDate(0, 0, i)
		stats.LastDays = append(stats.LastDays, domain.DayCount{
			Day:   day,
			Date:  day.Format("02/01"),
			Count: byDate[day.Format(time.DateOnly)],
		})
	}

	s.log.Debug("Usage report built",
		logger.CtxField(ctx),
		logger.Int64("total", counts.Total),
		logger.Int("branches", len(branches)))
	return stats, nil
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// Metrics возвращает отправки по пользователям, долю успешных и распределение по часам за последние сутки
func (s *ReportService) Metrics(ctx context.Context) (*domain.VerificationMetrics, error) {
	byUser, err := s.verifications.CountByUser(ctx)
	if err != nil {
		return nil, err
	}
	status, err := s.verifications.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byHour, err := s.verifications.CountByHour(ctx, s.now().Add(-metricsHours*time.Hour))
	if err != nil {
		return nil, err
	}

	if byUser == nil {
		byUser = []domain.UserCount{}
	}
	if byHour == nil {
		byHour = []domain.HourCount{}
	}
	for i := range byHour {
		byHour[i].Label = fmt.Sprintf("%02d:00", byHour[i].Hour)
	}

	return &domain.VerificationMetrics{
		ByUser: byUser,
		Outcomes: domain.OutcomeRates{
			StatusCounts: status,
			SuccessRate:  percent(status.Succeeded, status.Total),
			FailureRate:  percent(status.Failed, status.Total),
		},
		ByHour: byHour,
	}, nil
}
