package service_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
	"VerificarSmsPlatform/services/panel-service/internal/service"
)

func TestReportService_Usage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 3, 15, 30, 0, 0, time.UTC)
	repo := &MockVerificationRepository{}
	svc := service.NewReportService(repo, logger.NewNop()).WithClock(func() time.Time { return now })

	repo.On("CountSent", ctx,
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)).
		Return(domain.SentCounts{Total: 120, Month: 9, Today: 4}, nil)
	repo.On("CountByBranch", ctx, 5).Return([]domain.BranchCount{{Branch: "SUC01", Total: 70}}, nil)
	repo.On("CountByDay", ctx, time.Date(2026, time.February, 25, 0, 0, 0, 0, time.UTC)).
		Return([]domain.DayCount{
			{Day: time.Date(2026, time.February, 26, 0, 0, 0, 0, time.UTC), Count: 2},
			{Day: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), Count: 4},
		}, nil)

	stats, err := svc.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), stats.Total)
	assert.Equal(t, int64(4), stats.Today)
	assert.Len(t, stats.ByBranch, 1)

	require.Len(t, stats.LastDays, 7)
	assert.Equal(t, "25/02", stats.LastDays[0].Date)
	assert.Equal(t, int64(0), stats.LastDays[0].Count)
	assert.Equal(t, "26/02", stats.LastDays[1].Date)
	assert.Equal(t, int64(2), stats.LastDays[1].Count)
	assert.Equal(t, "03/03", stats.LastDays[6].Date)
	assert.Equal(t, int64(4), stats.LastDays[6].Count)
	repo.AssertExpectations(t)
}

func TestReportService_Usage_StoreError(t *testing.T) {
	ctx := context.Background()
	repo := &MockVerificationRepository{}
	svc := service.NewReportService(repo, logger.NewNop())

	repo.On("CountSent", ctx, mock.Anything, mock.Anything).
		Return(domain.SentCounts{}, errors.Unavailable(stderrors.New("timeout"), "verification"))

	_, err := svc.Usage(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrStoreUnavailable))
	repo.AssertNotCalled(t, "CountByBranch", mock.Anything, mock.Anything)
}

func TestReportService_Metrics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 3, 15, 30, 0, 0, time.UTC)
	repo := &MockVerificationRepository{}
	svc := service.NewReportService(repo, logger.NewNop()).WithClock(func() time.Time { return now })

	repo.On("CountByUser", ctx).Return([]domain.UserCount{{Username: "ana", Total: 5}}, nil)
	repo.On("CountByStatus", ctx).Return(domain.StatusCounts{Succeeded: 2, Failed: 1, Total: 3}, nil)
	repo.On("CountByHour", ctx, now.Add(-24*time.Hour)).Return([]domain.HourCount{{Hour: 9, Total: 3}}, nil)

	metrics, err := svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 66.67, metrics.Outcomes.SuccessRate)
	assert.Equal(t, 33.33, metrics.Outcomes.FailureRate)
	require.Len(t, metrics.ByHour, 1)
	assert.Equal(t, "09:00", metrics.ByHour[0].Label)
	assert.Equal(t, "ana", metrics.ByUser[0].Username)
}

func TestReportService_Metrics_Empty(t *testing.T) {
	ctx := context.Background()
	repo := &MockVerificationRepository{}
	svc := service.NewReportService(repo, logger.NewNop())

	repo.On("CountByUser", ctx).Return(nil, nil)
	repo.On("CountByStatus", ctx).Return(domain.StatusCounts{}, nil)
	repo.On("CountByHour", ctx, mock.Anything).Return(nil, nil)

	metrics, err := svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, metrics.Outcomes.SuccessRate)
	assert.NotNil(t, metrics.ByUser)
	assert.NotNil(t, metrics.ByHour)
}
