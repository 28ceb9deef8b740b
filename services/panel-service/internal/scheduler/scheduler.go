package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

// Job периодическая задача панели
type Job func(ctx context.Context) error

// Scheduler выполняет служебные задачи по cron расписанию
type Scheduler struct {
	cron    *cron.Cron
	logger  logger.Logger
	timeout time.Duration

	mu        sync.Mutex
	isRunning bool
	entryIDs  map[string]cron.EntryID
}

// NewScheduler создает планировщик; timeout ограничивает одно выполнение задачи
func NewScheduler(log logger.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		logger:   log,
		timeout:  timeout,
		entryIDs: make(map[string]cron.EntryID),
	}
}

// AddJob регистрирует задачу под именем. Повторная регистрация заменяет расписание.
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s (%s): %w", name, spec, err)
	}
	if previous, ok := s.entryIDs[name]; ok {
		s.cron.Remove(previous)
	}
	s.entryIDs[name] = entryID

	s.logger.Debug("Scheduled job", logger.String("job", name), logger.String("spec", spec))
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Warn("Scheduled job failed",
			logger.String("job", name),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err))
		return
	}
	s.logger.Debug("Scheduled job completed",
		logger.String("job", name),
		logger.Duration("duration", time.Since(start)))
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.cron.Start()
	s.isRunning = true
	s.logger.Info("Scheduler started", logger.Int("jobs", len(s.entryIDs)))
}

// Stop останавливает планировщик и ждет завершения текущих задач, но не дольше ctx
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out", logger.Error(ctx.Err()))
	}
}

// SessionLister источник активных сессий
type SessionLister interface {
	ListAll(ctx context.Context) ([]domain.ActiveSession, error)
}

// SessionGauge принимает число активных сессий
type SessionGauge interface {
	SetActiveSessions(count int)
}

// SessionGaugeJob обновляет метрику активных сессий
func SessionGaugeJob(sessions SessionLister, gauge SessionGauge) Job {
	return func(ctx context.Context) error {
		active, err := sessions.ListAll(ctx)
		if err != nil {
			return err
		}
		gauge.SetActiveSessions(len(active))
		return nil
	}
}
