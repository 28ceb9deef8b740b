package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VerificarSmsPlatform/pkg/config"
	"VerificarSmsPlatform/pkg/database"
	"VerificarSmsPlatform/pkg/health"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/metrics"
	"VerificarSmsPlatform/pkg/rabbitmq"
	"VerificarSmsPlatform/pkg/ratelimit"
	pkgredis "VerificarSmsPlatform/pkg/redis"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
	httphandler "VerificarSmsPlatform/services/panel-service/internal/handler/http"
	"VerificarSmsPlatform/services/panel-service/internal/pkg/password"
	"VerificarSmsPlatform/services/panel-service/internal/pkg/sms"
	"VerificarSmsPlatform/services/panel-service/internal/repository/postgres"
	redisrepo "VerificarSmsPlatform/services/panel-service/internal/repository/redis"
	"VerificarSmsPlatform/services/panel-service/internal/scheduler"
	"VerificarSmsPlatform/services/panel-service/internal/service"
)

const (
	serviceName = "panel-service"
	version     = "1.0.0"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	// Инициализация конфигурации
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	settings := config.NewHolder(cfg, *configPath)

	// Инициализация логгера
	appLogger, err := logger.NewLogger(cfg.Environment, cfg.Logger.Level, serviceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := appLogger.Sync(); err != nil {
			log.Printf("Error syncing logger: %v", err)
		}
	}()

	if err := run(settings, appLogger); err != nil {
		appLogger.Error("Panel service stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(settings *config.Holder, appLogger logger.Logger) error {
	cfg := settings.Current()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Трассировка и метрики
	shutdownTracing, err := metrics.InitializeOpenTelemetry(serviceName, version)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())
	metricCollector := metrics.NewMetrics("panel")

	// Redis создается один раз и передается в хранилище сессий и лимитер
	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connectCancel()

	redisClient, err := pkgredis.Connect(connectCtx, pkgredis.ConfigFrom(cfg.Redis))
	if err != nil {
		return err
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis")

	db, err := database.Connect(connectCtx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return err
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL")

	// События аудита
	var publisher audit.Publisher = audit.Nop{}
	var rabbitConn *rabbitmq.Connection
	if cfg.RabbitMQ.Enabled {
		rabbitConfig := rabbitmq.ConfigFrom(cfg.RabbitMQ)
		rabbitConn, err = rabbitmq.Connect(connectCtx, rabbitConfig)
		if err != nil {
			return err
		}
		defer rabbitConn.Close()

		rabbitPublisher := audit.NewRabbitPublisher(rabbitmq.NewProducer(rabbitConn, rabbitConfig), appLogger, metricCollector, 0)
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
		appLogger.Info("Audit events published to RabbitMQ", logger.String("exchange", rabbitConfig.Exchange))
	}

	// Лимитер
	limiterOptions, err := ratelimit.OptionsFromConfig(cfg.RateLimiting)
	if err != nil {
		return err
	}
	limiterOptions.Recorder = metricCollector
	if limiterOptions.FailOpen {
		appLogger.Warn("Rate limiter runs fail-open: counters degrade to in-process state when Redis is down")
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient.Client), limiterOptions, appLogger)

	// Репозитории и сервисы
	sessions := redisrepo.NewSessionRepository(
		redisClient.Client,
		config.Duration(cfg.Session.Duration, 8*time.Hour),
		config.Duration(cfg.Session.StoreTimeout, 2*time.Second),
		metricCollector,
	)
	users := postgres.NewUserRepository(db.Pool)
	verifications := postgres.NewVerificationRepository(db.Pool)

	hasher := password.NewBcryptHasher(cfg.Session.BcryptCost)
	authService := service.NewAuthService(users, sessions, hasher, publisher, appLogger)
	userService := service.NewUserService(users, sessions, hasher, publisher, appLogger)
	reportService := service.NewReportService(verifications, appLogger)
	gateway := sms.NewHTTPGateway(nil, func() config.SMSConfig { return settings.Current().SMS })
	smsService := service.NewSMSService(settings, gateway, sms.NewSimulatedGateway(appLogger), verifications, publisher, appLogger)

	// Health checks
	healthChecker := health.NewCompositeChecker(version, 2*time.Second).
		Register("redis", redisClient.HealthCheck).
		Register("postgres", db.HealthCheck)
	if rabbitConn != nil {
		healthChecker.Register("rabbitmq", rabbitConn.HealthCheck)
	}

	// Служебные задачи
	jobs := scheduler.NewScheduler(appLogger, 10*time.Second)
	if err := jobs.AddJob("active-sessions", "@every 1m", scheduler.SessionGaugeJob(sessions, metricCollector)); err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop(context.Background())

	handler := httphandler.NewHandler(httphandler.Dependencies{
		Auth:     authService,
		SMS:      smsService,
		Users:    userService,
		Reports:  reportService,
		Limits:   limiter,
		Redis:    redisClient,
		Settings: settings,
		Health:   healthChecker,
		Metrics:  metricCollector,
		Audit:    publisher,
		Logger:   appLogger,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting panel server",
			logger.String("addr", server.Addr),
			logger.Bool("rate_limiting", cfg.RateLimiting.Enabled),
			logger.Bool("sms_simulated", cfg.SMS.Simulated))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", logger.Error(err))
		return err
	}

	appLogger.Info("Server stopped")
	return nil
}
