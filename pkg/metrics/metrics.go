package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Metrics представляет систему метрик панели
type Metrics struct {
	// HTTP метрики
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec

	// Метрики лимитера и сессий
	RateLimitDecisions *prometheus.CounterVec
	RateLimitFallback  *prometheus.CounterVec
	SessionOperations  *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	AuditEvents        *prometheus.CounterVec

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`
}

// register регистрирует коллектор; при повторной регистрации возвращает уже зарегистрированный
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// NewMetrics создает систему метрик с заданным namespace
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RequestCount: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		)),
		RequestDuration: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		)),
		ErrorsCount: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total number of HTTP errors",
			},
			[]string{"method", "endpoint", "error_type"},
		)),
		RateLimitDecisions: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Rate limit decisions by endpoint class and outcome",
			},
			[]string{"class", "outcome"},
		)),
		RateLimitFallback: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "fallback_total",
				Help:      "Checks served by the in-process counter while the store was unavailable",
			},
			[]string{"class"},
		)),
		SessionOperations: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "operations_total",
				Help:      "Session store operations by result",
			},
			[]string{"operation", "result"},
		)),
		StoreErrors: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Shared store failures by component",
			},
			[]string{"component"},
		)),
		ActiveSessions: register(prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Active sessions seen by the last admin listing",
			},
		)),
		AuditEvents: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Security audit events by type and publish result",
			},
			[]string{"type", "result"},
		)),
		Tracer: otel.Tracer(namespace),
	}
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	return promhttp.Handler()
}

// RecordDecision учитывает решение лимитера
func (m *Metrics) RecordDecision(class, outcome string) {
	m.RateLimitDecisions.WithLabelValues(class, outcome).Inc()
}

// RecordFallback учитывает проверку через локальный счетчик
func (m *Metrics) RecordFallback(class string) {
	m.RateLimitFallback.WithLabelValues(class).Inc()
}

// RecordStoreError учитывает сбой хранилища
func (m *Metrics) RecordStoreError(component string) {
	m.StoreErrors.WithLabelValues(component).Inc()
}

// RecordSessionOperation учитывает операцию с сессией
func (m *Metrics) RecordSessionOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		m.StoreErrors.WithLabelValues("session").Inc()
	}
	m.SessionOperations.WithLabelValues(operation, result).Inc()
}

// SetActiveSessions обновляет число активных сессий
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordAuditEvent учитывает публикацию события аудита
func (m *Metrics) RecordAuditEvent(eventType string, err error) {
	result := "published"
	if err != nil {
		result = "failed"
	}
	m.AuditEvents.WithLabelValues(eventType, result).Inc()
}

// Middleware создает middleware для сбора метрик.
// Должен оборачивать ServeMux напрямую, чтобы видеть r.Pattern после маршрутизации.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.Tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		r = r.WithContext(ctx)
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}

		m.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration)

		if wrapped.statusCode >= 400 {
			errorType := "client_error"
			if wrapped.statusCode >= 500 {
				errorType = "server_error"
			}
			m.ErrorsCount.WithLabelValues(r.Method, endpoint, errorType).Inc()
		}

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", endpoint),
			attribute.Int("http.status_code", wrapped.statusCode),
			attribute.Float64("http.duration", duration),
		)
	})
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InitializeOpenTelemetry устанавливает глобальный провайдер трассировки.
// Возвращает функцию остановки провайдера.
func InitializeOpenTelemetry(serviceName, version string) (func(context.Context) error, error) {
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.AlwaysSample())),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
