package middleware

import (
	"context"
	"net/http"
	"strconv"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/ratelimit"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
)

// Checker проверка лимитов, реализуется ratelimit.Limiter
type Checker interface {
	Check(ctx context.Context, subject ratelimit.Subject, classes ...ratelimit.EndpointClass) (ratelimit.Decision, error)
}

// RateLimiter проверяет лимиты классов эндпоинта для субъекта запроса
type RateLimiter struct {
	checker Checker
	proxy   ratelimit.ProxyPolicy
	enabled bool
	audit   audit.Publisher
	log     logger.Logger
}

// NewRateLimiter создает middleware фабрику лимитов
func NewRateLimiter(checker Checker, proxy ratelimit.ProxyPolicy, enabled bool, publisher audit.Publisher, log logger.Logger) *RateLimiter {
	if publisher == nil {
		publisher = audit.Nop{}
	}
	return &RateLimiter{checker: checker, proxy: proxy, enabled: enabled, audit: publisher, log: log}
}

// Subject строит субъекта: user:<name> для сессии, иначе ip:<addr>
func (l *RateLimiter) Subject(r *http.Request) ratelimit.Subject {
	username, role := "", ratelimit.Role("")
	if session, _, ok := SessionFromContext(r.Context()); ok {
		username = session.Username
		role = ratelimit.ParseRole(session.Role)
	}

	subject := ratelimit.SubjectFor(r, l.proxy, username, role)
	if client, ok := ClientFromContext(r.Context()); ok {
		subject.IP = client.IP
		if username == "" {
			subject.Identifier = ratelimit.IPIdentifier(client.IP)
		}
		subject.Whitelisted = client.Whitelisted
	}
	return subject
}

// Limit возвращает middleware, проверяющий классы по порядку
func (l *RateLimiter) Limit(classes ...ratelimit.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !l.enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := l.Subject(r)

			decision, err := l.checker.Check(r.Context(), subject, classes...)
			if err != nil {
				l.log.Error("Rate limit check failed",
					logger.CtxField(r.Context()),
					logger.String("identifier", subject.Identifier),
					logger.Error(err))
				errors.WriteHTTP(w, err)
				return
			}

			if decision.Outcome != ratelimit.Allowed {
				l.audit.Publish(r.Context(), audit.Event{
					Type:     audit.RateLimitExceeded,
					Username: subject.Identifier,
					IP:       subject.IP,
					Details:  map[string]string{"class": string(decision.Class), "outcome": decision.Outcome.String()},
				})
				errors.WriteHTTP(w, decision.Err())
				return
			}

			if !decision.Whitelisted {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}
