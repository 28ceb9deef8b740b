package middleware

import (
	"net/http"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/ratelimit"
	"VerificarSmsPlatform/services/panel-service/internal/audit"
)

// AccessChecker списки доступа лимитера
type AccessChecker interface {
	IsBlacklisted(values ...string) bool
	IsWhitelisted(values ...string) bool
}

// IPFilterMiddleware определяет адрес клиента, отклоняет адреса из черного списка
// и помечает адреса из белого списка. Черный список проверяется первым.
func IPFilterMiddleware(access AccessChecker, proxy ratelimit.ProxyPolicy, publisher audit.Publisher, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxy.ClientIP(r)

			if access.IsBlacklisted(ip) {
				log.Warn("Request from blacklisted IP",
					logger.CtxField(r.Context()),
					logger.String("ip", ip),
					logger.String("path", r.URL.Path))
				publisher.Publish(r.Context(), audit.Event{Type: audit.IPBlocked, IP: ip})
				errors.WriteHTTP(w, errors.New(errors.ErrIPBlocked, "ip is blacklisted"))
				return
			}

			client := Client{IP: ip, Whitelisted: access.IsWhitelisted(ip)}
			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
		})
	}
}
