package middleware

import (
	"net/http"
	"runtime/debug"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
)

// RecoveryMiddleware перехватывает панику обработчика и отвечает 500
func RecoveryMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					log.Error("Panic in handler",
						logger.CtxField(r.Context()),
						logger.Any("panic", p),
						logger.String("stack", string(debug.Stack())))
					errors.WriteHTTP(w, errors.New(errors.ErrInternal, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
