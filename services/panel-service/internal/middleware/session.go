package middleware

import (
	"context"
	"net/http"
	"strings"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/ratelimit"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

// Authenticator разрешает токен в сессию
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
}

// TokenFromRequest читает токен из cookie или заголовка Authorization: Bearer
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// SessionMiddleware добавляет сессию в контекст, если токен действителен.
// Недействительный токен или сбой хранилища дают анонимный запрос.
func SessionMiddleware(auth Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token != "" {
				if session, err := auth.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(WithSession(r.Context(), token, session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession отклоняет запросы без сессии
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := SessionFromContext(r.Context()); !ok {
			errors.WriteHTTP(w, errors.New(errors.ErrUnauthorized, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin отклоняет запросы без роли admin
func RequireAdmin(next http.Handler) http.Handler {
	return RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _, _ := SessionFromContext(r.Context())
		if ratelimit.ParseRole(session.Role) != ratelimit.RoleAdmin {
			errors.WriteHTTP(w, errors.New(errors.ErrForbidden, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}
