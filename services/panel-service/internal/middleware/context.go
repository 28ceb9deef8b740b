package middleware

import (
	"context"

	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

type sessionKey struct{}
type clientKey struct{}

type sessionValue struct {
	token   string
	session *domain.Session
}

// Client сведения о клиенте, вычисленные фильтром IP
type Client struct {
	IP          string
	Whitelisted bool
}

// WithSession сохраняет сессию и ее токен в контексте
func WithSession(ctx context.Context, token string, session *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionValue{token: token, session: session})
}

// SessionFromContext возвращает сессию текущего запроса
func SessionFromContext(ctx context.Context) (*domain.Session, string, bool) {
	v, ok := ctx.Value(sessionKey{}).(sessionValue)
	if !ok || v.session == nil {
		return nil, "", false
	}
	return v.session, v.token, true
}

// WithClient сохраняет сведения о клиенте в контексте
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext возвращает сведения о клиенте
func ClientFromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok
}
