package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

// KeyPrefix префикс ключей сессий
const KeyPrefix = "session:"

const (
	// tokenBytes 256 бит случайности на токен
	tokenBytes   = 32
	scanBatch    = 100
	createTries  = 3
	mutateTries  = 5
	componentKey = "session"
)

// Recorder принимает метрики операций с сессиями
type Recorder interface {
	RecordSessionOperation(operation string, err error)
	RecordStoreError(component string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionOperation(string, error) {}
func (nopRecorder) RecordStoreError(string)              {}

// SessionRepository реализация репозитория сессий для Redis
// Каждая сессия хранится как JSON под ключом session:<token> с TTL, продлеваемым при чтении
type SessionRepository struct {
	client   *redis.Client
	ttl      time.Duration
	timeout  time.Duration
	recorder Recorder
	now      func() time.Time
}

// NewSessionRepository создает новый экземпляр SessionRepository
func NewSessionRepository(client *redis.Client, ttl, timeout time.Duration, recorder Recorder) *SessionRepository {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &SessionRepository{
		client:   client,
		ttl:      ttl,
		timeout:  timeout,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TTL возвращает время жизни сессии
func (r *SessionRepository) TTL() time.Duration {
	return r.ttl
}

func sessionKey(token string) string {
	return KeyPrefix + token
}

// NewToken генерирует непрозрачный токен сессии: 32 случайных байта в base64 URL без паддинга
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (r *SessionRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// finish фиксирует метрики и переводит ошибки Redis в STORE_UNAVAILABLE
func (r *SessionRepository) finish(operation string, err error) error {
	if err != nil {
		appErr, ok := errors.As(err)
		if !ok {
			err = errors.Unavailable(err, componentKey)
			r.recorder.RecordStoreError(componentKey)
		} else if appErr.Code == errors.ErrStoreUnavailable || appErr.Code == errors.ErrInternal {
			r.recorder.RecordStoreError(componentKey)
		}
	}
	r.recorder.RecordSessionOperation(operation, err)
	return err
}

// Create сохраняет сессию в Redis и возвращает новый токен
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.LastActivity = now

	data, err := json.Marshal(session)
	if err != nil {
		return "", r.finish("create", errors.Wrap(err, errors.ErrInternal, "failed to marshal session"))
	}

	for i := 0; i < createTries; i++ {
		token, err := NewToken()
		if err != nil {
			return "", r.finish("create", errors.Wrap(err, errors.ErrInternal, "failed to generate token"))
		}

		// NX: существующий токен никогда не перезаписывается
		err = r.client.SetArgs(ctx, sessionKey(token), data, redis.SetArgs{Mode: "NX", TTL: r.ttl}).Err()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", r.finish("create", fmt.Errorf("failed to set session in Redis: %w", err))
		}
		return token, r.finish("create", nil)
	}

	return "", r.finish("create", errors.New(errors.ErrConflict, "session token collision"))
}

// mutate читает сессию, применяет fn и записывает результат в одной WATCH/MULTI транзакции.
// Параллельная запись в тот же ключ отменяет транзакцию, и попытка повторяется с новым чтением.
// XX: удаленная параллельно сессия не воскрешается.
func (r *SessionRepository) mutate(ctx context.Context, token string, fn func(session *domain.Session)) (*domain.Session, bool, error) {
	key := sessionKey(token)

	var (
		result *domain.Session
		found  bool
	)
	txf := func(tx *redis.Tx) error {
		result, found = nil, false

		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		var session domain.Session
		if err := json.Unmarshal(data, &session); err != nil {
			// Поврежденная запись не дает доступа
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}

		fn(&session)
		payload, err := json.Marshal(&session)
		if err != nil {
			return errors.Wrap(err, errors.ErrInternal, "failed to marshal session")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, redis.SetArgs{Mode: "XX", TTL: r.ttl})
			return nil
		})
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		result, found = &session, true
		return nil
	}

	for i := 0; i < mutateTries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if _, ok := errors.As(err); ok {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("failed to refresh session: %w", err)
		}
		return result, found, nil
	}
	return nil, false, errors.New(errors.ErrConflict, "session modified concurrently").WithDetails(token)
}

func (r *SessionRepository) touch(session *domain.Session) {
	session.LastActivity = r.now()
}

// Get возвращает сессию по токену и продлевает ее TTL
func (r *SessionRepository) Get(ctx context.Context, token string) (*domain.Session, bool, error) {
	if token == "" {
		return nil, false, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	session, found, err := r.mutate(ctx, token, r.touch)
	if err != nil || !found {
		return nil, false, r.finish("get", err)
	}
	return session, true, r.finish("get", nil)
}

func (r *SessionRepository) apply(update domain.SessionUpdate) func(*domain.Session) {
	return func(session *domain.Session) {
		if update.Username != nil {
			session.Username = *update.Username
		}
		if update.Role != nil {
			session.Role = *update.Role
		}
		if update.Email != nil {
			session.Email = *update.Email
		}
		r.touch(session)
	}
}

// Update объединяет изменения с существующей сессией, отсутствующая сессия не создается
func (r *SessionRepository) Update(ctx context.Context, token string, update domain.SessionUpdate) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, _, err := r.mutate(ctx, token, r.apply(update))
	return r.finish("update", err)
}

// UpdateByUsername применяет изменение ко всем сессиям пользователя и возвращает их количество
func (r *SessionRepository) UpdateByUsername(ctx context.Context, username string, update domain.SessionUpdate) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sessions, err := r.listAll(ctx)
	if err != nil {
		return 0, r.finish("update_user", err)
	}

	updated := 0
	for _, active := range sessions {
		if active.Username != username {
			continue
		}
		_, found, err := r.mutate(ctx, active.Token, r.apply(update))
		if err != nil {
			return updated, r.finish("update_user", err)
		}
		if found {
			updated++
		}
	}
	return updated, r.finish("update_user", nil)
}

// Delete удаляет сессию, повторное удаление не является ошибкой
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return r.finish("delete", fmt.Errorf("failed to delete session: %w", err))
	}
	return r.finish("delete", nil)
}

// Extend продлевает TTL без чтения сессии
func (r *SessionRepository) Extend(ctx context.Context, token string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	extended, err := r.client.Expire(ctx, sessionKey(token), r.ttl).Result()
	if err != nil {
		return r.finish("extend", fmt.Errorf("failed to extend session: %w", err))
	}
	if !extended {
		return r.finish("extend", errors.New(errors.ErrSessionNotFound, "session not found").WithDetails(token))
	}
	return r.finish("extend", nil)
}

// ListAll возвращает все активные сессии с оставшимся временем жизни
func (r *SessionRepository) ListAll(ctx context.Context) ([]domain.ActiveSession, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sessions, err := r.listAll(ctx)
	return sessions, r.finish("list", err)
}

func (r *SessionRepository) listAll(ctx context.Context) ([]domain.ActiveSession, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return []domain.ActiveSession{}, nil
	}

	pipe := r.client.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		gets[i] = pipe.Get(ctx, key)
		ttls[i] = pipe.TTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	sessions := make([]domain.ActiveSession, 0, len(keys))
	for i, key := range keys {
		data, err := gets[i].Bytes()
		if err != nil {
			// истекла между SCAN и GET
			continue
		}
		var session domain.Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		ttl := ttls[i].Val()
		if ttl < 0 {
			ttl = 0
		}
		sessions = append(sessions, domain.ActiveSession{
			Session:    session,
			Token:      strings.TrimPrefix(key, KeyPrefix),
			TTLSeconds: int64(ttl / time.Second),
		})
	}
	return sessions, nil
}

// DeleteByUsername удаляет все сессии пользователя и возвращает их количество
func (r *SessionRepository) DeleteByUsername(ctx context.Context, username string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sessions, err := r.listAll(ctx)
	if err != nil {
		return 0, r.finish("revoke_user", err)
	}

	var keys []string
	for _, session := range sessions {
		if session.Username == username {
			keys = append(keys, sessionKey(session.Token))
		}
	}
	if len(keys) == 0 {
		return 0, r.finish("revoke_user", nil)
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, r.finish("revoke_user", fmt.Errorf("failed to delete user sessions: %w", err))
	}
	return int(deleted), r.finish("revoke_user", nil)
}
