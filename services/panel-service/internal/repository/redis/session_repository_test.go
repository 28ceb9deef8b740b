package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/services/panel-service/internal/domain"
)

type operationLog struct {
	mu          sync.Mutex
	operations  map[string]int
	failures    map[string]int
	storeErrors int
}

func newOperationLog() *operationLog {
	return &operationLog{operations: map[string]int{}, failures: map[string]int{}}
}

func (l *operationLog) RecordSessionOperation(operation string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.operations[operation]++
	if err != nil {
		l.failures[operation]++
	}
}

func (l *operationLog) RecordStoreError(string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.storeErrors++
}

func setupRepository(t *testing.T) (*SessionRepository, *miniredis.Miniredis, *operationLog) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	recorder := newOperationLog()
	return NewSessionRepository(client, 8*time.Hour, time.Second, recorder), mr, recorder
}

func anaSession() *domain.Session {
	return &domain.Session{Username: "ana", Role: "operador", UserID: 7, Email: "ana@limite.com.ar"}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repo, mr, recorder := setupRepository(t)
	ctx := context.Background()

	token, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "=")
	assert.True(t, mr.Exists("session:"+token))
	assert.Equal(t, 8*time.Hour, mr.TTL("session:"+token))

	session, found, err := repo.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ana", session.Username)
	assert.Equal(t, "operador", session.Role)
	assert.Equal(t, int64(7), session.UserID)
	assert.False(t, session.CreatedAt.IsZero())
	assert.False(t, session.LastActivity.Before(session.CreatedAt))

	assert.Equal(t, 1, recorder.operations["create"])
	assert.Equal(t, 1, recorder.operations["get"])
}

func TestSessionRepository_TokensAreUnique(t *testing.T) {
	repo, _, _ := setupRepository(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := repo.Create(context.Background(), anaSession())
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestSessionRepository_SlidingExpiry(t *testing.T) {
	repo, mr, _ := setupRepository(t)
	ctx := context.Background()

	token, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)

	mr.FastForward(7 * time.Hour)
	_, found, err := repo.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 8*time.Hour, mr.TTL("session:"+token))

	mr.FastForward(7 * time.Hour)
	_, found, err = repo.Get(ctx, token)
	require.NoError(t, err)
	assert.True(t, found, "чтение продлевает сессию")

	mr.FastForward(8*time.Hour + time.Second)
	_, found, err = repo.Get(ctx, token)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionRepository_GetUnknownAndCorrupted(t *testing.T) {
	repo, mr, _ := setupRepository(t)
	ctx := context.Background()

	_, found, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = repo.Get(ctx, "")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, mr.Set("session:broken", "{not json"))
	_, found, err = repo.Get(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("session:broken"))
}

func TestSessionRepository_Update(t *testing.T) {
	repo, mr, _ := setupRepository(t)
	ctx := context.Background()

	token, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)

	mr.FastForward(time.Hour)
	role := "admin"
	require.NoError(t, repo.Update(ctx, token, domain.SessionUpdate{Role: &role}))
	assert.Equal(t, 8*time.Hour, mr.TTL("session:"+token))

	session, found, err := repo.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "admin", session.Role)
	assert.Equal(t, "ana@limite.com.ar", session.Email)

	require.NoError(t, repo.Update(ctx, "gone", domain.SessionUpdate{Role: &role}))
	assert.False(t, mr.Exists("session:gone"))
}

func TestSessionRepository_DeleteIsIdempotent(t *testing.T) {
	repo, mr, _ := setupRepository(t)
	ctx := context.Background()

	token, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, token))
	require.NoError(t, repo.Delete(ctx, token))
	assert.False(t, mr.Exists("session:"+token))

	_, found, err := repo.Get(ctx, token)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionRepository_Extend(t *testing.T) {
	repo, mr, _ := setupRepository(t)
	ctx := context.Background()

	token, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)

	mr.FastForward(5 * time.Hour)
	require.NoError(t, repo.Extend(ctx, token))
	assert.Equal(t, 8*time.Hour, mr.TTL("session:"+token))

	err = repo.Extend(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrSessionNotFound))
	assert.False(t, mr.Exists("session:missing"))

	mr.FastForward(8*time.Hour + time.Second)
	assert.True(t, errors.HasCode(repo.Extend(ctx, token), errors.ErrSessionNotFound))
}

// beforeWrite выполняет action один раз перед первой транзакцией с SET
type beforeWrite struct {
	fired  atomic.Bool
	action func()
}

func (h *beforeWrite) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *beforeWrite) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h *beforeWrite) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if cmd.Name() == "set" && h.fired.CompareAndSwap(false, true) {
				h.action()
				break
			}
		}
		return next(ctx, cmds)
	}
}

func TestSessionRepository_GetDoesNotOverwriteConcurrentUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	adminClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { adminClient.Close() })
	adminRepo := NewSessionRepository(adminClient, 8*time.Hour, time.Second, nil)

	token, err := adminRepo.Create(ctx, &domain.Session{Username: "carla", Role: "admin", UserID: 3})
	require.NoError(t, err)

	role := "operador"
	hook := &beforeWrite{action: func() {
		require.NoError(t, adminRepo.Update(ctx, token, domain.SessionUpdate{Role: &role}))
	}}
	readerClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { readerClient.Close() })
	readerClient.AddHook(hook)
	reader := NewSessionRepository(readerClient, 8*time.Hour, time.Second, nil)

	session, found, err := reader.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, hook.fired.Load())
	assert.Equal(t, "operador", session.Role)

	stored, found, err := adminRepo.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "operador", stored.Role)
}

func TestSessionRepository_UpdateDoesNotOverwriteConcurrentUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	adminClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { adminClient.Close() })
	adminRepo := NewSessionRepository(adminClient, 8*time.Hour, time.Second, nil)

	token, err := adminRepo.Create(ctx, anaSession())
	require.NoError(t, err)

	email := "ana.gomez@limite.com.ar"
	hook := &beforeWrite{action: func() {
		require.NoError(t, adminRepo.Update(ctx, token, domain.SessionUpdate{Email: &email}))
	}}
	otherClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { otherClient.Close() })
	otherClient.AddHook(hook)
	other := NewSessionRepository(otherClient, 8*time.Hour, time.Second, nil)

	role := "guest"
	require.NoError(t, other.Update(ctx, token, domain.SessionUpdate{Role: &role}))
	require.True(t, hook.fired.Load())

	session, found, err := adminRepo.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "guest", session.Role)
	assert.Equal(t, email, session.Email)
}

func TestSessionRepository_GetDoesNotResurrectDeletedSession(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	adminClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { adminClient.Close() })
	adminRepo := NewSessionRepository(adminClient, 8*time.Hour, time.Second, nil)

	token, err := adminRepo.Create(ctx, anaSession())
	require.NoError(t, err)

	hook := &beforeWrite{action: func() {
		require.NoError(t, adminRepo.Delete(ctx, token))
	}}
	readerClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { readerClient.Close() })
	readerClient.AddHook(hook)
	reader := NewSessionRepository(readerClient, 8*time.Hour, time.Second, nil)

	_, found, err := reader.Get(ctx, token)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("session:"+token))
}

func TestSessionRepository_UpdateByUsername(t *testing.T) {
	repo, mr, _ := setupRepository(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)
	second, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)
	bob, err := repo.Create(ctx, &domain.Session{Username: "bob", Role: "admin", UserID: 1})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	name, role := "ana.gomez", "admin"
	updated, err := repo.UpdateByUsername(ctx, "ana", domain.SessionUpdate{Username: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	for _, token := range []string{first, second} {
		session, found, err := repo.Get(ctx, token)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "ana.gomez", session.Username)
		assert.Equal(t, "admin", session.Role)
		assert.Equal(t, "ana@limite.com.ar", session.Email)
		assert.Equal(t, 8*time.Hour, mr.TTL("session:"+token))
	}

	session, _, err := repo.Get(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Username)

	updated, err = repo.UpdateByUsername(ctx, "ana", domain.SessionUpdate{Role: &role})
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestSessionRepository_ListAllAndRevokeUser(t *testing.T) {
	repo, mr, _ := setupRepository(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)
	mr.FastForward(time.Hour)
	_, err = repo.Create(ctx, anaSession())
	require.NoError(t, err)
	bob, err := repo.Create(ctx, &domain.Session{Username: "bob", Role: "admin", UserID: 1})
	require.NoError(t, err)
	require.NoError(t, mr.Set("ratelimit:login_intentos:ip:192.0.2.1", "3"))

	sessions, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	byToken := map[string]domain.ActiveSession{}
	for _, s := range sessions {
		byToken[s.Token] = s
	}
	assert.Equal(t, int64(7*3600), byToken[first].TTLSeconds)
	assert.Equal(t, int64(8*3600), byToken[bob].TTLSeconds)
	assert.Equal(t, "bob", byToken[bob].Username)

	deleted, err := repo.DeleteByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = repo.DeleteByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	sessions, err = repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, bob, sessions[0].Token)
}

func TestSessionRepository_ListAllEmpty(t *testing.T) {
	repo, _, _ := setupRepository(t)

	sessions, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestSessionRepository_StoreUnavailable(t *testing.T) {
	repo, mr, recorder := setupRepository(t)
	ctx := context.Background()

	token, err := repo.Create(ctx, anaSession())
	require.NoError(t, err)
	mr.Close()

	_, found, err := repo.Get(ctx, token)
	assert.False(t, found)
	assert.True(t, errors.HasCode(err, errors.ErrStoreUnavailable))

	_, err = repo.Create(ctx, anaSession())
	assert.True(t, errors.HasCode(err, errors.ErrStoreUnavailable))

	assert.True(t, errors.HasCode(repo.Delete(ctx, token), errors.ErrStoreUnavailable))

	_, err = repo.ListAll(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrStoreUnavailable))

	assert.Equal(t, 4, recorder.storeErrors)
	assert.Equal(t, 1, recorder.failures["get"])
}

func TestNewToken(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}
