package ratelimit

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// Counter состояние счетчика окна
type Counter struct {
	Key   string
	Count int64
	TTL   time.Duration
}

// CounterStore хранилище счетчиков фиксированного окна
type CounterStore interface {
	// Increment атомарно увеличивает счетчик. TTL выставляется только при создании ключа
	// (или если у ключа нет TTL). Возвращает новое значение и оставшееся время жизни.
	Increment(ctx context.Context, key string, period time.Duration) (int64, time.Duration, error)
	// Get возвращает текущее значение и TTL; отсутствующий ключ дает (0, 0, nil)
	Get(ctx context.Context, key string) (int64, time.Duration, error)
	// Delete удаляет счетчик
	Delete(ctx context.Context, key string) error
	// Scan возвращает все счетчики, ключи которых подходят под glob-шаблон
	Scan(ctx context.Context, pattern string) ([]Counter, error)
	// DeleteMatching удаляет все счетчики под шаблоном и возвращает их число
	DeleteMatching(ctx context.Context, pattern string) (int, error)
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// memorySweepInterval как часто Increment удаляет все истекшие счетчики
const memorySweepInterval = time.Minute

// MemoryStore хранит счетчики в памяти процесса.
// Счетчики не разделяются между экземплярами сервиса.
// Истекшие записи удаляются при обращении к ключу и периодической чисткой в Increment.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryStore создает хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// WithClock подменяет источник времени
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// live возвращает запись, удаляя ее, если окно истекло. Вызывается под mu.
func (s *MemoryStore) live(key string, now time.Time) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// sweep удаляет все истекшие записи не чаще memorySweepInterval. Вызывается под mu.
func (s *MemoryStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(memorySweepInterval)
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Increment увеличивает счетчик
func (s *MemoryStore) Increment(_ context.Context, key string, period time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	e := s.live(key, now)
	if e == nil {
		e = &memoryEntry{expiresAt: now.Add(period)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.expiresAt.Sub(now), nil
}

// Get возвращает значение счетчика
func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e := s.live(key, now); e != nil {
		return e.count, e.expiresAt.Sub(now), nil
	}
	return 0, 0, nil
}

// Delete удаляет счетчик
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Scan возвращает счетчики под шаблоном
func (s *MemoryStore) Scan(_ context.Context, pattern string) ([]Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var result []Counter
	for key := range s.entries {
		e := s.live(key, now)
		if e == nil {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			result = append(result, Counter{Key: key, Count: e.count, TTL: e.expiresAt.Sub(now)})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// DeleteMatching удаляет счетчики под шаблоном
func (s *MemoryStore) DeleteMatching(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for key := range s.entries {
		if s.live(key, now) == nil {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
