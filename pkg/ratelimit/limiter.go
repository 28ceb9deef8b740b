package ratelimit

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"VerificarSmsPlatform/pkg/errors"
	"VerificarSmsPlatform/pkg/logger"
)

// KeyPrefix префикс ключей счетчиков в хранилище
const KeyPrefix = "ratelimit:"

// Key возвращает ключ счетчика: ratelimit:<class>:<identifier>
func Key(class EndpointClass, identifier string) string {
	return KeyPrefix + string(class) + ":" + identifier
}

// parseKey разбирает ключ счетчика. Имена классов не содержат ':'.
func parseKey(key string) (EndpointClass, string, bool) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return "", "", false
	}
	class, identifier, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", false
	}
	return EndpointClass(class), identifier, true
}

// Outcome результат проверки лимита
type Outcome int

const (
	Allowed Outcome = iota
	Exceeded
	Blocked
)

// String возвращает имя результата
func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Exceeded:
		return "exceeded"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Subject субъект проверки: идентификатор (user:<name> или ip:<addr>), адрес клиента и роль
type Subject struct {
	Identifier  string
	IP          string
	Role        Role
	Whitelisted bool
}

// Decision решение лимитера. Для Exceeded поля описывают класс, в котором превышен лимит;
// для Allowed класс с наименьшим остатком.
type Decision struct {
	Outcome     Outcome
	Class       EndpointClass
	Limit       int
	Count       int64
	Remaining   int
	Period      time.Duration
	RetryAfter  int
	Whitelisted bool
}

// Recorder принимает события лимитера для метрик
type Recorder interface {
	RecordDecision(class, outcome string)
	RecordFallback(class string)
	RecordStoreError(component string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, string) {}
func (nopRecorder) RecordFallback(string)         {}
func (nopRecorder) RecordStoreError(string)       {}

// Options настройки лимитера
type Options struct {
	Policies    Policies
	Multipliers RoleMultipliers
	Whitelist   *AccessList
	Blacklist   *AccessList
	// FailOpen при недоступности хранилища переключает проверку на локальный счетчик
	FailOpen     bool
	StoreTimeout time.Duration
	Recorder     Recorder
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() Options {
	whitelist, _ := NewAccessList([]string{"127.0.0.1", "::1", "localhost"})
	return Options{
		Policies:     DefaultPolicies(),
		Multipliers:  DefaultMultipliers(),
		Whitelist:    whitelist,
		Blacklist:    &AccessList{},
		StoreTimeout: 2 * time.Second,
	}
}

// Limiter лимитер фиксированного окна поверх CounterStore
type Limiter struct {
	store    CounterStore
	fallback *MemoryStore
	opts     Options
	recorder Recorder
	log      logger.Logger
}

// NewLimiter создает лимитер
func NewLimiter(store CounterStore, opts Options, log logger.Logger) *Limiter {
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Limiter{
		store:    store,
		fallback: NewMemoryStore(),
		opts:     opts,
		recorder: recorder,
		log:      log.With(logger.String("component", "ratelimit")),
	}
}

func (l *Limiter) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.opts.StoreTimeout)
}

// Check проверяет классы по порядку и увеличивает их счетчики.
// Первый класс с превышением определяет отказ; следующие классы не учитываются.
// Ошибка возвращается только при недоступном хранилище и выключенном FailOpen.
func (l *Limiter) Check(ctx context.Context, subject Subject, classes ...EndpointClass) (Decision, error) {
	if len(classes) == 0 {
		classes = []EndpointClass{DefaultClass}
	}

	if l.opts.Blacklist.Contains(subject.IP, subject.Identifier) {
		l.log.Warn("Blocked request from blacklisted subject",
			logger.String("identifier", subject.Identifier),
			logger.String("ip", subject.IP))
		l.recorder.RecordDecision(string(classes[0]), Blocked.String())
		return Decision{Outcome: Blocked, Class: classes[0]}, nil
	}

	if subject.Whitelisted || l.opts.Whitelist.Contains(subject.IP, subject.Identifier) {
		return Decision{Outcome: Allowed, Class: classes[0], Whitelisted: true}, nil
	}

	multiplier := l.opts.Multipliers.For(subject.Role)

	var result Decision
	for i, class := range classes {
		policy, found := l.opts.Policies.Resolve(class)
		if !found {
			l.log.Warn("Rate limit policy not found, using default policy",
				logger.String("class", string(class)),
				logger.String("default", string(DefaultClass)))
		}
		limit := EffectiveLimit(policy.Limit, multiplier)

		count, ttl, err := l.increment(ctx, Key(class, subject.Identifier), policy.Period, class)
		if err != nil {
			return Decision{}, err
		}

		d := Decision{
			Outcome: Allowed,
			Class:   class,
			Limit:   limit,
			Count:   count,
			Period:  policy.Period,
		}
		if count > int64(limit) {
			d.Outcome = Exceeded
			d.RetryAfter = retryAfter(ttl)
			l.recorder.RecordDecision(string(class), Exceeded.String())
			l.log.Info("Rate limit exceeded",
				logger.String("identifier", subject.Identifier),
				logger.String("class", string(class)),
				logger.Int("limit", limit),
				logger.Int64("count", count),
				logger.Int("retry_after", d.RetryAfter))
			return d, nil
		}

		d.Remaining = limit - int(count)
		l.recorder.RecordDecision(string(class), Allowed.String())
		if i == 0 || d.Remaining < result.Remaining {
			result = d
		}
	}

	return result, nil
}

// retryAfter округляет оставшийся TTL вверх до секунд, минимум 1
func retryAfter(ttl time.Duration) int {
	seconds := int(math.Ceil(ttl.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func (l *Limiter) increment(ctx context.Context, key string, period time.Duration, class EndpointClass) (int64, time.Duration, error) {
	storeCtx, cancel := l.storeContext(ctx)
	defer cancel()

	count, ttl, err := l.store.Increment(storeCtx, key, period)
	if err == nil {
		return count, ttl, nil
	}

	l.recorder.RecordStoreError("ratelimit")
	if !l.opts.FailOpen {
		l.log.Error("Rate limit store unavailable, refusing request",
			logger.String("key", key),
			logger.Error(err))
		return 0, 0, errors.Unavailable(err, "ratelimit")
	}

	l.log.Warn("Rate limit store unavailable, using in-process counter",
		logger.String("key", key),
		logger.Error(err))
	l.recorder.RecordFallback(string(class))
	return l.fallback.Increment(ctx, key, period)
}

// Status состояние счетчика субъекта
type Status struct {
	Identifier string        `json:"identifier"`
	Class      EndpointClass `json:"limit_key"`
	Count      int64         `json:"current_usage"`
	TTLSeconds int           `json:"ttl"`
	ResetIn    string        `json:"reset_in"`
}

// Status возвращает текущее значение счетчика без его изменения
func (l *Limiter) Status(ctx context.Context, identifier string, class EndpointClass) (Status, error) {
	storeCtx, cancel := l.storeContext(ctx)
	defer cancel()

	count, ttl, err := l.store.Get(storeCtx, Key(class, identifier))
	if err != nil {
		l.recorder.RecordStoreError("ratelimit")
		return Status{}, errors.Unavailable(err, "ratelimit")
	}

	status := Status{Identifier: identifier, Class: class, Count: count, ResetIn: "N/A"}
	if ttl > 0 {
		status.TTLSeconds = retryAfter(ttl)
		status.ResetIn = FormatRetryAfter(status.TTLSeconds)
	}
	return status, nil
}

// Reset удаляет счетчик субъекта
func (l *Limiter) Reset(ctx context.Context, identifier string, class EndpointClass) error {
	storeCtx, cancel := l.storeContext(ctx)
	defer cancel()

	key := Key(class, identifier)
	_ = l.fallback.Delete(ctx, key)
	if err := l.store.Delete(storeCtx, key); err != nil {
		l.recorder.RecordStoreError("ratelimit")
		return errors.Unavailable(err, "ratelimit")
	}
	l.log.Info("Rate limit reset",
		logger.String("identifier", identifier),
		logger.String("class", string(class)))
	return nil
}

// ActiveLimit активный счетчик
type ActiveLimit struct {
	Key        string        `json:"key"`
	Class      EndpointClass `json:"limit_key"`
	Identifier string        `json:"identifier"`
	Count      int64         `json:"count"`
	TTLSeconds int           `json:"ttl"`
	ResetIn    string        `json:"reset_in"`
}

// ListActive возвращает все активные счетчики
func (l *Limiter) ListActive(ctx context.Context) ([]ActiveLimit, error) {
	storeCtx, cancel := l.storeContext(ctx)
	defer cancel()

	counters, err := l.store.Scan(storeCtx, KeyPrefix+"*")
	if err != nil {
		l.recorder.RecordStoreError("ratelimit")
		return nil, errors.Unavailable(err, "ratelimit")
	}

	result := make([]ActiveLimit, 0, len(counters))
	for _, c := range counters {
		class, identifier, ok := parseKey(c.Key)
		if !ok {
			continue
		}
		active := ActiveLimit{
			Key:        strings.TrimPrefix(c.Key, KeyPrefix),
			Class:      class,
			Identifier: identifier,
			Count:      c.Count,
			ResetIn:    "Expirado",
		}
		if c.TTL > 0 {
			active.TTLSeconds = retryAfter(c.TTL)
			active.ResetIn = FormatRetryAfter(active.TTLSeconds)
		}
		result = append(result, active)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// ClearAll удаляет все счетчики и возвращает их число
func (l *Limiter) ClearAll(ctx context.Context) (int, error) {
	storeCtx, cancel := l.storeContext(ctx)
	defer cancel()

	_, _ = l.fallback.DeleteMatching(ctx, KeyPrefix+"*")
	deleted, err := l.store.DeleteMatching(storeCtx, KeyPrefix+"*")
	if err != nil {
		l.recorder.RecordStoreError("ratelimit")
		return 0, errors.Unavailable(err, "ratelimit")
	}
	l.log.Warn("All rate limit counters cleared", logger.Int("deleted", deleted))
	return deleted, nil
}

// ClassStats агрегаты по классу
type ClassStats struct {
	Count         int   `json:"count"`
	TotalRequests int64 `json:"total_requests"`
}

// Stats агрегаты по активным счетчикам
type Stats struct {
	TotalActive int                          `json:"total_active_limits"`
	ByClass     map[EndpointClass]ClassStats `json:"by_type"`
}

// Stats возвращает число активных счетчиков и сумму запросов по классам
func (l *Limiter) Stats(ctx context.Context) (Stats, error) {
	active, err := l.ListActive(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalActive: len(active), ByClass: make(map[EndpointClass]ClassStats)}
	for _, a := range active {
		s := stats.ByClass[a.Class]
		s.Count++
		s.TotalRequests += a.Count
		stats.ByClass[a.Class] = s
	}
	return stats, nil
}

// Policies возвращает базовые политики
func (l *Limiter) Policies() []Policy {
	return l.opts.Policies.Sorted()
}

// Multipliers возвращает множители ролей
func (l *Limiter) Multipliers() RoleMultipliers {
	return l.opts.Multipliers
}

// Whitelist возвращает записи белого списка
func (l *Limiter) Whitelist() []string {
	return l.opts.Whitelist.Entries()
}

// Blacklist возвращает записи черного списка
func (l *Limiter) Blacklist() []string {
	return l.opts.Blacklist.Entries()
}

// IsBlacklisted сообщает, заблокирован ли адрес или идентификатор
func (l *Limiter) IsBlacklisted(values ...string) bool {
	return l.opts.Blacklist.Contains(values...)
}

// IsWhitelisted сообщает, освобожден ли адрес или идентификатор от лимитов
func (l *Limiter) IsWhitelisted(values ...string) bool {
	return l.opts.Whitelist.Contains(values...)
}

// FailOpen сообщает, включена ли деградация в локальный счетчик
func (l *Limiter) FailOpen() bool {
	return l.opts.FailOpen
}
