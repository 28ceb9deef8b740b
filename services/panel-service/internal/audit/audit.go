package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/rabbitmq"
)

// Типы событий безопасности
const (
	LoginSucceeded    = "login_success"
	LoginFailed       = "login_failed"
	Logout            = "logout"
	PasswordRehashed  = "password_rehashed"
	RateLimitExceeded = "rate_limit_exceeded"
	IPBlocked         = "ip_blocked"
	SessionRevoked    = "session_revoked"
	SMSSent           = "sms_sent"
	SettingsChanged   = "settings_changed"
	RateLimitReset    = "rate_limit_reset"
	UserCreated       = "user_created"
	UserUpdated       = "user_updated"
	UserDeleted       = "user_deleted"
)

// Event событие аудита, публикуемое в RabbitMQ
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Username  string            `json:"username,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Publisher отправляет события аудита, ошибки не влияют на обработку запроса
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Sender публикует сырое сообщение, реализуется rabbitmq.Producer
type Sender interface {
	Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error
}

// Recorder принимает метрики публикации
type Recorder interface {
	RecordAuditEvent(eventType string, err error)
}

// Nop отбрасывает события, используется когда RabbitMQ выключен
type Nop struct{}

// Publish ничего не делает
func (Nop) Publish(context.Context, Event) {}

// RabbitPublisher публикует события асинхронно через буферизованную очередь
type RabbitPublisher struct {
	sender   Sender
	log      logger.Logger
	recorder Recorder
	timeout  time.Duration

	events chan Event
	wg     sync.WaitGroup

	// mu защищает closed и отправку в events от закрытия канала
	mu     sync.RWMutex
	closed bool
}

// NewRabbitPublisher создает публикатор и запускает фоновый воркер
func NewRabbitPublisher(sender Sender, log logger.Logger, recorder Recorder, buffer int) *RabbitPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &RabbitPublisher{
		sender:   sender,
		log:      log,
		recorder: recorder,
		timeout:  5 * time.Second,
		events:   make(chan Event, buffer),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish ставит событие в очередь, при переполнении или после Close событие отбрасывается
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("Audit publisher is closed, dropping event",
			logger.CtxField(ctx),
			logger.String("type", event.Type),
			logger.String("event_id", event.ID))
		return
	}

	select {
	case p.events <- event:
	default:
		p.log.Warn("Audit queue is full, dropping event",
			logger.CtxField(ctx),
			logger.String("type", event.Type),
			logger.String("event_id", event.ID))
	}
}

func (p *RabbitPublisher) run() {
	defer p.wg.Done()
	for event := range p.events {
		p.send(event)
	}
}

func (p *RabbitPublisher) send(event Event) {
	body, err := json.Marshal(event)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.sender.Publish(ctx, body,
			rabbitmq.WithRoutingKey("security."+event.Type),
			rabbitmq.WithMessageID(event.ID))
		cancel()
	}

	if p.recorder != nil {
		p.recorder.RecordAuditEvent(event.Type, err)
	}
	if err != nil {
		p.log.Error("Failed to publish audit event",
			logger.String("type", event.Type),
			logger.String("event_id", event.ID),
			logger.Error(err))
	}
}

// Close дожидается отправки событий из очереди
func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
