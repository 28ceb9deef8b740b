package audit

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"VerificarSmsPlatform/pkg/logger"
	"VerificarSmsPlatform/pkg/rabbitmq"
)

type captureSender struct {
	mu       sync.Mutex
	bodies   [][]byte
	keys     []string
	failWith error
}

func (s *captureSender) Publish(_ context.Context, body []byte, options ...rabbitmq.PublishOption) error {
	opts := &rabbitmq.PublishOptions{}
	for _, option := range options {
		option(opts)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, body)
	s.keys = append(s.keys, opts.RoutingKey)
	return s.failWith
}

type countingRecorder struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (r *countingRecorder) RecordAuditEvent(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func TestRabbitPublisher_Publish(t *testing.T) {
	sender := &captureSender{}
	recorder := &countingRecorder{}
	publisher := NewRabbitPublisher(sender, logger.NewNop(), recorder, 8)

	publisher.Publish(context.Background(), Event{Type: LoginFailed, Username: "ana", IP: "203.0.113.10"})
	publisher.Publish(context.Background(), Event{Type: SMSSent, Username: "bob", Details: map[string]string{"merchant": "776"}})
	publisher.Close()

	require.Len(t, sender.bodies, 2)
	assert.Equal(t, []string{"security.login_failed", "security.sms_sent"}, sender.keys)

	var event Event
	require.NoError(t, json.Unmarshal(sender.bodies[0], &event))
	assert.Equal(t, LoginFailed, event.Type)
	assert.Equal(t, "ana", event.Username)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, 2, recorder.ok)
}

func TestRabbitPublisher_SendFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sender := &captureSender{failWith: stderrors.New("channel closed")}
	recorder := &countingRecorder{}
	publisher := NewRabbitPublisher(sender, logger.NewWithCore(core), recorder, 1)

	publisher.Publish(context.Background(), Event{Type: Logout, Username: "ana"})
	publisher.Close()
	publisher.Close()

	assert.Equal(t, 1, recorder.failed)
	assert.Equal(t, 1, logs.FilterMessage("Failed to publish audit event").Len())
}

func TestRabbitPublisher_PublishAfterClose(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &captureSender{}
	recorder := &countingRecorder{}
	publisher := NewRabbitPublisher(sender, logger.NewWithCore(core), recorder, 8)

	publisher.Publish(context.Background(), Event{Type: LoginSucceeded, Username: "ana"})
	publisher.Close()

	assert.NotPanics(t, func() {
		publisher.Publish(context.Background(), Event{Type: Logout, Username: "ana"})
	})
	assert.Len(t, sender.bodies, 1)
	assert.Equal(t, 1, recorder.ok)
	assert.Equal(t, 1, logs.FilterMessage("Audit publisher is closed, dropping event").Len())
}

func TestRabbitPublisher_ConcurrentPublishAndClose(t *testing.T) {
	publisher := NewRabbitPublisher(&captureSender{}, logger.NewNop(), nil, 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				publisher.Publish(context.Background(), Event{Type: SMSSent})
			}
		}()
	}
	publisher.Close()
	wg.Wait()
}

func TestNop(t *testing.T) {
	var publisher Publisher = Nop{}
	assert.NotPanics(t, func() {
		publisher.Publish(context.Background(), Event{Type: LoginSucceeded})
	})
}
