package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

type memInbox struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (m *memInbox) Record(_ context.Context, eventID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func newConsumer(inbox Inbox, handler Handler) *Consumer {
	return &Consumer{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), inbox: inbox, handler: handler}
}

func TestProcessDeduplicates(t *testing.T) {
	var handled []string
	c := newConsumer(&memInbox{seen: map[string]bool{}}, func(_ context.Context, msg kafka.Message) error {
		handled = append(handled, string(msg.Value))
		return nil
	})

	msg := kafka.Message{Topic: "booking.appointment.booked.v1", Headers: []kafka.Header{{Key: "event_id", Value: []byte("e1")}}, Value: []byte("first")}
	c.process(context.Background(), msg)
	c.process(context.Background(), msg)
	c.process(context.Background(), kafka.Message{Topic: "booking.appointment.booked.v1", Key: []byte("e2"), Value: []byte("second")})

	assert.Equal(t, []string{"first", "second"}, handled)
}

func TestProcessSkipsHandlerWhenInboxFails(t *testing.T) {
	called := false
	c := newConsumer(&memInbox{err: errors.New("db down")}, func(context.Context, kafka.Message) error {
		called = true
		return nil
	})
	c.process(context.Background(), kafka.Message{Key: []byte("e1")})
	assert.False(t, called)
}

func TestProcessSurvivesHandlerError(t *testing.T) {
	calls := 0
	c := newConsumer(&memInbox{seen: map[string]bool{}}, func(context.Context, kafka.Message) error {
		calls++
		return errors.New("boom")
	})
	c.process(context.Background(), kafka.Message{Key: []byte("e1")})
	c.process(context.Background(), kafka.Message{Key: []byte("e2")})
	assert.Equal(t, 2, calls)
}
