package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/DealFlow/internal/telemetry"
)

// offlineConnection — соединение без брокера, как после разрыва.
func offlineConnection() *Connection {
	return &Connection{
		name:        "test",
		logger:      telemetry.Discard(),
		degraded:    true,
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{time.Second, 2 * time.Second},
		{8 * time.Second, 16 * time.Second},
		{20 * time.Second, reconnectMaxDelay},
		{reconnectMaxDelay, reconnectMaxDelay},
	}

	for _, tt := range tests {
		if got := nextDelay(tt.in); got != tt.want {
			t.Errorf("nextDelay(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithChannel_Degraded(t *testing.T) {
	c := offlineConnection()

	called := false
	err := c.WithChannel(context.Background(), func(*amqp.Channel) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if called {
		t.Error("fn must not run without a channel")
	}
}

func TestWithChannel_CancelledContext(t *testing.T) {
	c := offlineConnection()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.WithChannel(ctx, func(*amqp.Channel) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSetDegraded(t *testing.T) {
	c := offlineConnection()
	if !c.Degraded() {
		t.Fatal("offline connection must be degraded")
	}

	c.setDegraded(false)
	// Без канала шина всё ещё недоступна
	if !c.Degraded() {
		t.Error("connection without channel must report degraded")
	}

	c.setDegraded(true)
	c.setDegraded(true)
	if !c.Degraded() {
		t.Error("expected degraded")
	}
}

func TestPublish_DegradedBus(t *testing.T) {
	p := NewPublisher(offlineConnection(), telemetry.Discard())

	if err := p.PublishDealFailed(context.Background(), uuid.New(), "boom"); !errors.Is(err, ErrNoChannel) {
		t.Errorf("expected ErrNoChannel, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := offlineConnection()

	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close must be a no-op, got %v", err)
	}

	select {
	case <-c.closedCh:
	default:
		t.Error("closedCh must be closed")
	}
}
