package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingEvent struct{ BaseEvent }

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishSync_InvokesAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(nil)

	calls := 0
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		calls++
		return nil
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		calls++
		return nil
	}))

	if err := bus.PublishSync(context.Background(), pingEvent{NewBaseEvent()}); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
}

func TestPublishSync_PropagatesHandlerError(t *testing.T) {
	bus := NewInMemoryBus(nil)

	wantErr := errors.New("handler failed")
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		return wantErr
	}))

	if err := bus.PublishSync(context.Background(), pingEvent{NewBaseEvent()}); !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestPublish_IsFireAndForget(t *testing.T) {
	bus := NewInMemoryBus(nil)

	done := make(chan struct{})
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		close(done)
		return nil
	}))

	bus.Publish(context.Background(), pingEvent{NewBaseEvent()})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
