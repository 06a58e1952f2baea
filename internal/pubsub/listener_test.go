package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContinuousListener_Next(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewContinuousListener(ctx, broker)

	broker.Publish(CreatedEvent, "receipt-1")

	event, ok := listener.Next()
	require.True(t, ok)
	require.Equal(t, "receipt-1", event.Payload)
	require.Equal(t, CreatedEvent, event.Type)
}

func TestContinuousListener_NextAfterCancel(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	listener := NewContinuousListener(ctx, broker)

	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := listener.Next()
		require.False(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Next should return once the context is cancelled")
	}
}

func TestContinuousListener_NextAfterBrokerClose(t *testing.T) {
	broker := NewBroker[string]()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewContinuousListener(ctx, broker)
	broker.Close()

	_, ok := listener.Next()
	require.False(t, ok)
}

func TestContinuousListener_EventsChannel(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewContinuousListener(ctx, broker)

	broker.Publish(UpdatedEvent, 7)

	select {
	case event := <-listener.Events():
		require.Equal(t, 7, event.Payload)
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for event")
	}
}
