package pubsub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed before a payload arrived")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
	}
	var zero T
	return zero
}

func waitClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed")
		}
	}
}

func TestBus_PublishReachesTopicSubscribersOnly(t *testing.T) {
	bus := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := bus.Subscribe(ctx, "notifications:alice")
	bob := bus.Subscribe(ctx, "notifications:bob")

	delivered := bus.Publish("notifications:alice", "hello alice")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, "hello alice", receive(t, alice))

	select {
	case v := <-bob:
		t.Fatalf("bob received a payload for another topic: %q", v)
	default:
	}
}

func TestBus_FanOutToEverySubscriber(t *testing.T) {
	bus := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := bus.Subscribe(ctx, "t")
	second := bus.Subscribe(ctx, "t")

	assert.Equal(t, 2, bus.Publish("t", 7))
	assert.Equal(t, 7, receive(t, first))
	assert.Equal(t, 7, receive(t, second))
}

func TestBus_CancelEndsSubscription(t *testing.T) {
	var open atomic.Int64
	bus := New[int](WithSubscriberHook(func(delta int) { open.Add(int64(delta)) }))

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, "t")
	assert.Equal(t, 1, bus.Subscribers("t"))
	assert.EqualValues(t, 1, open.Load())

	cancel()
	waitClosed(t, ch)

	assert.Eventually(t, func() bool {
		return bus.Subscribers("t") == 0 && open.Load() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, bus.Publish("t", 1))
}

func TestBus_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	var dropped atomic.Int64
	bus := New[int](
		WithBufferSize(1),
		WithDropHook(func(topic string) { dropped.Add(1) }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := bus.Subscribe(ctx, "t")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish("t", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	assert.Equal(t, 0, receive(t, slow))
	assert.EqualValues(t, 9, dropped.Load())
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := New[string]()
	assert.Equal(t, 0, bus.Publish("nobody", "x"))
}

func TestBus_CloseEndsAllSubscriptions(t *testing.T) {
	bus := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := bus.Subscribe(ctx, "a")
	b := bus.Subscribe(ctx, "b")
	bus.Close()

	waitClosed(t, a)
	waitClosed(t, b)

	late := bus.Subscribe(ctx, "a")
	waitClosed(t, late)
	assert.Equal(t, 0, bus.Publish("a", "after close"))
}
