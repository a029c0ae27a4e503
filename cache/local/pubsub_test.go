package local

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSubBasic(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "room:abc")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "room:abc", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "room:abc", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestPubSubUnsubscribe(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "ch")
	require.NoError(t, err)

	cancel()
	cancel() // second cancel is a no-op

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel not closed after cancel")
	}

	assert.NoError(t, ps.Publish(ctx, "ch", "msg"))
}

func TestPubSubMultipleSubscribers(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch1, cancel1, _ := ps.Subscribe(ctx, "broadcast")
	ch2, cancel2, _ := ps.Subscribe(ctx, "broadcast")
	defer cancel1()
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "broadcast", "world"))

	for _, ch := range []<-chan *Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "world", msg.Payload)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("subscriber did not receive message")
		}
	}
}

func TestPubSubPerChannelOrder(t *testing.T) {
	ps := NewPubSub(128)
	ctx := context.Background()

	ch, cancel, _ := ps.Subscribe(ctx, "user:1", "room:x")
	defer cancel()

	for i := 0; i < 50; i++ {
		require.NoError(t, ps.Publish(ctx, "room:x", fmt.Sprint(i)))
	}
	for i := 0; i < 50; i++ {
		msg := <-ch
		assert.Equal(t, fmt.Sprint(i), msg.Payload)
	}
}

func TestPubSubDropsWhenFull(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	_, cancel, _ := ps.Subscribe(ctx, "c")
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "c", "1"))
	require.NoError(t, ps.Publish(ctx, "c", "2"))
	assert.Equal(t, int64(1), ps.Dropped())
}

func TestPubSubCancelDuringPublish(t *testing.T) {
	ps := NewPubSub(4)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		_, cancel, _ := ps.Subscribe(ctx, "race")
		wg.Add(2)
		go func() { defer wg.Done(); _ = ps.Publish(ctx, "race", "x") }()
		go func() { defer wg.Done(); cancel() }()
	}
	wg.Wait()
}
