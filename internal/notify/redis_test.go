package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*RedisFeed, *redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFeed(client, zap.NewNop()), client, mr
}

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) add(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// runFeed starts Run in the background and stops it when the test ends.
func runFeed(t *testing.T, feed Feed, sink *eventSink) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, sink.add) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("feed did not stop")
		}
	})
}

func TestRedisFeed_PublishAndRun(t *testing.T) {
	feed, client, _ := setupTestRedis(t)
	ctx := context.Background()
	sink := &eventSink{}
	runFeed(t, feed, sink)

	require.Eventually(t, func() bool {
		return client.PubSubNumPat(ctx).Val() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, feed.Publish(ctx, Event{Session: "s1", Op: OpAdd, Origin: "engine-a"}))
	require.NoError(t, feed.Publish(ctx, Event{Session: "s2", Op: OpClear, Origin: "engine-b"}))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	got := sink.snapshot()
	assert.Equal(t, "s1", got[0].Session)
	assert.Equal(t, "engine-a", got[0].Origin)
	assert.Equal(t, OpClear, got[1].Op)
	assert.False(t, got[0].Remote)
}

func TestRedisFeed_DropsMalformedAndMismatched(t *testing.T) {
	feed, client, _ := setupTestRedis(t)
	ctx := context.Background()
	sink := &eventSink{}
	runFeed(t, feed, sink)

	require.Eventually(t, func() bool {
		return client.PubSubNumPat(ctx).Val() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, "cart:events:s1", "not json").Err())
	require.NoError(t, client.Publish(ctx, "cart:events:s1", `{"session":"s2","op":"add"}`).Err())
	require.NoError(t, feed.Publish(ctx, Event{Session: "s3", Op: OpRemove}))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "s3", sink.snapshot()[0].Session)
}

func TestRedisFeed_PublishFailure(t *testing.T) {
	feed, _, mr := setupTestRedis(t)
	mr.Close()

	err := feed.Publish(context.Background(), Event{Session: "s1", Op: OpAdd})
	assert.ErrorContains(t, err, "failed to publish cart event")
}
