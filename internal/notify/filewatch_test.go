package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/internal/storage"
)

func setupFileWatch(t *testing.T) (*FileWatchFeed, *storage.FileStore, *eventSink) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	feed := NewFileWatchFeed(store.Dir(), zap.NewNop())
	feed.debounce = 100 * time.Millisecond
	feed.ownWriteWindow = time.Second

	sink := &eventSink{}
	runFeed(t, feed, sink)
	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	return feed, store, sink
}

func TestFileWatchFeed_ForeignWrite(t *testing.T) {
	_, store, sink := setupFileWatch(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "session-1", "[]"))
	require.NoError(t, store.Set(ctx, "session-1", `[{"id":"P1","qty":1}]`))

	require.Eventually(t, func() bool { return len(sink.snapshot()) >= 1 }, 2*time.Second, 10*time.Millisecond)

	// Rapid writes to one file collapse into a single event.
	time.Sleep(250 * time.Millisecond)
	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "session-1", got[0].Session)
	assert.Equal(t, OpExternal, got[0].Op)
}

func TestFileWatchFeed_DeleteIsAChange(t *testing.T) {
	_, store, sink := setupFileWatch(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "session-1", "[]"))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.Delete(ctx, "session-1"))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatchFeed_SuppressesOwnWrites(t *testing.T) {
	feed, store, sink := setupFileWatch(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "mine", "[]"))
	require.NoError(t, feed.Publish(ctx, Event{Session: "mine", Op: OpAdd}))
	require.NoError(t, store.Set(ctx, "theirs", "[]"))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "theirs", got[0].Session)
}

func TestFileWatchFeed_MissingDir(t *testing.T) {
	feed := NewFileWatchFeed(t.TempDir()+"/absent", zap.NewNop())
	err := feed.Run(context.Background(), func(Event) {})
	assert.ErrorContains(t, err, "failed to watch cart dir")
}
