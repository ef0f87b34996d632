package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNATSSubject(t *testing.T) {
	assert.Equal(t, "cart.events.czE", natsSubject("s1"))
	assert.NotContains(t, natsSubject("a.b.*.>")[len(natsSubjectPrefix):], ".")
}

// Requires a running server, e.g. NATS_TEST_URL=nats://localhost:4222.
func TestNATSFeed_PublishAndRun(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}

	conn, err := ConnectNATS(url, zap.NewNop())
	require.NoError(t, err)
	defer conn.Close()

	feed := NewNATSFeed(conn, zap.NewNop())
	sink := &eventSink{}
	runFeed(t, feed, sink)

	// Subscriptions are registered asynchronously; keep publishing until one lands.
	require.Eventually(t, func() bool {
		require.NoError(t, feed.Publish(context.Background(), Event{Session: "s.1", Op: OpAdd, Origin: "engine-a"}))
		require.NoError(t, conn.Flush())
		return len(sink.snapshot()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "s.1", sink.snapshot()[0].Session)
}
