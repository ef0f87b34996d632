package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"

	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/service"
	"github.com/fjod/storefront-cart/internal/storage"
)

func setupTestDB(t *testing.T) (*storage.MongoStore, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := storage.ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	store := storage.NewMongoStore(db, 0)
	require.NoError(t, store.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return store, cleanup
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanupDB := setupTestDB(t)
	defer cleanupDB()
	brokers, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	const topic = "checkout-outbox"
	createTopic(t, brokers, topic)

	hub := notify.NewHub()
	engine := service.NewEngine(store, hub, nil, nil, zap.NewNop())

	_, err := engine.Add(ctx, "123", service.AddRequest{ProductID: "1", Name: "Mug", UnitPrice: 10, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, len(engine.Load(ctx, "123").Lines))

	cleared := make(chan notify.Event, 1)
	defer hub.Subscribe("123", func(e notify.Event) { cleared <- e })()

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	payload, err := json.Marshal(map[string]interface{}{
		"checkout_id":  "chId",
		"session_id":   "123",
		"total_amount": "1",
		"completed_at": time.Time{},
	})
	require.NoError(t, err)
	err = w.WriteMessages(ctx, kafkaGo.Message{
		Key:     []byte("chId"),
		Value:   payload,
		Headers: []kafkaGo.Header{{Key: "event_type", Value: []byte("checkout")}},
	})
	require.NoError(t, err)
	w.Close()

	p := NewPoller(engine, zap.NewNop(), Config{Brokers: []string{brokers}, Topic: topic, GroupID: "cart-engine-test"})
	defer p.Close()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return engine.Load(ctx, "123").IsEmpty()
	}, 15*time.Second, 500*time.Millisecond)

	select {
	case e := <-cleared:
		assert.Equal(t, notify.OpClear, e.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("no clear event")
	}
}
