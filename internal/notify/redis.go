package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "cart:events:"

// RedisFeed publishes change events on per-session Redis channels and listens on all of
// them with a pattern subscription.
type RedisFeed struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisFeed(client *redis.Client, logger *zap.Logger) *RedisFeed {
	return &RedisFeed{client: client, logger: logger}
}

func (f *RedisFeed) Publish(ctx context.Context, e Event) error {
	data, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, redisChannelPrefix+e.Session, data).Err(); err != nil {
		return fmt.Errorf("failed to publish cart event: %w", err)
	}
	return nil
}

func (f *RedisFeed) Run(ctx context.Context, fn func(Event)) error {
	pubsub := f.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to cart events: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("cart event subscription closed")
			}
			e, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				f.logger.Warn("dropping malformed cart event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			if session := strings.TrimPrefix(msg.Channel, redisChannelPrefix); session != e.Session {
				f.logger.Warn("cart event session does not match channel",
					zap.String("channel", msg.Channel),
					zap.String("session_id", e.Session),
				)
				continue
			}
			fn(e)
		}
	}
}
