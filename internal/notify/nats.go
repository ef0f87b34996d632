package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsSubjectPrefix = "cart.events."

// NATSFeed publishes change events on per-session NATS subjects. Session ids are
// base64url-encoded into a single subject token so dots and wildcards cannot leak in.
type NATSFeed struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATSFeed(conn *nats.Conn, logger *zap.Logger) *NATSFeed {
	return &NATSFeed{conn: conn, logger: logger}
}

// ConnectNATS dials the server with reconnects enabled.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("cart-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return conn, nil
}

func natsSubject(session string) string {
	return natsSubjectPrefix + base64.RawURLEncoding.EncodeToString([]byte(session))
}

func (f *NATSFeed) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if err := f.conn.Publish(natsSubject(e.Session), data); err != nil {
		return fmt.Errorf("failed to publish cart event: %w", err)
	}
	return nil
}

func (f *NATSFeed) Run(ctx context.Context, fn func(Event)) error {
	sub, err := f.conn.Subscribe(natsSubjectPrefix+">", func(msg *nats.Msg) {
		e, err := decodeEvent(msg.Data)
		if err != nil {
			f.logger.Warn("dropping malformed cart event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		fn(e)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to cart events: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			f.logger.Warn("failed to unsubscribe from cart events", zap.Error(err))
		}
	}()

	<-ctx.Done()
	return nil
}
