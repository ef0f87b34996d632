package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readRetryDelay = time.Second

var ErrNoSession = errors.New("checkout message has no session")

// CartClearer empties a session's cart and notifies its observers.
type CartClearer interface {
	Clear(ctx context.Context, session string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Poller consumes completed checkouts from the outbox topic and clears the matching carts.
type Poller struct {
	carts  CartClearer
	reader messageReader
	logger *zap.Logger
}

func NewPoller(carts CartClearer, logger *zap.Logger, cfg Config) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{carts: carts, reader: reader, logger: logger}
}

// Run blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.getMessageAndClearCart(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("checkout message not processed", zap.Error(err))
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing reader", zap.Error(err))
	}
}

func (p *Poller) getMessageAndClearCart(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		// Avoid spinning on a broker that is down.
		select {
		case <-ctx.Done():
		case <-time.After(readRetryDelay):
		}
		return fmt.Errorf("error reading message: %w", err)
	}

	session, err := sessionFromPayload(m.Value)
	if err != nil {
		return fmt.Errorf("error parsing message at offset %d: %w", m.Offset, err)
	}

	if err := p.carts.Clear(ctx, session); err != nil {
		return fmt.Errorf("failed to clear cart %s: %w", session, err)
	}
	p.logger.Info("cart cleared after checkout",
		zap.String("session_id", session),
		zap.Int64("offset", m.Offset),
	)
	return nil
}

// sessionFromPayload reads session_id, falling back to the older user_id field, which may
// be a string or a number.
func sessionFromPayload(data []byte) (string, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}

	for _, field := range []string{"session_id", "user_id"} {
		switch v := payload[field].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, nil
			}
		case float64:
			return fmt.Sprintf("%.0f", v), nil
		}
	}
	return "", ErrNoSession
}
