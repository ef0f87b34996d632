package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/notify"
)

const (
	eventBuffer       = 16
	heartbeatInterval = 15 * time.Second
)

// Subscriber is the part of notify.Hub the events stream uses.
type Subscriber interface {
	Subscribe(session string, fn notify.Observer) func()
}

type TotalsReader interface {
	Totals(ctx context.Context, session string) domain.Totals
}

// EventsHandler streams a session's cart changes as Server-Sent Events, each carrying the
// totals read after the change. The stream starts with the current totals.
type EventsHandler struct {
	hub       Subscriber
	totals    TotalsReader
	logger    *zap.Logger
	heartbeat time.Duration
}

func NewEventsHandler(hub Subscriber, totals TotalsReader, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub:       hub,
		totals:    totals,
		logger:    logger,
		heartbeat: heartbeatInterval,
	}
}

type CartEventDTO struct {
	Op     notify.Op     `json:"op"`
	Remote bool          `json:"remote"`
	At     time.Time     `json:"at"`
	Totals domain.Totals `json:"totals"`
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "session_required", "missing cart session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	// The hub calls observers on the mutating goroutine; never block it.
	events := make(chan notify.Event, eventBuffer)
	unsubscribe := h.hub.Subscribe(sessionID, func(e notify.Event) {
		select {
		case events <- e:
		default:
			h.logger.Warn("dropping cart event for slow stream", zap.String("session_id", sessionID))
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	if err := h.send(w, "totals", CartEventDTO{At: time.Now(), Totals: h.totals.Totals(ctx, sessionID)}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			dto := CartEventDTO{Op: e.Op, Remote: e.Remote, At: e.At, Totals: h.totals.Totals(ctx, sessionID)}
			if err := h.send(w, "cart", dto); err != nil {
				h.logger.Debug("cart event stream closed", zap.String("session_id", sessionID), zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) send(w http.ResponseWriter, event string, data CartEventDTO) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal cart event failed: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
