package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

type Op string

const (
	OpAdd         Op = "add"
	OpSetQuantity Op = "set_quantity"
	OpRemove      Op = "remove"
	OpClear       Op = "clear"
	OpSave        Op = "save"
	// OpExternal marks a change observed on shared storage without knowing what it was.
	OpExternal Op = "external"
)

// Event says that a session's cart changed. It carries no cart contents; observers
// re-read the cart.
type Event struct {
	Session string    `json:"session"`
	Op      Op        `json:"op"`
	Origin  string    `json:"origin,omitempty"`
	At      time.Time `json:"at"`
	// Remote is set on events that arrived through a Feed.
	Remote bool `json:"-"`
}

func encodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event failed: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event failed: %w", err)
	}
	if e.Session == "" {
		return Event{}, fmt.Errorf("event without session")
	}
	return e, nil
}
