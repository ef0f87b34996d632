package notify

import "sync"

type Observer func(Event)

type subscription struct {
	id      uint64
	session string
	all     bool
	fn      Observer
}

// Hub fans cart change events out to in-process observers. Observers run synchronously
// on the publishing goroutine, in subscription order. Late subscribers see no replay.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn for one session's events. The returned func unsubscribes and is
// safe to call more than once.
func (h *Hub) Subscribe(session string, fn Observer) func() {
	return h.add(subscription{session: session, fn: fn})
}

// SubscribeAll registers fn for every session's events.
func (h *Hub) SubscribeAll(fn Observer) func() {
	return h.add(subscription{all: true, fn: fn})
}

func (h *Hub) add(sub subscription) func() {
	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs = append(h.subs, sub)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(sub.id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to matching observers. Observers may subscribe or unsubscribe from
// inside the callback.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	matched := make([]Observer, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.all || sub.session == e.Session {
			matched = append(matched, sub.fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range matched {
		fn(e)
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
