package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Subscription is one client's view of the event stream.
type Subscription struct {
	events  chan Event
	filter  map[string]bool
	dropped atomic.Uint64
	once    sync.Once
}

// Events returns the channel the client reads from. It is closed when the
// subscription is removed or the hub shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(name string) bool {
	return len(s.filter) == 0 || s.filter[name]
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.events) })
}

// Hub delivers events to subscribers inside this process.
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscription]struct{}
	bufferSize int
	closed     bool
	logger     *zap.Logger
}

// NewHub creates a hub whose subscribers each buffer up to bufferSize events.
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Hub{
		subs:       make(map[*Subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a client. An empty filter receives every event.
func (h *Hub) Subscribe(filter ...string) *Subscription {
	sub := &Subscription{
		events: make(chan Event, h.bufferSize),
		filter: make(map[string]bool, len(filter)),
	}
	for _, name := range filter {
		sub.filter[name] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the client and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

// SubscriberCount returns the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Deliver hands event to every matching subscriber without blocking.
func (h *Hub) Deliver(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if !sub.wants(event.Name) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			if sub.dropped.Add(1) == 1 {
				h.logger.Warn("Subscriber queue full, dropping events",
					zap.String("event", event.Name))
			}
		}
	}
}

// Publish encodes payload and delivers it locally.
func (h *Hub) Publish(_ context.Context, name string, payload any) error {
	event, err := NewEvent(name, payload)
	if err != nil {
		return err
	}
	h.Deliver(event)
	return nil
}

// Close disconnects every subscriber. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		sub.close()
		delete(h.subs, sub)
	}
}

var _ Publisher = (*Hub)(nil)
