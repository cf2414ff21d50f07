// Package broadcast fans committed vote changes out to live subscribers.
package broadcast

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"

	"github.com/mr-tron/base58"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 64

// Hub delivers each published event at most once to every current subscriber.
// A subscriber whose queue is full misses the event; publishers never block.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// NewHub creates a hub. A non-positive buffer uses DefaultSubscriberBuffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		buffer: buffer,
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// Subscription is one live listener. Events is closed when the
// subscription ends, by Close, context cancellation or Hub.Close.
type Subscription struct {
	id   string
	ch   chan domain.BroadcastEvent
	hub  *Hub
	once sync.Once
	stop func() bool
}

// ID is the random identifier assigned at subscribe time.
func (s *Subscription) ID() string { return s.id }

// Events delivers published events in publish order.
func (s *Subscription) Events() <-chan domain.BroadcastEvent { return s.ch }

// Close unsubscribes. Idempotent.
func (s *Subscription) Close() {
	if s.stop != nil {
		s.stop()
	}
	s.end()
}

func (s *Subscription) end() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Subscribe registers a listener that lives until ctx is done or Close is called.
// Events published before Subscribe returns are not replayed.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	sub := &Subscription{
		id:  newSubscriberID(),
		ch:  make(chan domain.BroadcastEvent, h.buffer),
		hub: h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	// Set under the lock so Hub.Close never observes a partially built subscription.
	sub.stop = context.AfterFunc(ctx, sub.end)
	n := len(h.subs)
	h.mu.Unlock()

	observability.UpdateSubscribers(n)
	h.logger.Debug("subscriber joined", "subscriber_id", sub.id, "subscribers", n)
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub.id)
	close(sub.ch)
	n := len(h.subs)
	h.mu.Unlock()

	observability.UpdateSubscribers(n)
	h.logger.Debug("subscriber left", "subscriber_id", sub.id, "subscribers", n)
}

// Publish offers event to every subscriber without blocking and reports
// how many received it and how many dropped it.
func (h *Hub) Publish(event domain.BroadcastEvent) (delivered, dropped int) {
	h.mu.RLock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- event:
			delivered++
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	observability.RecordBroadcast(dropped)
	if dropped > 0 {
		h.logger.Warn("subscribers lagging, event dropped",
			"subject_id", event.SubjectID, "dropped", dropped)
	}
	return delivered, dropped
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func newSubscriberID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return base58.Encode(b[:])
}
