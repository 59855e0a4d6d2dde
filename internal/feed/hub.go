// Package feed implements an in-process change-feed fanout keyed by owner.
// The Postgres store publishes an event here after every successful commit;
// feed consumers (one per connected device) receive events in publish order.
package feed

import (
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

const defaultBuffer = 64

// Hub fans change events out to per-owner subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Sub]struct{}
	buffer int
	closed bool
}

// NewHub constructs a hub. buffer is the per-subscriber channel depth;
// zero selects the default.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[uuid.UUID]map[*Sub]struct{}), buffer: buffer}
}

// Subscribe attaches a subscriber for one owner's events.
func (h *Hub) Subscribe(userID uuid.UUID) (*Sub, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errs.ErrClosed
	}
	s := &Sub{hub: h, userID: userID, ch: make(chan model.ChangeEvent, h.buffer)}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Sub]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	return s, nil
}

// Publish delivers the event to every subscriber of its owner. A subscriber
// whose buffer is full is dropped (its channel closed with an error): the
// feed is reliable-effort, at-most-once per connection, and a lagging
// consumer recovers by resubscribing after a full reload.
func (h *Hub) Publish(ev model.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[ev.Note.UserID] {
		select {
		case s.ch <- ev:
		default:
			s.err = errs.ErrClosed
			h.dropLocked(s)
		}
	}
}

// Close tears down the hub and every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for s := range set {
			close(s.ch)
			s.dropped = true
		}
	}
	h.subs = nil
}

func (h *Hub) dropLocked(s *Sub) {
	if s.dropped {
		return
	}
	s.dropped = true
	close(s.ch)
	set := h.subs[s.userID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.userID)
	}
}

// Sub is one live attachment to the hub.
type Sub struct {
	hub     *Hub
	userID  uuid.UUID
	ch      chan model.ChangeEvent
	err     error
	dropped bool
}

// Events returns the delivery channel; it is closed on Close or when the
// subscriber lags behind.
func (s *Sub) Events() <-chan model.ChangeEvent { return s.ch }

// Err reports why the channel closed; nil after a clean Close.
func (s *Sub) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

// Close detaches the subscriber from the hub.
func (s *Sub) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.hub.closed {
		return nil
	}
	s.hub.dropLocked(s)
	return nil
}
