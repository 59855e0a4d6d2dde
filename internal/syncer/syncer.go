package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/notebook"
	"github.com/fleetsapp/fleets/internal/store"
)

// State of the single change-feed attachment.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateSubscribed
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Syncer owns the session's single change-feed subscription. Start attaches
// the feed before loading the snapshot, so any write landing between the two
// is either already in the list or arrives as an event; both resolve to the
// same cache state through the by-id merge. Only one subscription is live at
// a time: Start tears down the previous one first.
type Syncer struct {
	st    store.Store
	rec   *Reconciler
	cache *notebook.Cache
	log   *zap.Logger

	mu    sync.Mutex
	state State
	sub   store.Subscription
	done  chan struct{}
}

func New(st store.Store, cache *notebook.Cache, log *zap.Logger) *Syncer {
	return &Syncer{
		st:    st,
		rec:   NewReconciler(cache, log),
		cache: cache,
		log:   log,
	}
}

// State reports the current feed state.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start subscribes to the owner's change feed, seeds the cache with a full
// snapshot and then drains feed events until the subscription closes or
// Stop is called. A failed subscribe or list leaves the syncer unsubscribed.
func (s *Syncer) Start(ctx context.Context, userID uuid.UUID) error {
	s.Stop()

	s.mu.Lock()
	s.state = StateSubscribing
	s.mu.Unlock()

	sub, err := s.st.Subscribe(ctx, userID)
	if err != nil {
		s.mu.Lock()
		s.state = StateUnsubscribed
		s.mu.Unlock()
		return fmt.Errorf("subscribe: %w", err)
	}

	notes, err := s.st.ListNotes(ctx, userID)
	if err != nil {
		_ = sub.Close()
		s.mu.Lock()
		s.state = StateUnsubscribed
		s.mu.Unlock()
		return fmt.Errorf("list notes: %w", err)
	}
	s.cache.ReplaceAll(notes)

	done := make(chan struct{})
	s.mu.Lock()
	s.state = StateSubscribed
	s.sub = sub
	s.done = done
	s.mu.Unlock()

	go s.drain(sub, done)
	return nil
}

func (s *Syncer) drain(sub store.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		s.rec.Apply(ev)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != sub {
		// Stop or a newer Start already took over.
		return
	}
	s.sub = nil
	if err := sub.Err(); err != nil {
		// Not auto-retried here; the next full reload re-subscribes.
		s.state = StateError
		s.log.Warn("change feed closed", zap.Error(err))
	} else {
		s.state = StateUnsubscribed
	}
}

// Stop synchronously drops the subscription reference, so a later Start can
// never race a stale feed into the cache, then waits for the drain loop to
// finish.
func (s *Syncer) Stop() {
	s.mu.Lock()
	sub := s.sub
	done := s.done
	s.sub = nil
	s.done = nil
	s.state = StateUnsubscribed
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	if done != nil {
		<-done
	}
}
