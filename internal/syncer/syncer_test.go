package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/notebook"
	"github.com/fleetsapp/fleets/internal/store/memory"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within 2s")
}

func TestSyncer_StartSeedsAndFollowsFeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	userID := uuid.Must(uuid.NewV4())
	seeded := note(userID, "seeded", time.Now().UTC())
	if err := st.InsertNote(ctx, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := notebook.NewCache()
	s := New(st, cache, zap.NewNop())
	if err := s.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.State() != StateSubscribed {
		t.Fatalf("state = %s", s.State())
	}
	if cache.Len() != 1 {
		t.Fatalf("seed did not reach the cache: len=%d", cache.Len())
	}

	// a write from another device flows through the feed into the cache
	other := note(userID, "from elsewhere", time.Now().UTC().Add(time.Minute))
	if err := st.InsertNote(ctx, other); err != nil {
		t.Fatalf("insert: %v", err)
	}
	waitFor(t, func() bool { return cache.Len() == 2 })

	if err := st.DeleteNote(ctx, userID, seeded.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitFor(t, func() bool { return cache.Len() == 1 })
	if _, ok := cache.Get(other.ID); !ok {
		t.Fatalf("wrong note survived the delete")
	}
}

func TestSyncer_OtherOwnersEventsAreInvisible(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	userID := uuid.Must(uuid.NewV4())

	cache := notebook.NewCache()
	s := New(st, cache, zap.NewNop())
	if err := s.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	foreign := note(uuid.Must(uuid.NewV4()), "not yours", time.Now().UTC())
	if err := st.InsertNote(ctx, foreign); err != nil {
		t.Fatalf("insert: %v", err)
	}
	mine := note(userID, "mine", time.Now().UTC())
	if err := st.InsertNote(ctx, mine); err != nil {
		t.Fatalf("insert: %v", err)
	}

	waitFor(t, func() bool { return cache.Len() == 1 })
	if _, ok := cache.Get(foreign.ID); ok {
		t.Fatalf("foreign note leaked into the cache")
	}
}

func TestSyncer_StopDropsSubscriptionSynchronously(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	userID := uuid.Must(uuid.NewV4())

	cache := notebook.NewCache()
	s := New(st, cache, zap.NewNop())
	if err := s.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Stop()
	if s.State() != StateUnsubscribed {
		t.Fatalf("state after Stop = %s", s.State())
	}

	// events after Stop never reach the cache
	if err := st.InsertNote(ctx, note(userID, "late", time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if cache.Len() != 0 {
		t.Fatalf("stale subscription still fed the cache")
	}
}

func TestSyncer_RestartReplacesSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	userID := uuid.Must(uuid.NewV4())

	cache := notebook.NewCache()
	s := New(st, cache, zap.NewNop())
	if err := s.Start(ctx, userID); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	// re-login path: Start tears the old subscription down first
	if err := s.Start(ctx, userID); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	defer s.Stop()

	if err := st.InsertNote(ctx, note(userID, "once", time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	waitFor(t, func() bool { return cache.Len() == 1 })
	// exactly one subscription is live: no duplicate deliveries to count,
	// the by-id merge would hide them, so check the store's view instead
	time.Sleep(30 * time.Millisecond)
	if cache.Len() != 1 {
		t.Fatalf("len = %d", cache.Len())
	}
}

func TestSyncer_TwoDevicesConverge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	userID := uuid.Must(uuid.NewV4())

	cacheA := notebook.NewCache()
	cacheB := notebook.NewCache()
	devA := New(st, cacheA, zap.NewNop())
	devB := New(st, cacheB, zap.NewNop())
	if err := devA.Start(ctx, userID); err != nil {
		t.Fatalf("devA Start: %v", err)
	}
	defer devA.Stop()
	if err := devB.Start(ctx, userID); err != nil {
		t.Fatalf("devB Start: %v", err)
	}
	defer devB.Stop()

	base := time.Now().UTC()
	fromA := note(userID, "from A", base)
	fromB := note(userID, "from B", base.Add(time.Second))
	if err := st.InsertNote(ctx, fromA); err != nil {
		t.Fatalf("insert A: %v", err)
	}
	if err := st.InsertNote(ctx, fromB); err != nil {
		t.Fatalf("insert B: %v", err)
	}

	waitFor(t, func() bool { return cacheA.Len() == 2 && cacheB.Len() == 2 })
	for _, c := range []*notebook.Cache{cacheA, cacheB} {
		if _, ok := c.Get(fromA.ID); !ok {
			t.Fatalf("a device is missing note A")
		}
		if _, ok := c.Get(fromB.ID); !ok {
			t.Fatalf("a device is missing note B")
		}
	}
}
