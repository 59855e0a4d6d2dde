// Package notebook implements the client's local-first note state: an
// ordered in-memory cache plus the optimistic mutation dispatcher feeding it.
package notebook

import (
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
)

// Cache is the single source of truth for presentation. It holds at most one
// note per id, ordered by created_at ascending, and is mutated only by the
// dispatcher and the reconciler. Observers are notified after every mutation.
type Cache struct {
	mu        sync.Mutex
	notes     []model.Note
	observers []func()
}

// NewCache constructs an empty cache.
func NewCache() *Cache { return &Cache{} }

// OnChange registers an observer called (outside the cache lock) after every
// mutation. Registration order is notification order.
func (c *Cache) OnChange(fn func()) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Snapshot returns a copy of the current ordered contents.
func (c *Cache) Snapshot() []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Note, len(c.notes))
	copy(out, c.notes)
	return out
}

// Get returns the note with the given id.
func (c *Cache) Get(id uuid.UUID) (model.Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.find(id); i >= 0 {
		return c.notes[i], true
	}
	return model.Note{}, false
}

// Len reports the number of cached notes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

// Put inserts the note in created_at order, or overwrites the existing entry
// with the same id. Overwrite keeps the by-id uniqueness invariant: an
// optimistic entry and its feed echo collapse into one. Applying the same
// note twice is a no-op the second time.
func (c *Cache) Put(n model.Note) {
	c.mu.Lock()
	if i := c.find(n.ID); i >= 0 {
		moved := !c.notes[i].CreatedAt.Equal(n.CreatedAt)
		c.notes[i] = n
		if moved {
			sort.SliceStable(c.notes, func(a, b int) bool {
				return c.notes[a].CreatedAt.Before(c.notes[b].CreatedAt)
			})
		}
	} else {
		at := sort.Search(len(c.notes), func(j int) bool {
			return c.notes[j].CreatedAt.After(n.CreatedAt)
		})
		c.notes = append(c.notes, model.Note{})
		copy(c.notes[at+1:], c.notes[at:])
		c.notes[at] = n
	}
	c.mu.Unlock()
	c.notify()
}

// Mutate applies fn to the note with the given id, in place.
func (c *Cache) Mutate(id uuid.UUID, fn func(*model.Note)) bool {
	c.mu.Lock()
	i := c.find(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	fn(&c.notes[i])
	c.mu.Unlock()
	c.notify()
	return true
}

// Remove drops the note with the given id; absent ids are a no-op.
func (c *Cache) Remove(id uuid.UUID) bool {
	c.mu.Lock()
	i := c.find(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.notes = append(c.notes[:i], c.notes[i+1:]...)
	c.mu.Unlock()
	c.notify()
	return true
}

// ReplaceAll swaps in a full snapshot (reconciliation reload), re-sorting it
// by created_at.
func (c *Cache) ReplaceAll(notes []model.Note) {
	cp := make([]model.Note, len(notes))
	copy(cp, notes)
	sort.SliceStable(cp, func(a, b int) bool { return cp[a].CreatedAt.Before(cp[b].CreatedAt) })
	c.mu.Lock()
	c.notes = cp
	c.mu.Unlock()
	c.notify()
}

func (c *Cache) find(id uuid.UUID) int {
	for i := range c.notes {
		if c.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Cache) notify() {
	c.mu.Lock()
	obs := append([]func(){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range obs {
		fn()
	}
}
