// Package syncer keeps the in-memory note cache converged with the backing
// store: it attaches to the owner's change feed, seeds the cache from a full
// list, and folds every feed event into the cache with an idempotent
// by-id merge.
package syncer

import (
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/notebook"
)

// Reconciler folds change-feed events into the cache. The merge is keyed by
// note id only, so replaying the same event any number of times leaves the
// cache in the same state.
type Reconciler struct {
	cache *notebook.Cache
	log   *zap.Logger
}

func NewReconciler(cache *notebook.Cache, log *zap.Logger) *Reconciler {
	return &Reconciler{cache: cache, log: log}
}

// Apply merges one event into the cache. Inserts and updates both resolve to
// overwrite-or-append: an update for a note the cache never saw behaves as a
// missed insert, and a delete for an absent note is a no-op. The feed echoes
// the client's own writes back; the cache row already carries the same data,
// so the echo rewrites it in place without visible effect.
func (r *Reconciler) Apply(ev model.ChangeEvent) {
	switch ev.Kind {
	case model.EventInsert, model.EventUpdate:
		r.cache.Put(ev.Note)
	case model.EventDelete:
		if !r.cache.Remove(ev.Note.ID) {
			r.log.Debug("delete event for absent note", zap.String("id", ev.Note.ID.String()))
		}
	default:
		r.log.Warn("unknown change event kind", zap.String("kind", string(ev.Kind)))
	}
}
