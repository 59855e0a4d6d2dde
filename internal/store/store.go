// Package store defines the backing-store boundary consumed by the client
// sync engine. The store is durable but asynchronous; every call is a
// suspension point and may be slow or fail transiently.
package store

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
)

// Subscription is one live change-feed attachment for a single owner.
// Events arrive in delivery order on Events; the channel is closed on
// teardown or transport error, after which Err reports the cause (nil on
// clean close).
type Subscription interface {
	Events() <-chan model.ChangeEvent
	Err() error
	Close() error
}

// Store is the durable note storage plus its change feed, scoped to the
// authenticated owner.
type Store interface {
	// InsertNote persists a note using the note's own id as the durable
	// primary key, so the change-feed echo can be deduplicated by id.
	InsertNote(ctx context.Context, n model.Note) error

	// UpdateNote applies a partial update keyed by id.
	UpdateNote(ctx context.Context, userID, id uuid.UUID, patch model.NotePatch) error

	// DeleteNote removes a note. Deleting an absent note returns errs.ErrNotFound.
	DeleteNote(ctx context.Context, userID, id uuid.UUID) error

	// ListNotes returns all of the owner's notes ordered by created_at ascending.
	ListNotes(ctx context.Context, userID uuid.UUID) ([]model.Note, error)

	// Subscribe attaches to the owner's change feed. Only one subscription
	// should be active per session; callers tear down any existing one first.
	Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error)
}

// BlobStore uploads attachment binaries and returns their resolved URL.
type BlobStore interface {
	UploadBlob(ctx context.Context, name, contentType string, data []byte) (url string, err error)
}
