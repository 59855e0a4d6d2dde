package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
)

// InboxRepository stores structured capture records awaiting triage.
type InboxRepository interface {
	// Insert persists a new capture record.
	Insert(ctx context.Context, r model.InboxRecord) error
	// ListNew returns unprocessed records ordered by created_at ASC.
	ListNew(ctx context.Context, userID uuid.UUID) ([]model.InboxRecord, error)
	// SetStatus flips a record's status.
	SetStatus(ctx context.Context, userID, id uuid.UUID, status model.InboxStatus) error
}
