// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
)

// NoteRepository provides per-owner access to durable notes.
type NoteRepository interface {
	// Insert persists a note under its client-generated id. Re-inserting the
	// same id overwrites content and timestamps (idempotent replay).
	Insert(ctx context.Context, n model.Note) error

	// Update applies a partial update and returns the stored row.
	Update(ctx context.Context, userID, id uuid.UUID, patch model.NotePatch) (model.Note, error)

	// Delete removes a note by id.
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// Get loads a single note by id.
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Note, error)

	// ListByUser returns all notes of one owner ordered by created_at ASC.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Note, error)
}
