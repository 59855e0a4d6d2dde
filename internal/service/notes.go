package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/feed"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/repository"
)

const maxContentLen = 64 << 10 // 64 KiB of text is plenty for a short-form note

// NoteService defines durable note operations plus the owner-scoped change feed.
type NoteService interface {
	// Insert persists a note under its client-generated id and emits an
	// insert event to the owner's feed.
	Insert(ctx context.Context, n model.Note) error
	// Update applies a partial update and emits an update event.
	Update(ctx context.Context, userID, id uuid.UUID, patch model.NotePatch) (model.Note, error)
	// Delete removes a note and emits a delete event.
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// List returns all notes of the owner ordered by created_at ASC.
	List(ctx context.Context, userID uuid.UUID) ([]model.Note, error)
	// Subscribe attaches a change-feed consumer for the owner.
	Subscribe(userID uuid.UUID) (*feed.Sub, error)
}

type NoteServiceImpl struct {
	repo repository.NoteRepository
	hub  *feed.Hub
}

// NewNoteService constructs NoteService publishing into the given hub.
func NewNoteService(repo repository.NoteRepository, hub *feed.Hub) *NoteServiceImpl {
	return &NoteServiceImpl{repo: repo, hub: hub}
}

// Insert validates and persists the note, then publishes the echo event.
// Events are published only after the durable write succeeds, in commit order.
func (s *NoteServiceImpl) Insert(ctx context.Context, n model.Note) error {
	if n.ID == uuid.Nil || n.UserID == uuid.Nil {
		return errors.New("validation: empty id/user_id")
	}
	if len(n.Content) > maxContentLen {
		return errors.New("validation: content too large")
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return err
	}
	s.hub.Publish(model.ChangeEvent{Kind: model.EventInsert, Note: n})
	return nil
}

// Update applies the patch and publishes the stored row.
func (s *NoteServiceImpl) Update(ctx context.Context, userID, id uuid.UUID, patch model.NotePatch) (model.Note, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return model.Note{}, errors.New("validation: empty user_id/id")
	}
	if patch.Content != nil && len(*patch.Content) > maxContentLen {
		return model.Note{}, errors.New("validation: content too large")
	}
	n, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		return model.Note{}, err
	}
	s.hub.Publish(model.ChangeEvent{Kind: model.EventUpdate, Note: n})
	return n, nil
}

// Delete removes the note and publishes a tombstone event.
func (s *NoteServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return errors.New("validation: empty user_id/id")
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.hub.Publish(model.ChangeEvent{Kind: model.EventDelete, Note: model.Note{ID: id, UserID: userID}})
	return nil
}

// List returns the owner's notes in created_at order.
func (s *NoteServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Note, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty user_id")
	}
	return s.repo.ListByUser(ctx, userID)
}

// Subscribe attaches a feed consumer for the owner.
func (s *NoteServiceImpl) Subscribe(userID uuid.UUID) (*feed.Sub, error) {
	return s.hub.Subscribe(userID)
}
