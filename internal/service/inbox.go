package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/repository"
)

// InboxService manages the structured capture queue. Records enter from the
// capture pipeline (already structured) and leave once the client resolved
// every item they carry.
type InboxService interface {
	// Capture stores a new record; a missing id is generated.
	Capture(ctx context.Context, r model.InboxRecord) (model.InboxRecord, error)
	// ListNew returns unprocessed records ordered by created_at ASC.
	ListNew(ctx context.Context, userID uuid.UUID) ([]model.InboxRecord, error)
	// MarkProcessed flips a record to processed.
	MarkProcessed(ctx context.Context, userID, id uuid.UUID) error
}

type InboxServiceImpl struct {
	repo repository.InboxRepository
}

// NewInboxService constructs InboxService.
func NewInboxService(repo repository.InboxRepository) *InboxServiceImpl {
	return &InboxServiceImpl{repo: repo}
}

// Capture validates and stores the record with status new.
func (s *InboxServiceImpl) Capture(ctx context.Context, r model.InboxRecord) (model.InboxRecord, error) {
	if r.UserID == uuid.Nil {
		return model.InboxRecord{}, errors.New("validation: empty user_id")
	}
	if len(r.Items) == 0 {
		return model.InboxRecord{}, errors.New("validation: no items")
	}
	if r.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return model.InboxRecord{}, err
		}
		r.ID = id
	}
	r.Status = model.InboxNew
	if err := s.repo.Insert(ctx, r); err != nil {
		return model.InboxRecord{}, err
	}
	return r, nil
}

// ListNew returns the owner's unprocessed records.
func (s *InboxServiceImpl) ListNew(ctx context.Context, userID uuid.UUID) ([]model.InboxRecord, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty user_id")
	}
	return s.repo.ListNew(ctx, userID)
}

// MarkProcessed flips the record's status.
func (s *InboxServiceImpl) MarkProcessed(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return errors.New("validation: empty user_id/id")
	}
	return s.repo.SetStatus(ctx, userID, id, model.InboxProcessed)
}
