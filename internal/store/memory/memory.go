// Package memory is an in-process Store used by the sync engine tests and
// by offline experiments. It mirrors the server's merge semantics: inserts
// upsert by id, and every committed write is echoed to the owner's live
// subscriptions.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/store"
)

const subBuffer = 64

type Store struct {
	mu    sync.Mutex
	notes map[uuid.UUID]model.Note
	subs  map[*sub]struct{}

	// FailNext makes the next mutating call return this error, simulating a
	// transient outage.
	FailNext error
}

func New() *Store {
	return &Store{
		notes: make(map[uuid.UUID]model.Note),
		subs:  make(map[*sub]struct{}),
	}
}

func (s *Store) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func (s *Store) InsertNote(_ context.Context, n model.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if prev, ok := s.notes[n.ID]; ok && prev.UserID != n.UserID {
		return errs.ErrAlreadyExists
	}
	s.notes[n.ID] = n
	s.publish(model.ChangeEvent{Kind: model.EventInsert, Note: n})
	return nil
}

func (s *Store) UpdateNote(_ context.Context, userID, id uuid.UUID, patch model.NotePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return errs.ErrNotFound
	}
	if patch.Content != nil {
		n.Content = *patch.Content
	}
	if patch.Attachment != nil {
		n.Attachment = patch.Attachment
	}
	if patch.IsPinned != nil {
		n.IsPinned = *patch.IsPinned
	}
	if !patch.UpdatedAt.IsZero() {
		n.UpdatedAt = patch.UpdatedAt
	}
	s.notes[id] = n
	s.publish(model.ChangeEvent{Kind: model.EventUpdate, Note: n})
	return nil
}

func (s *Store) DeleteNote(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return errs.ErrNotFound
	}
	delete(s.notes, id)
	s.publish(model.ChangeEvent{Kind: model.EventDelete, Note: n})
	return nil
}

func (s *Store) ListNotes(_ context.Context, userID uuid.UUID) ([]model.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Note
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UploadBlob satisfies store.BlobStore with a fake URL.
func (s *Store) UploadBlob(_ context.Context, name, _ string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return "", err
	}
	return "mem://blobs/" + name, nil
}

func (s *Store) Subscribe(_ context.Context, userID uuid.UUID) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sb := &sub{
		owner:  s,
		userID: userID,
		events: make(chan model.ChangeEvent, subBuffer),
	}
	s.subs[sb] = struct{}{}
	return sb, nil
}

// publish delivers to every matching subscription; callers hold s.mu.
func (s *Store) publish(ev model.ChangeEvent) {
	for sb := range s.subs {
		if sb.userID != ev.Note.UserID {
			continue
		}
		select {
		case sb.events <- ev:
		default:
			// a full buffer in tests means the consumer is gone
		}
	}
}

type sub struct {
	owner  *Store
	userID uuid.UUID
	events chan model.ChangeEvent
	once   sync.Once
}

func (sb *sub) Events() <-chan model.ChangeEvent { return sb.events }

func (sb *sub) Err() error { return nil }

func (sb *sub) Close() error {
	sb.once.Do(func() {
		sb.owner.mu.Lock()
		delete(sb.owner.subs, sb)
		sb.owner.mu.Unlock()
		close(sb.events)
	})
	return nil
}
