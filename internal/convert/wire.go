// Package convert maps domain entities to and from their JSON wire shapes.
// Wire payloads are decoded and validated here before they enter the engine;
// nothing downstream deals with loosely-typed records.
package convert

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
)

// NoteWire is the note record shape at the store/API boundary.
type NoteWire struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	FileURL   string    `json:"file_url,omitempty"`
	FileType  string    `json:"file_type,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	IsPinned  bool      `json:"is_pinned,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventWire is one change-feed event on the wire.
type EventWire struct {
	Kind string   `json:"kind"`
	Note NoteWire `json:"note"`
}

// UserWire carries the resolved identity inside a claimed credential payload.
type UserWire struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// TokensWire is the raw credential payload returned by a successful claim.
type TokensWire struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	User         UserWire  `json:"user"`
}

// InboxWire is a capture record on the wire.
type InboxWire struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Status    string            `json:"status"`
	Items     []model.InboxItem `json:"items"`
	CreatedAt time.Time         `json:"created_at"`
}

// ToWireNote flattens a note, including its optional attachment, into the
// wire shape.
func ToWireNote(n model.Note) NoteWire {
	w := NoteWire{
		ID:        n.ID.String(),
		UserID:    n.UserID.String(),
		Content:   n.Content,
		IsPinned:  n.IsPinned,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	if n.Attachment != nil {
		w.FileURL = n.Attachment.URL
		w.FileType = n.Attachment.Kind
		w.FileName = n.Attachment.Name
	}
	return w
}

// FromWireNote validates and converts a wire note into the domain entity.
func FromWireNote(w NoteWire) (model.Note, error) {
	id, err := uuid.FromString(w.ID)
	if err != nil {
		return model.Note{}, fmt.Errorf("note id: %w", err)
	}
	userID, err := uuid.FromString(w.UserID)
	if err != nil {
		return model.Note{}, fmt.Errorf("note user_id: %w", err)
	}
	n := model.Note{
		ID:        id,
		UserID:    userID,
		Content:   w.Content,
		IsPinned:  w.IsPinned,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	if w.FileURL != "" {
		n.Attachment = &model.Attachment{URL: w.FileURL, Kind: w.FileType, Name: w.FileName}
	}
	return n, nil
}

// ToWireEvent converts a change event for transport.
func ToWireEvent(ev model.ChangeEvent) EventWire {
	return EventWire{Kind: string(ev.Kind), Note: ToWireNote(ev.Note)}
}

// FromWireEvent validates the event kind and payload.
func FromWireEvent(w EventWire) (model.ChangeEvent, error) {
	kind := model.EventKind(w.Kind)
	switch kind {
	case model.EventInsert, model.EventUpdate, model.EventDelete:
	default:
		return model.ChangeEvent{}, fmt.Errorf("unknown event kind %q", w.Kind)
	}
	n, err := FromWireNote(w.Note)
	if err != nil {
		return model.ChangeEvent{}, err
	}
	return model.ChangeEvent{Kind: kind, Note: n}, nil
}

// ToWireTokens converts minted credentials for delivery.
func ToWireTokens(t model.Tokens) TokensWire {
	return TokensWire{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
		User: UserWire{
			ID:        t.User.ID.String(),
			Email:     t.User.Email,
			FirstName: t.User.FirstName,
			Username:  t.User.Username,
		},
	}
}

// FromWireTokens validates a claimed credential payload.
func FromWireTokens(w TokensWire) (model.Tokens, error) {
	if w.AccessToken == "" {
		return model.Tokens{}, fmt.Errorf("empty access_token")
	}
	uid, err := uuid.FromString(w.User.ID)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("user id: %w", err)
	}
	return model.Tokens{
		AccessToken:  w.AccessToken,
		RefreshToken: w.RefreshToken,
		ExpiresAt:    w.ExpiresAt,
		User: model.UserInfo{
			ID:        uid,
			Email:     w.User.Email,
			FirstName: w.User.FirstName,
			Username:  w.User.Username,
		},
	}, nil
}

// ToWireInbox converts a capture record for transport.
func ToWireInbox(r model.InboxRecord) InboxWire {
	return InboxWire{
		ID:        r.ID.String(),
		UserID:    r.UserID.String(),
		Status:    string(r.Status),
		Items:     r.Items,
		CreatedAt: r.CreatedAt,
	}
}

// FromWireInbox validates and converts a wire capture record.
func FromWireInbox(w InboxWire) (model.InboxRecord, error) {
	id, err := uuid.FromString(w.ID)
	if err != nil {
		return model.InboxRecord{}, fmt.Errorf("inbox id: %w", err)
	}
	userID, err := uuid.FromString(w.UserID)
	if err != nil {
		return model.InboxRecord{}, fmt.Errorf("inbox user_id: %w", err)
	}
	status := model.InboxStatus(w.Status)
	switch status {
	case model.InboxNew, model.InboxProcessed:
	default:
		return model.InboxRecord{}, fmt.Errorf("unknown inbox status %q", w.Status)
	}
	return model.InboxRecord{ID: id, UserID: userID, Status: status, Items: w.Items, CreatedAt: w.CreatedAt}, nil
}
