// Package model defines domain entities used by services, stores and the sync engine.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Attachment references an external binary resource linked to a note.
// The URL is resolved asynchronously after the note is created.
type Attachment struct {
	URL  string
	Kind string // MIME type or coarse kind ("image", "audio", ...)
	Name string // display name
}

// Note is a single short-form note owned by one user.
//
// The ID is either client-generated (optimistic entry) or store-assigned;
// a store-assigned id permanently replaces the client one for that logical note.
type Note struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Content    string
	Attachment *Attachment // nil when the note has no attachment
	IsPinned   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NotePatch is a partial note update at the store boundary.
// Nil fields are left untouched.
type NotePatch struct {
	Content    *string
	Attachment *Attachment
	IsPinned   *bool
	UpdatedAt  time.Time
}

// EventKind discriminates change-feed events.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChangeEvent is a tagged variant carrying one note mutation observed at the
// backing store. For EventDelete only Note.ID and Note.UserID are meaningful.
type ChangeEvent struct {
	Kind EventKind
	Note Note
}

// UserInfo is the resolved identity delivered together with minted tokens.
type UserInfo struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	Username  string
}

// Tokens collects issued access/refresh tokens plus the resolved user.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry (for diagnostics)
	User         UserInfo
}

// AuthSession is a one-shot capability record: whoever claims it first with
// the correct id receives Tokens, and the record is deleted in the same
// operation. Absence of a record means "pending"; the broker never writes a
// pending row.
type AuthSession struct {
	ID        string // client-generated, high-entropy
	Tokens    Tokens
	CreatedAt time.Time
}

// User represents an account provisioned from a messaging-platform identity.
type User struct {
	ID         uuid.UUID
	Email      string // deterministic synthetic email, unique
	PwdHash    []byte // Argon2id(derived password, SaltAuth)
	SaltAuth   []byte
	TelegramID int64
	FirstName  string
	Username   string
	CreatedAt  time.Time
}

// InboxItem is one capture-queue entry extracted from a structured record.
type InboxItem struct {
	Content string   `json:"content"`
	Kind    string   `json:"type"`
	Tags    []string `json:"tags,omitempty"`
}

// InboxStatus enumerates capture-record states.
type InboxStatus string

const (
	InboxNew       InboxStatus = "new"
	InboxProcessed InboxStatus = "processed"
)

// InboxRecord is a structured capture record awaiting triage. One record may
// carry several items; it flips to processed once every item was resolved.
type InboxRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    InboxStatus
	Items     []InboxItem
	CreatedAt time.Time
}
