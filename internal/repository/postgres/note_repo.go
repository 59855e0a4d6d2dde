package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

// NoteRepo implements NoteRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

// Insert persists a note under its client-generated id. A replayed insert for
// the same id (offline queue re-send) overwrites content and updated_at, so
// the operation is idempotent per id.
func (r *NoteRepo) Insert(ctx context.Context, n model.Note) error {
	const q = `
INSERT INTO notes (id, user_id, content, file_url, file_type, file_name, is_pinned, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE
SET content=EXCLUDED.content, file_url=EXCLUDED.file_url,
    file_type=EXCLUDED.file_type, file_name=EXCLUDED.file_name,
    is_pinned=EXCLUDED.is_pinned, updated_at=EXCLUDED.updated_at
WHERE notes.user_id=EXCLUDED.user_id`
	fileURL, fileType, fileName := attachmentCols(n.Attachment)
	tag, err := r.db.Pool.Exec(ctx, q,
		n.ID, n.UserID, n.Content, fileURL, fileType, fileName, n.IsPinned, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return err
	}
	// an id held by another owner arbitrates through ON CONFLICT, fails the
	// DO UPDATE's WHERE and completes without touching any row
	if tag.RowsAffected() == 0 {
		return errs.ErrAlreadyExists
	}
	return nil
}

// Update applies a partial update and returns the stored row.
func (r *NoteRepo) Update(ctx context.Context, userID, id uuid.UUID, patch model.NotePatch) (model.Note, error) {
	const q = `
UPDATE notes
SET content   = COALESCE($3, content),
    file_url  = COALESCE($4, file_url),
    file_type = COALESCE($5, file_type),
    file_name = COALESCE($6, file_name),
    is_pinned = COALESCE($7, is_pinned),
    updated_at = $8
WHERE id=$1 AND user_id=$2
RETURNING id, user_id, content, file_url, file_type, file_name, is_pinned, created_at, updated_at`
	var fileURL, fileType, fileName *string
	if patch.Attachment != nil {
		fileURL, fileType, fileName = attachmentCols(patch.Attachment)
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	row := r.db.Pool.QueryRow(ctx, q, id, userID, patch.Content, fileURL, fileType, fileName, patch.IsPinned, updatedAt)
	n, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Note{}, errs.ErrNotFound
	}
	return n, err
}

// Delete removes a note by id.
func (r *NoteRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const q = `DELETE FROM notes WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Get loads a single note by id.
func (r *NoteRepo) Get(ctx context.Context, userID, id uuid.UUID) (*model.Note, error) {
	const q = `
SELECT id, user_id, content, file_url, file_type, file_name, is_pinned, created_at, updated_at
FROM notes WHERE id=$1 AND user_id=$2`
	n, err := scanNote(r.db.Pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByUser returns all notes of one owner ordered by created_at ASC.
func (r *NoteRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Note, error) {
	const q = `
SELECT id, user_id, content, file_url, file_type, file_name, is_pinned, created_at, updated_at
FROM notes WHERE user_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func attachmentCols(a *model.Attachment) (url, kind, name *string) {
	if a == nil {
		return nil, nil, nil
	}
	return &a.URL, &a.Kind, &a.Name
}

func scanNote(row pgx.Row) (model.Note, error) {
	var (
		n                         model.Note
		fileURL, fileType, fileNm *string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Content, &fileURL, &fileType, &fileNm, &n.IsPinned, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return model.Note{}, err
	}
	if fileURL != nil && *fileURL != "" {
		n.Attachment = &model.Attachment{URL: *fileURL}
		if fileType != nil {
			n.Attachment.Kind = *fileType
		}
		if fileNm != nil {
			n.Attachment.Name = *fileNm
		}
	}
	return n, nil
}
