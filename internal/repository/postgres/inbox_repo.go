package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

// structuredData mirrors the jsonb column layout of capture records.
type structuredData struct {
	Items []model.InboxItem `json:"items"`
}

// InboxRepo implements InboxRepository using PostgreSQL.
type InboxRepo struct{ db *DB }

// NewInboxRepo constructs an inbox repository.
func NewInboxRepo(db *DB) *InboxRepo { return &InboxRepo{db: db} }

// Insert persists a new capture record.
func (r *InboxRepo) Insert(ctx context.Context, rec model.InboxRecord) error {
	payload, err := json.Marshal(structuredData{Items: rec.Items})
	if err != nil {
		return fmt.Errorf("marshal structured_data: %w", err)
	}
	const q = `
INSERT INTO inbox (id, user_id, status, structured_data)
VALUES ($1, $2, $3, $4)`
	_, err = r.db.Pool.Exec(ctx, q, rec.ID, rec.UserID, string(rec.Status), payload)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// ListNew returns unprocessed records ordered by created_at ASC.
func (r *InboxRepo) ListNew(ctx context.Context, userID uuid.UUID) ([]model.InboxRecord, error) {
	const q = `
SELECT id, user_id, status, structured_data, created_at
FROM inbox WHERE user_id=$1 AND status='new'
ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InboxRecord
	for rows.Next() {
		var (
			rec     model.InboxRecord
			status  string
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &status, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = model.InboxStatus(status)
		var data structuredData
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("unmarshal structured_data: %w", err)
		}
		rec.Items = data.Items
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetStatus flips a record's status.
func (r *InboxRepo) SetStatus(ctx context.Context, userID, id uuid.UUID, status model.InboxStatus) error {
	const q = `UPDATE inbox SET status=$3 WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, userID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
