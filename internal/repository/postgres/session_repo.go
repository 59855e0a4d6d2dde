package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL. Rows are
// single-use capabilities: Claim reads and deletes in one statement, so at
// most one poller ever receives the tokens.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Upsert writes the fulfilled session keyed by its client-generated id.
func (r *SessionRepo) Upsert(ctx context.Context, s model.AuthSession) error {
	payload, err := json.Marshal(convert.ToWireTokens(s.Tokens))
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	const q = `
INSERT INTO auth_sessions (id, status, tokens)
VALUES ($1, 'success', $2)
ON CONFLICT (id) DO UPDATE SET tokens=EXCLUDED.tokens, created_at=now()`
	_, err = r.db.Pool.Exec(ctx, q, s.ID, payload)
	return err
}

// Claim atomically reads and deletes the session record.
func (r *SessionRepo) Claim(ctx context.Context, id string) (model.Tokens, error) {
	const q = `DELETE FROM auth_sessions WHERE id=$1 RETURNING tokens`
	var payload []byte
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tokens{}, errs.ErrSessionPending
		}
		return model.Tokens{}, err
	}
	var w convert.TokensWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return model.Tokens{}, fmt.Errorf("unmarshal tokens: %w", err)
	}
	return convert.FromWireTokens(w)
}
