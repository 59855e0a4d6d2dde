package repository

import (
	"context"

	"github.com/fleetsapp/fleets/internal/model"
)

// SessionRepository stores one-shot auth session records. A record only ever
// exists in fulfilled state; "pending" is the absence of a row.
type SessionRepository interface {
	// Upsert writes the fulfilled session keyed by its client-generated id,
	// replacing any previous fulfillment for the same id.
	Upsert(ctx context.Context, s model.AuthSession) error

	// Claim atomically reads and deletes the session, returning its tokens.
	// Returns errs.ErrSessionPending when no record exists.
	Claim(ctx context.Context, id string) (model.Tokens, error)
}
