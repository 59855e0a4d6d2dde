package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/fleetsapp/fleets/internal/model"
)

// UserRepository provides access to accounts provisioned from bot identities.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByTelegramID loads a user by the messaging-platform identity.
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}
