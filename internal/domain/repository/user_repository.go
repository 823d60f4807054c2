package repository

import (
	"context"

	"github.com/cadot-io/user-api/internal/domain/entity"
)

// UserRepository defines the persistence operations for user accounts.
// Uniqueness of email and username is enforced by the store's constraints;
// Create and Update surface constraint violations as apperrors.ErrEmailTaken
// or apperrors.ErrUsernameTaken.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
	ListPage(ctx context.Context, offset, limit int) ([]*entity.User, int64, error)
}
