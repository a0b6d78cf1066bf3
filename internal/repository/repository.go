package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidsession/internal/models"
)

// Persistent storage of the service
type Storage interface {
	User() UserRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// Arguments to create a user
// Either PasswordHash or both OAuthProvider and OAuthSubject must be set
type CreateUserParams struct {
	Username      string
	Email         *string
	PasswordHash  *string
	Role          string
	OAuthProvider *string
	OAuthSubject  *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username, email or oauth identity exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by it's id, username or oauth identity
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByOAuth(ctx context.Context, provider string, subject string) (models.User, error)
}
