package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/models"
	"github.com/nkiryanov/vidsession/internal/repository"
	"github.com/nkiryanov/vidsession/internal/service/hasher"
)

const (
	maxUsernameLength = 150

	// Attempts to pick a free username for a new oauth user
	oauthCreateAttempts = 3
)

type passwordHasher interface {
	Hash(password string) (string, error)
	Compare(hashed string, password string) error
}

type UserService struct {
	hasher  passwordHasher
	storage repository.Storage

	dummyOnce sync.Once
	dummyHash string
}

func NewService(h passwordHasher, storage repository.Storage) *UserService {
	if h == nil {
		h = hasher.Default
	}

	return &UserService{
		hasher:  h,
		storage: storage,
	}
}

func (s *UserService) CreateUser(ctx context.Context, username string, password string, email *string) (models.User, error) {
	var user models.User
	if password == "" {
		return user, errors.New("can't use empty password")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		Role:         models.RoleUser,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// VerifyPassword returns user if username exists and password matches
// Otherwise returns apperrors.ErrInvalidCredentials, without telling which part was wrong
func (s *UserService) VerifyPassword(ctx context.Context, username string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Spend the same time as for existing user
		_ = s.hasher.Compare(s.dummy(), password)
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, err
	}

	if user.HashedPassword == nil {
		_ = s.hasher.Compare(s.dummy(), password)
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(*user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

// FindOrCreateOAuthUser returns user linked to the provider identity, creating one on first login
func (s *UserService) FindOrCreateOAuthUser(ctx context.Context, identity models.OAuthIdentity) (models.User, error) {
	var user models.User
	if identity.Provider == "" || identity.Subject == "" {
		return user, errors.New("oauth identity must have provider and subject")
	}

	for attempt := range oauthCreateAttempts {
		user, err := s.storage.User().GetUserByOAuth(ctx, identity.Provider, identity.Subject)
		switch {
		case err == nil:
			return user, nil
		case !errors.Is(err, apperrors.ErrUserNotFound):
			return user, err
		}

		params := repository.CreateUserParams{
			Username:      oauthUsername(identity, attempt),
			Role:          models.RoleUser,
			OAuthProvider: &identity.Provider,
			OAuthSubject:  &identity.Subject,
		}
		// Email may belong to another account already, then the user is created without it
		if attempt == 0 && identity.Email != "" {
			params.Email = &identity.Email
		}

		user, err = s.storage.User().CreateUser(ctx, params)
		switch {
		case err == nil:
			return user, nil
		case !errors.Is(err, apperrors.ErrUserAlreadyExists):
			return user, fmt.Errorf("can't create user. Err: %w", err)
		}
	}

	return user, fmt.Errorf("can't pick username for oauth user: %w", apperrors.ErrUserAlreadyExists)
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

func oauthUsername(identity models.OAuthIdentity, attempt int) string {
	base, _, _ := strings.Cut(identity.Email, "@")
	if base == "" {
		base = identity.Provider + "-" + identity.Subject
	}
	suffix := ""
	if attempt > 0 {
		suffix = "-" + uuid.NewString()[:8]
	}
	// Username length is counted in characters, never cut a multibyte one
	if runes := []rune(base); len(runes)+len(suffix) > maxUsernameLength {
		base = string(runes[:maxUsernameLength-len(suffix)])
	}
	return base + suffix
}
