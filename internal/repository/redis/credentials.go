package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/models"
)

const (
	DefaultTimeout = 2 * time.Second

	refreshKeyPrefix  = "refresh_token:"
	issuanceKeyPrefix = "access_token:"

	fieldAccess     = "access"
	fieldExpiresAt  = "expires_at"
	fieldSuperseded = "superseded"
)

type hasher interface {
	Hash(value string) (string, error)
	Compare(hashed string, value string) error
}

// Per-subject store of the active refresh token hash and the recent-issuance marker
// At most one refresh token is valid for a subject: every Put replaces the previous one
type CredentialStore struct {
	rdb     goredis.UniversalClient
	hasher  hasher
	timeout time.Duration
}

// Every command is bounded by timeout. Zero timeout means DefaultTimeout
func NewCredentialStore(rdb goredis.UniversalClient, h hasher, timeout time.Duration) *CredentialStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &CredentialStore{rdb: rdb, hasher: h, timeout: timeout}
}

func refreshKey(subjectID uuid.UUID) string {
	return refreshKeyPrefix + subjectID.String()
}

func issuanceKey(subjectID uuid.UUID) string {
	return issuanceKeyPrefix + subjectID.String()
}

// Put hashes the refresh token and stores it, replacing any existing one
// Returns the hash it replaced, empty if there was none
func (s *CredentialStore) Put(ctx context.Context, subjectID uuid.UUID, refreshToken string, ttl time.Duration) (string, error) {
	hash, err := s.hasher.Hash(refreshToken)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	replaced, err := s.rdb.SetArgs(ctx, refreshKey(subjectID), hash, goredis.SetArgs{TTL: ttl, Get: true}).Result()
	switch {
	case err == nil:
		return replaced, nil
	case errors.Is(err, goredis.Nil):
		return "", nil
	default:
		return "", fmt.Errorf("redis error: %w", err)
	}
}

// Get returns stored refresh token hash
// If there is no one returns apperrors.ErrCredentialNotFound
func (s *CredentialStore) Get(ctx context.Context, subjectID uuid.UUID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hash, err := s.rdb.Get(ctx, refreshKey(subjectID)).Result()
	switch {
	case err == nil:
		return hash, nil
	case errors.Is(err, goredis.Nil):
		return "", apperrors.ErrCredentialNotFound
	default:
		return "", fmt.Errorf("redis error: %w", err)
	}
}

// Matches reports whether candidate is the active refresh token of the subject
// Absent record is not an error, it never matches
func (s *CredentialStore) Matches(ctx context.Context, subjectID uuid.UUID, candidate string) (bool, error) {
	hash, err := s.Get(ctx, subjectID)
	switch {
	case errors.Is(err, apperrors.ErrCredentialNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	return s.hasher.Compare(hash, candidate) == nil, nil
}

// Delete the subject's refresh token. Deleting absent record is not an error
func (s *CredentialStore) Delete(ctx context.Context, subjectID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.Del(ctx, refreshKey(subjectID)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

// MarkIssuance records the access token issued by the latest rotation
// The marker replaces the previous one as a whole and expires after ttl
func (s *CredentialStore) MarkIssuance(ctx context.Context, subjectID uuid.UUID, issuance models.Issuance, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := issuanceKey(subjectID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			fieldAccess:     issuance.Access.Value,
			fieldExpiresAt:  issuance.Access.ExpiresAt.Unix(),
			fieldSuperseded: issuance.SupersededHash,
		})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

// RecentIssuance returns the marker if it is not expired yet
// If there is no one returns apperrors.ErrIssuanceNotFound
func (s *CredentialStore) RecentIssuance(ctx context.Context, subjectID uuid.UUID) (models.Issuance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields, err := s.rdb.HGetAll(ctx, issuanceKey(subjectID)).Result()
	if err != nil {
		return models.Issuance{}, fmt.Errorf("redis error: %w", err)
	}

	access := fields[fieldAccess]
	if access == "" {
		return models.Issuance{}, apperrors.ErrIssuanceNotFound
	}

	expiresAt, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return models.Issuance{}, fmt.Errorf("corrupted issuance marker: %w", err)
	}

	return models.Issuance{
		Access:         models.IssuedToken{Value: access, ExpiresAt: time.Unix(expiresAt, 0).UTC()},
		SupersededHash: fields[fieldSuperseded],
	}, nil
}

// Superseded reports whether candidate is the refresh token replaced by the marked rotation
func (s *CredentialStore) Superseded(issuance models.Issuance, candidate string) bool {
	if issuance.SupersededHash == "" {
		return false
	}

	return s.hasher.Compare(issuance.SupersededHash, candidate) == nil
}
