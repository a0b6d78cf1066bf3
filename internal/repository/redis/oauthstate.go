package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/vidsession/internal/apperrors"
	"github.com/nkiryanov/vidsession/internal/models"
)

const oauthStateKeyPrefix = "oauth_state:"

// One-shot storage of pending oauth authorization requests keyed by state
type OAuthStateStore struct {
	rdb     goredis.UniversalClient
	timeout time.Duration
}

func NewOAuthStateStore(rdb goredis.UniversalClient, timeout time.Duration) *OAuthStateStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &OAuthStateStore{rdb: rdb, timeout: timeout}
}

func (s *OAuthStateStore) Save(ctx context.Context, state string, pending models.OAuthState, ttl time.Duration) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode oauth state: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.Set(ctx, oauthStateKeyPrefix+state, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

// Take returns the pending request and removes it, so every state is accepted once
// Unknown or expired state returns apperrors.ErrOAuthStateInvalid
func (s *OAuthStateStore) Take(ctx context.Context, state string) (models.OAuthState, error) {
	var pending models.OAuthState

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.rdb.GetDel(ctx, oauthStateKeyPrefix+state).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return pending, apperrors.ErrOAuthStateInvalid
	case err != nil:
		return pending, fmt.Errorf("redis error: %w", err)
	}

	if err := json.Unmarshal(data, &pending); err != nil {
		return pending, fmt.Errorf("%w: %w", apperrors.ErrOAuthStateInvalid, err)
	}

	return pending, nil
}
