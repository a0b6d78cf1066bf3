package client

import (
	"sync"
	"time"
)

// TokenCache holds the current access token in memory only
// Consumers read it, the client writes it
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	updatedAt time.Time
}

func (c *TokenCache) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UpdatedAt is the time the token was last replaced, zero if never
func (c *TokenCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

func (c *TokenCache) set(token string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.updatedAt = at
}

func (c *TokenCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.updatedAt = time.Time{}
}
