package cache

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"au-panel/internal/models"
)

type sessionEntry struct {
	identity  models.Identity
	expiresAt time.Time
}

// SessionCache maps opaque bearer tokens to identities. Tokens are random
// values, never derived from user data. Expired entries are purged lazily;
// when the cache is full the entry closest to expiry is dropped.
type SessionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]*sessionEntry
}

func NewSessionCache(maxSize int, ttl time.Duration) *SessionCache {
	return &SessionCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*sessionEntry),
	}
}

// CreateToken mints a token for the identity and stores it with a fresh TTL.
func (c *SessionCache) CreateToken(identity models.Identity) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()
	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[token] = &sessionEntry{
		identity:  identity,
		expiresAt: time.Now().Add(c.ttl),
	}
	return token, nil
}

// Lookup returns the identity for a live token. It does not extend the TTL.
func (c *SessionCache) Lookup(token string) (models.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return models.Identity{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, token)
		return models.Identity{}, false
	}
	return entry.identity, true
}

// Renew resets the TTL of a live token, sliding its expiry forward.
func (c *SessionCache) Renew(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, token)
		return false
	}
	entry.expiresAt = time.Now().Add(c.ttl)
	return true
}

// Revoke removes a token. It reports whether the token was present.
func (c *SessionCache) Revoke(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[token]; !ok {
		return false
	}
	delete(c.entries, token)
	return true
}

// Len returns the number of stored tokens, including not yet purged expired
// ones.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SessionCache) purgeExpiredLocked() {
	now := time.Now()
	for token, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, token)
		}
	}
}

func (c *SessionCache) evictOldestLocked() {
	var oldestToken string
	var oldestAt time.Time
	for token, entry := range c.entries {
		if oldestToken == "" || entry.expiresAt.Before(oldestAt) {
			oldestToken = token
			oldestAt = entry.expiresAt
		}
	}
	if oldestToken != "" {
		delete(c.entries, oldestToken)
	}
}
