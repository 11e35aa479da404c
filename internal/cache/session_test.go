package cache

import (
	"testing"
	"time"

	"au-panel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCacheCreateAndLookup(t *testing.T) {
	c := NewSessionCache(8, time.Minute)

	identity := models.Identity{UID: 1, Name: "admin", Role: models.RoleSuperAdmin, CID: "*"}
	token, err := c.CreateToken(identity)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, ok := c.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, identity, got)

	_, ok = c.Lookup("no-such-token")
	assert.False(t, ok)
}

func TestSessionCacheTokensAreUnique(t *testing.T) {
	c := NewSessionCache(8, time.Minute)

	t1, err := c.CreateToken(models.Identity{UID: 1})
	require.NoError(t, err)
	t2, err := c.CreateToken(models.Identity{UID: 1})
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	assert.Equal(t, 2, c.Len())
}

func TestSessionCacheExpiry(t *testing.T) {
	c := NewSessionCache(8, 10*time.Millisecond)

	token, err := c.CreateToken(models.Identity{UID: 1})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Lookup(token)
	assert.False(t, ok)
	assert.False(t, c.Renew(token))
}

func TestSessionCacheRenewSlidesExpiry(t *testing.T) {
	c := NewSessionCache(8, 40*time.Millisecond)

	token, err := c.CreateToken(models.Identity{UID: 1})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	require.True(t, c.Renew(token))
	time.Sleep(25 * time.Millisecond)

	// Past the original TTL but inside the renewed one.
	_, ok := c.Lookup(token)
	assert.True(t, ok)
}

func TestSessionCacheLookupDoesNotSlideExpiry(t *testing.T) {
	c := NewSessionCache(8, 40*time.Millisecond)

	token, err := c.CreateToken(models.Identity{UID: 1})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	_, ok := c.Lookup(token)
	require.True(t, ok)
	time.Sleep(25 * time.Millisecond)

	_, ok = c.Lookup(token)
	assert.False(t, ok)
}

func TestSessionCacheRevoke(t *testing.T) {
	c := NewSessionCache(8, time.Minute)

	token, err := c.CreateToken(models.Identity{UID: 1})
	require.NoError(t, err)

	assert.True(t, c.Revoke(token))
	assert.False(t, c.Revoke(token))

	_, ok := c.Lookup(token)
	assert.False(t, ok)
}

func TestSessionCacheEvictsWhenFull(t *testing.T) {
	c := NewSessionCache(2, time.Minute)

	t1, err := c.CreateToken(models.Identity{UID: 1})
	require.NoError(t, err)
	_, err = c.CreateToken(models.Identity{UID: 2})
	require.NoError(t, err)
	_, err = c.CreateToken(models.Identity{UID: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())

	// The first token had the earliest expiry and was dropped.
	_, ok := c.Lookup(t1)
	assert.False(t, ok)
}
