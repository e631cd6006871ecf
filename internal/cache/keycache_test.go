package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, ttl time.Duration) *KeyCache {
	t.Helper()
	c, err := OpenKeyCache(filepath.Join(t.TempDir(), "nested", "keys.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyCache_PutGet(t *testing.T) {
	c := openTestCache(t, time.Hour)

	_, ok := c.Get("ABCDEF")
	assert.False(t, ok)

	require.NoError(t, c.Put("abcdef", []string{"a@example.com", "b@example.com"}))

	emails, ok := c.Get("0xABCDEF")
	require.True(t, ok)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, emails)
	assert.Equal(t, 1, c.Len())
}

func TestKeyCache_Expiry(t *testing.T) {
	c := openTestCache(t, time.Hour)
	base := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	require.NoError(t, c.Put("K1", []string{"a@example.com"}))

	c.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, ok := c.Get("K1")
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok = c.Get("K1")
	assert.False(t, ok)
}

func TestKeyCache_Clear(t *testing.T) {
	c := openTestCache(t, 0)
	require.NoError(t, c.Clear())

	require.NoError(t, c.Put("K1", []string{"a@example.com"}))
	require.NoError(t, c.Clear())

	_, ok := c.Get("K1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestKeyCache_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")

	c, err := OpenKeyCache(path, 0)
	require.NoError(t, err)
	require.NoError(t, c.Put("K1", []string{"a@example.com"}))
	require.NoError(t, c.Close())

	c, err = OpenKeyCache(path, 0)
	require.NoError(t, err)
	defer c.Close()

	emails, ok := c.Get("K1")
	require.True(t, ok)
	assert.Equal(t, []string{"a@example.com"}, emails)
}
