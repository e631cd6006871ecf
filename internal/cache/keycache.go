// Package cache persists keyserver lookups between runs.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const keyBucket = "key_emails"

// KeyEntry is the cached set of user-id emails bound to a key
type KeyEntry struct {
	Emails    []string  `json:"emails"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// KeyCache stores keyserver results in a bbolt database. Only successful
// lookups are ever stored.
type KeyCache struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// OpenKeyCache opens (or creates) the cache at path. A ttl of zero means
// entries never expire.
func OpenKeyCache(path string, ttl time.Duration) (*KeyCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create key cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open key cache %s: %w", path, err)
	}

	return &KeyCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached emails for keyID. The second return is false on a
// miss or when the entry is older than the ttl.
func (c *KeyCache) Get(keyID string) ([]string, bool) {
	var entry KeyEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(keyBucket))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get(normalizeKeyID(keyID))
		if data == nil {
			return bolt.ErrBucketNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, false
	}

	if c.ttl > 0 && c.now().Sub(entry.FetchedAt) > c.ttl {
		return nil, false
	}
	return entry.Emails, true
}

// Put stores the emails bound to keyID
func (c *KeyCache) Put(keyID string, emails []string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(keyBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(KeyEntry{Emails: emails, FetchedAt: c.now().UTC()})
		if err != nil {
			return err
		}
		return bucket.Put(normalizeKeyID(keyID), data)
	})
}

// Clear drops every cached entry
func (c *KeyCache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(keyBucket)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(keyBucket))
	})
}

// Len returns the number of cached keys, expired ones included
func (c *KeyCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket([]byte(keyBucket)); bucket != nil {
			n = bucket.Stats().KeyN
		}
		return nil
	})
	return n
}

// Close releases the database file lock
func (c *KeyCache) Close() error {
	return c.db.Close()
}

func normalizeKeyID(keyID string) []byte {
	return []byte(strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(keyID, "0x"), "0X")))
}
