package keyserver

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// KeyStore persists successful lookups across runs. *cache.KeyCache
// implements it.
type KeyStore interface {
	Get(keyID string) ([]string, bool)
	Put(keyID string, emails []string) error
}

// Reconciler decides whether a commit's asserted emails match the emails
// registered on its signing key.
type Reconciler struct {
	fetcher KeyFetcher
	store   KeyStore
	logger  *logrus.Logger

	group singleflight.Group
	mu    sync.RWMutex
	memo  map[string][]string
}

// NewReconciler creates a reconciler. store may be nil.
func NewReconciler(fetcher KeyFetcher, store KeyStore, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		memo:    make(map[string][]string),
	}
}

// Reconcile reports whether observed equals the key's user-id email set.
// Any lookup error yields false alongside the error.
func (r *Reconciler) Reconcile(ctx context.Context, keyID string, observed []string) (bool, error) {
	registered, err := r.KeyEmails(ctx, keyID)
	if err != nil {
		return false, err
	}

	matched := EmailSetsEqual(observed, registered)
	if !matched {
		r.logger.WithFields(logrus.Fields{
			"key_id":     keyID,
			"observed":   observed,
			"registered": registered,
		}).Debug("Signature emails do not match key user ids")
	}
	return matched, nil
}

// KeyEmails returns the emails bound to keyID. Concurrent calls for the same
// key share one network request, and only successes are remembered.
func (r *Reconciler) KeyEmails(ctx context.Context, keyID string) ([]string, error) {
	key := strings.ToUpper(keyID)

	r.mu.RLock()
	emails, ok := r.memo[key]
	r.mu.RUnlock()
	if ok {
		return emails, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if r.store != nil {
			if cached, ok := r.store.Get(key); ok {
				r.logger.WithField("key_id", key).Trace("Key cache hit")
				return cached, nil
			}
		}

		fetched, err := r.fetcher.FetchEmails(ctx, key)
		if err != nil {
			return nil, err
		}

		if r.store != nil {
			if err := r.store.Put(key, fetched); err != nil {
				r.logger.WithError(err).WithField("key_id", key).Warn("Failed to persist key lookup")
			}
		}
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	emails = v.([]string)
	r.mu.Lock()
	r.memo[key] = emails
	r.mu.Unlock()
	return emails, nil
}

// EmailSetsEqual compares two email lists as case-insensitive sets.
// Duplicates are ignored; an empty set only equals another empty set.
func EmailSetsEqual(a, b []string) bool {
	sa, sb := emailSet(a), emailSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func emailSet(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
