// Package keyserver fetches public keys over HKP and reconciles their
// user-id emails against the emails a commit asserts.
package keyserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrKeyNotFound means the keyserver has no key for the requested id
	ErrKeyNotFound = errors.New("key not found on keyserver")

	// ErrUnreachable covers transport failures, timeouts and unexpected
	// keyserver responses.
	ErrUnreachable = errors.New("keyserver unreachable")
)

// maxKeySize bounds how much of a response is read
const maxKeySize = 4 << 20

// KeyFetcher returns the user-id emails bound to a key
type KeyFetcher interface {
	FetchEmails(ctx context.Context, keyID string) ([]string, error)
}

// Client is an HKP keyserver client
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	rateLimiter *rate.Limiter
	logger      *logrus.Logger
}

// NewClient creates a client for the keyserver at baseURL. Every request is
// bounded by timeout and throttled to ratePerSecond.
func NewClient(baseURL string, timeout time.Duration, ratePerSecond float64, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		timeout:     timeout,
		rateLimiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		logger:      logger,
	}
}

// FetchEmails downloads the armored key for keyID and returns the email of
// every user id on every returned entity.
func (c *Client) FetchEmails(ctx context.Context, keyID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrUnreachable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.lookupURL(keyID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/pgp-keys")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"key_id":   keyID,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Keyserver lookup")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d for key %s", ErrUnreachable, resp.StatusCode, keyID)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading key %s: %v", ErrUnreachable, keyID, err)
	}

	return parseKeyEmails(keyID, string(body))
}

func (c *Client) lookupURL(keyID string) string {
	q := url.Values{}
	q.Set("op", "get")
	q.Set("options", "mr")
	q.Set("search", "0x"+strings.TrimPrefix(strings.TrimPrefix(keyID, "0x"), "0X"))
	return c.baseURL + "/pks/lookup?" + q.Encode()
}

// parseKeyEmails extracts user-id emails from an armored keyring. A body
// without any key counts as not found.
func parseKeyEmails(keyID, armored string) ([]string, error) {
	if !strings.Contains(armored, "BEGIN PGP PUBLIC KEY BLOCK") {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}

	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable key %s: %v", ErrKeyNotFound, keyID, err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}

	var emails []string
	for _, entity := range entities {
		for _, identity := range entity.Identities {
			if identity.UserId == nil || identity.UserId.Email == "" {
				continue
			}
			emails = append(emails, identity.UserId.Email)
		}
	}
	return emails, nil
}
