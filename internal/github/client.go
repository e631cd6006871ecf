package github

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/gitcredit/internal/models"
)

// searchCandidates caps how many search hits are inspected per email
const searchCandidates = 5

// Client wraps the GitHub API client with rate limiting and concurrency
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	maxWorkers  int
	logger      *logrus.Logger
}

// NewClient creates a new GitHub client with rate limiting
func NewClient(token string, rateLimit int, logger *logrus.Logger) *Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		maxWorkers:  4, // search API allows 30 req/min
		logger:      logger,
	}
}

// LookupUsername finds the GitHub login whose public email equals email.
// It returns "" when no account matches.
func (c *Client) LookupUsername(ctx context.Context, email string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	result, _, err := c.client.Search.Users(ctx, fmt.Sprintf("%s in:email", email), &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: searchCandidates},
	})
	if err != nil {
		return "", fmt.Errorf("search users: %w", err)
	}

	for i, hit := range result.Users {
		if i >= searchCandidates {
			break
		}

		// search hits carry no email, the profile does
		if hit.GetEmail() == "" {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter: %w", err)
			}
			user, _, err := c.client.Users.Get(ctx, hit.GetLogin())
			if err != nil {
				return "", fmt.Errorf("get user %s: %w", hit.GetLogin(), err)
			}
			hit = user
		}

		if strings.EqualFold(hit.GetEmail(), email) {
			return hit.GetLogin(), nil
		}
	}

	return "", nil
}

// EnrichIdentities sets GitHubUsername on every verified identity that has a
// matching account. Failures are logged and leave the identity untouched.
// It returns the number of identities enriched.
func (c *Client) EnrichIdentities(ctx context.Context, identities map[string]*models.Identity) int {
	emails := make([]string, 0, len(identities))
	for email, identity := range identities {
		if identity.Verified && identity.GitHubUsername == nil {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)

	usernames := make([]string, len(emails))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for i, email := range emails {
		i, email := i, email
		g.Go(func() error {
			login, err := c.LookupUsername(gctx, email)
			if err != nil {
				entry := c.logger.WithError(err).WithField("email", email)
				var rateErr *github.RateLimitError
				if errors.As(err, &rateErr) {
					entry.Warn("GitHub rate limit reached during username lookup")
				} else {
					entry.Debug("GitHub username lookup failed")
				}
				return nil
			}
			usernames[i] = login
			return nil
		})
	}
	_ = g.Wait()

	enriched := 0
	for i, email := range emails {
		if usernames[i] == "" {
			continue
		}
		login := usernames[i]
		identities[email].GitHubUsername = &login
		enriched++
	}

	c.logger.WithFields(logrus.Fields{
		"candidates": len(emails),
		"enriched":   enriched,
	}).Info("GitHub enrichment complete")

	return enriched
}
