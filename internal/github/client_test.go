package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/gitcredit/internal/logging"
	"github.com/rohankatakam/gitcredit/internal/models"
)

type fakeUser struct {
	Login string `json:"login"`
	Email string `json:"email,omitempty"`
}

// newTestClient serves a tiny subset of the GitHub API from profiles
func newTestClient(t *testing.T, profiles map[string]fakeUser) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/search/users", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		email := strings.TrimSuffix(q, " in:email")

		var hits []fakeUser
		for _, p := range profiles {
			if strings.EqualFold(p.Email, email) || strings.Contains(p.Login, "decoy") {
				hits = append(hits, fakeUser{Login: p.Login})
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": len(hits),
			"items":       hits,
		})
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		login := strings.TrimPrefix(r.URL.Path, "/users/")
		p, ok := profiles[login]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(p)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient("test-token", 1000, logging.Discard())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	c.client.BaseURL = base
	return c
}

func TestLookupUsername(t *testing.T) {
	c := newTestClient(t, map[string]fakeUser{
		"alice":       {Login: "alice", Email: "Alice@Example.com"},
		"decoy-bot":   {Login: "decoy-bot", Email: "bot@example.com"},
		"no-email-on": {Login: "no-email-on"},
	})
	ctx := context.Background()

	login, err := c.LookupUsername(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", login)

	login, err = c.LookupUsername(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, login)
}

func TestEnrichIdentities(t *testing.T) {
	c := newTestClient(t, map[string]fakeUser{
		"alice": {Login: "alice", Email: "alice@example.com"},
	})

	existing := "carol-gh"
	identities := map[string]*models.Identity{
		"alice@example.com": {Email: "alice@example.com", Verified: true},
		"bob@example.com":   {Email: "bob@example.com", Verified: true},
		"carol@example.com": {Email: "carol@example.com", Verified: true, GitHubUsername: &existing},
		"dave@example.com":  {Email: "dave@example.com", Verified: false},
	}

	n := c.EnrichIdentities(context.Background(), identities)
	assert.Equal(t, 1, n)
	assert.Equal(t, "alice", identities["alice@example.com"].Username())
	assert.Nil(t, identities["bob@example.com"].GitHubUsername)
	assert.Equal(t, "carol-gh", identities["carol@example.com"].Username())
	assert.Nil(t, identities["dave@example.com"].GitHubUsername)
}

func TestEnrichIdentities_APIFailureOnlyLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("", 1000, logging.Discard())
	base, _ := url.Parse(srv.URL + "/")
	c.client.BaseURL = base

	identities := map[string]*models.Identity{
		"alice@example.com": {Email: "alice@example.com", Verified: true},
	}
	assert.Equal(t, 0, c.EnrichIdentities(context.Background(), identities))
	assert.Nil(t, identities["alice@example.com"].GitHubUsername)
}
