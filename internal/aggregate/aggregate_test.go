package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/gitcredit/internal/models"
)

func strPtr(s string) *string { return &s }

func TestRank_Boundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want models.RankTier
	}{
		{0, models.RankNewbie},
		{0.999, models.RankNewbie},
		{1.0, models.RankAmateur},
		{4.999, models.RankAmateur},
		{5.0, models.RankContributor},
		{9.99, models.RankContributor},
		{10.0, models.RankCoMaintainer},
		{24.999, models.RankCoMaintainer},
		{25.0, models.RankMaintainer},
		{49.999, models.RankMaintainer},
		{50.0, models.RankLeadMaintainer},
		{100.0, models.RankLeadMaintainer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rank(tt.pct), "rank(%v)", tt.pct)
	}
}

func TestAggregate_SingleIdentity(t *testing.T) {
	identities := map[string]*models.Identity{
		"a@x.com": {Email: "a@x.com", Name: "A", PGPKeyID: strPtr("K1"), Verified: true, ContributionPercentage: 100, LastUsedTimestamp: 300},
	}

	contributors := Aggregate(identities)
	require.Len(t, contributors, 1)
	assert.Equal(t, models.RankLeadMaintainer, contributors[0].Rank)
	assert.Equal(t, []string{"a@x.com"}, contributors[0].Emails)
	assert.Equal(t, int64(300), contributors[0].LastUsedTimestamp)
}

func TestAggregate_MergesByKeyThenUsername(t *testing.T) {
	identities := map[string]*models.Identity{
		"work@corp.com":   {Email: "work@corp.com", Name: "Alice (work)", PGPKeyID: strPtr("K1"), Verified: true, ContributionPercentage: 20, LastUsedTimestamp: 100},
		"alice@home.org":  {Email: "alice@home.org", Name: "Alice", PGPKeyID: strPtr("K1"), Verified: true, ContributionPercentage: 15, LastUsedTimestamp: 500},
		"bob@x.com":       {Email: "bob@x.com", Name: "Bob", GitHubUsername: strPtr("bob"), Verified: true, ContributionPercentage: 4, LastUsedTimestamp: 700},
		"bob@old.example": {Email: "bob@old.example", Name: "Bobby", GitHubUsername: strPtr("bob"), Verified: true, ContributionPercentage: 2, LastUsedTimestamp: 50},
		"carol@x.com":     {Email: "carol@x.com", Name: "Carol", PGPKeyID: strPtr("K3"), Verified: true, ContributionPercentage: 59, LastUsedTimestamp: 500},
	}

	contributors := Aggregate(identities)
	require.Len(t, contributors, 3)

	bob := contributors[0]
	assert.Equal(t, "bob", bob.CanonicalKey)
	assert.Equal(t, "Bobby", bob.Name) // lowest email wins
	assert.Equal(t, []string{"bob@old.example", "bob@x.com"}, bob.Emails)
	assert.InDelta(t, 6.0, bob.TotalContributionPercentage, 1e-9)
	assert.Equal(t, models.RankContributor, bob.Rank)
	assert.Equal(t, int64(700), bob.LastUsedTimestamp)

	// tie on timestamp is broken by canonical key
	assert.Equal(t, "K1", contributors[1].CanonicalKey)
	assert.Equal(t, "Alice", contributors[1].Name)
	assert.Equal(t, []string{"alice@home.org", "work@corp.com"}, contributors[1].Emails)
	assert.InDelta(t, 35.0, contributors[1].TotalContributionPercentage, 1e-9)
	assert.Equal(t, models.RankMaintainer, contributors[1].Rank)

	assert.Equal(t, "K3", contributors[2].CanonicalKey)
	assert.Equal(t, models.RankLeadMaintainer, contributors[2].Rank)
}

func TestAggregate_Exclusions(t *testing.T) {
	identities := map[string]*models.Identity{
		"unverified@x.com": {Email: "unverified@x.com", PGPKeyID: strPtr("K9"), Verified: false, ContributionPercentage: 90},
		"nokey@x.com":      {Email: "nokey@x.com", Verified: true, ContributionPercentage: 80},
		"emptykey@x.com":   {Email: "emptykey@x.com", PGPKeyID: strPtr(""), Verified: true, ContributionPercentage: 70},
		"ok@x.com":         {Email: "ok@x.com", PGPKeyID: strPtr("K1"), Verified: true, ContributionPercentage: 0.5},
	}

	contributors := Aggregate(identities)
	require.Len(t, contributors, 1)
	assert.Equal(t, []string{"ok@x.com"}, contributors[0].Emails)
	assert.Equal(t, models.RankNewbie, contributors[0].Rank)
}

func TestAggregate_Idempotent(t *testing.T) {
	identities := map[string]*models.Identity{
		"a@x.com": {Email: "a@x.com", Name: "A", PGPKeyID: strPtr("K1"), Verified: true, ContributionPercentage: 30, LastUsedTimestamp: 10},
		"b@x.com": {Email: "b@x.com", Name: "B", PGPKeyID: strPtr("K2"), Verified: true, ContributionPercentage: 30, LastUsedTimestamp: 10},
		"c@x.com": {Email: "c@x.com", Name: "C", GitHubUsername: strPtr("c"), Verified: true, ContributionPercentage: 40, LastUsedTimestamp: 10},
	}

	first := Aggregate(identities)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Aggregate(identities))
	}
	// input is not mutated
	assert.InDelta(t, 30.0, identities["a@x.com"].ContributionPercentage, 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
}
