// Package aggregate merges verified identities into canonical contributors
// and ranks them.
package aggregate

import (
	"sort"

	"github.com/rohankatakam/gitcredit/internal/models"
)

// CanonicalKey returns the grouping key of an identity: its PGP key id,
// else its GitHub username, else "".
func CanonicalKey(identity *models.Identity) string {
	if key := identity.KeyID(); key != "" {
		return key
	}
	return identity.Username()
}

// Aggregate groups verified identities by canonical key. It is a pure
// function of its input. Identities are visited in lexicographic email
// order, so a contributor's name comes from its lowest email.
func Aggregate(identities map[string]*models.Identity) []models.Contributor {
	emails := make([]string, 0, len(identities))
	for email := range identities {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	byKey := make(map[string]*models.Contributor)
	seen := make(map[string]map[string]bool)
	var order []string

	for _, email := range emails {
		identity := identities[email]
		if identity == nil || !identity.Verified {
			continue
		}
		key := CanonicalKey(identity)
		if key == "" {
			continue
		}

		c, ok := byKey[key]
		if !ok {
			c = &models.Contributor{CanonicalKey: key, Name: identity.Name}
			byKey[key] = c
			seen[key] = make(map[string]bool)
			order = append(order, key)
		}

		addr := identity.Email
		if addr == "" {
			addr = email
		}
		if !seen[key][addr] {
			seen[key][addr] = true
			c.Emails = append(c.Emails, addr)
		}
		c.TotalContributionPercentage += identity.ContributionPercentage
		if identity.LastUsedTimestamp > c.LastUsedTimestamp {
			c.LastUsedTimestamp = identity.LastUsedTimestamp
		}
	}

	contributors := make([]models.Contributor, 0, len(order))
	for _, key := range order {
		c := byKey[key]
		sort.Strings(c.Emails)
		c.Rank = Rank(c.TotalContributionPercentage)
		contributors = append(contributors, *c)
	}

	sort.SliceStable(contributors, func(i, j int) bool {
		if contributors[i].LastUsedTimestamp != contributors[j].LastUsedTimestamp {
			return contributors[i].LastUsedTimestamp > contributors[j].LastUsedTimestamp
		}
		return contributors[i].CanonicalKey < contributors[j].CanonicalKey
	})

	return contributors
}
