package aggregate

import "github.com/rohankatakam/gitcredit/internal/models"

// tier lower bounds, highest first
var tiers = []struct {
	min  float64
	rank models.RankTier
}{
	{50, models.RankLeadMaintainer},
	{25, models.RankMaintainer},
	{10, models.RankCoMaintainer},
	{5, models.RankContributor},
	{1, models.RankAmateur},
}

// Rank maps a contribution percentage in [0, 100] to its tier. Intervals are
// closed below and open above, except the top tier which includes 100.
func Rank(percentage float64) models.RankTier {
	for _, t := range tiers {
		if percentage >= t.min {
			return t.rank
		}
	}
	return models.RankNewbie
}
