package stats

// RarityTier buckets a rarity percentage into a named tier.
type RarityTier struct {
	Name      string
	Label     string
	Threshold float64
}

// RarityTiers is ordered rarest first; TierForPercentage walks it in order
// and returns the first tier whose threshold covers the percentage.
var RarityTiers = []RarityTier{
	{Name: "Mythic", Label: "Mythic", Threshold: 0.1},
	{Name: "Legendary", Label: "Legendary", Threshold: 1.0},
	{Name: "Diamond", Label: "Diamond", Threshold: 2.0},
	{Name: "Platinum", Label: "Platinum", Threshold: 5.0},
	{Name: "Gold", Label: "Gold", Threshold: 10.0},
	{Name: "Silver", Label: "Silver", Threshold: 25.0},
	{Name: "Bronze", Label: "Bronze", Threshold: 100.0},
}

// TierForPercentage maps a rarity percentage onto its tier. Percentages
// beyond 100 fall into the least rare tier.
func TierForPercentage(pct float64) RarityTier {
	for _, t := range RarityTiers {
		if pct <= t.Threshold {
			return t
		}
	}
	return RarityTiers[len(RarityTiers)-1]
}

// Rarity label annotations distinguish the population a percentage was
// computed against.
const (
	globalRaritySuffix  = " (Global)"
	perFeedRaritySuffix = " (in this feed)"
)

// GlobalRarityLabel renders the display label for site-wide rarity.
func GlobalRarityLabel(t RarityTier) string {
	return t.Label + globalRaritySuffix
}

// FeedRarityLabel renders the display label for within-feed rarity.
func FeedRarityLabel(t RarityTier) string {
	return t.Label + perFeedRaritySuffix
}
