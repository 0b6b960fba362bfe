package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForPercentage(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0.05, "Mythic"},
		{0.1, "Mythic"},
		{0.5, "Legendary"},
		{1.0, "Legendary"},
		{1.5, "Diamond"},
		{3.0, "Platinum"},
		{7.5, "Gold"},
		{20.0, "Silver"},
		{60.0, "Bronze"},
		{100.0, "Bronze"},
		{250.0, "Bronze"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForPercentage(tt.pct).Name, "%.2f%%", tt.pct)
	}
}

func TestRarityLabels(t *testing.T) {
	tier := TierForPercentage(0.8)

	assert.Equal(t, "Legendary (Global)", GlobalRarityLabel(tier))
	assert.Equal(t, "Legendary (in this feed)", FeedRarityLabel(tier))
}
