package aggregates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	for _, tf := range Timeframes {
		got, err := ParseTimeframe(string(tf))
		require.NoError(t, err)
		assert.Equal(t, tf, got)
	}

	_, err := ParseTimeframe("2h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timeframe")
}

func TestTimeframe_Boundary(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		tf   Timeframe
		want time.Time
	}{
		{Timeframe1Hour, now.Add(-time.Hour)},
		{Timeframe6Hours, now.Add(-6 * time.Hour)},
		{Timeframe1Day, now.Add(-24 * time.Hour)},
		{Timeframe7Days, now.Add(-7 * 24 * time.Hour)},
		{Timeframe30Days, now.Add(-30 * 24 * time.Hour)},
	}
	for _, tt := range tests {
		got := tt.tf.Boundary(now)
		require.NotNil(t, got, string(tt.tf))
		assert.Equal(t, tt.want, *got, string(tt.tf))
	}

	assert.Nil(t, TimeframeAllTime.Boundary(now))
}
