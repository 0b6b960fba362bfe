package aggregates

import (
	"fmt"
	"time"
)

// Timeframe selects the ingestion window an aggregation is computed over.
type Timeframe string

const (
	Timeframe1Hour   Timeframe = "1h"
	Timeframe6Hours  Timeframe = "6h"
	Timeframe1Day    Timeframe = "1d"
	Timeframe7Days   Timeframe = "7d"
	Timeframe30Days  Timeframe = "30d"
	TimeframeAllTime Timeframe = "allTime"
)

// Timeframes lists every window, shortest first.
var Timeframes = []Timeframe{
	Timeframe1Hour,
	Timeframe6Hours,
	Timeframe1Day,
	Timeframe7Days,
	Timeframe30Days,
	TimeframeAllTime,
}

// ParseTimeframe validates a timeframe string from an API path or queue
// message and returns the typed value.
func ParseTimeframe(s string) (Timeframe, error) {
	for _, tf := range Timeframes {
		if s == string(tf) {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unknown timeframe: %q", s)
}

// Boundary returns the earliest feed_posts.ingested_at included in the
// window, or nil for allTime which applies no time filter.
func (tf Timeframe) Boundary(now time.Time) *time.Time {
	var span time.Duration
	switch tf {
	case Timeframe1Hour:
		span = time.Hour
	case Timeframe6Hours:
		span = 6 * time.Hour
	case Timeframe1Day:
		span = 24 * time.Hour
	case Timeframe7Days:
		span = 7 * 24 * time.Hour
	case Timeframe30Days:
		span = 30 * 24 * time.Hour
	default:
		return nil
	}
	boundary := now.Add(-span)
	return &boundary
}
