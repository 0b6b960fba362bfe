package aggregates

import "time"

// Definition pairs an aggregation with the timeframes it runs at.
type Definition struct {
	Name       string
	Timeframes []Timeframe
}

// Schedule is the full aggregation plan computed per feed each cycle. Streak
// aggregations only make sense over the whole history, so they run at
// allTime only.
var Schedule = []Definition{
	{Name: TopPosts, Timeframes: Timeframes},
	{Name: TopImages, Timeframes: Timeframes},
	{Name: TopVideos, Timeframes: Timeframes},
	{Name: TopHashtags, Timeframes: Timeframes},
	{Name: TopLinks, Timeframes: Timeframes},
	{Name: TopDomains, Timeframes: Timeframes},
	{Name: TopLinkCards, Timeframes: Timeframes},
	{Name: TopNewsLinkCards, Timeframes: Timeframes},
	{Name: TopCities, Timeframes: Timeframes},
	{Name: TopRegions, Timeframes: Timeframes},
	{Name: TopCountries, Timeframes: Timeframes},
	{Name: TopUsers, Timeframes: Timeframes},
	{Name: TopPostersByCount, Timeframes: Timeframes},
	{Name: TopMentions, Timeframes: Timeframes},
	{Name: FirstTimePosters, Timeframes: Timeframes},
	{Name: LongestPosterStreaks, Timeframes: []Timeframe{TimeframeAllTime}},
	{Name: ActivePosterStreaks, Timeframes: []Timeframe{TimeframeAllTime}},
}

// MinRecomputeInterval is how fresh a stored aggregate must be for the
// scheduler to skip recomputing it. Short windows shift quickly and refresh
// often; long windows barely move between cycles. Streaks scan the whole
// history and are capped at hourly regardless of timeframe.
func MinRecomputeInterval(name string, tf Timeframe) time.Duration {
	if name == LongestPosterStreaks || name == ActivePosterStreaks {
		return time.Hour
	}
	switch tf {
	case Timeframe1Hour:
		return 5 * time.Minute
	case Timeframe6Hours:
		return 10 * time.Minute
	case Timeframe1Day:
		return 15 * time.Minute
	case Timeframe7Days:
		return 30 * time.Minute
	case Timeframe30Days:
		return time.Hour
	default:
		return 2 * time.Hour
	}
}
