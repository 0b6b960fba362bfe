package aggregates

import (
	"context"
	"fmt"

	"feedmaster/internal/core/posts"
)

// Result is one computed aggregation: the payload to store and the DIDs it
// surfaces, which feed the prominence update.
type Result struct {
	Payload   any
	Prominent []string
}

// GeoSource supplies the hashtag-to-location map. *GeoFile satisfies it.
type GeoSource interface {
	Current() GeoMap
}

// NewsSource supplies the news domain whitelist. *NewsFile satisfies it.
type NewsSource interface {
	Current() []string
}

// Service computes aggregation payloads and serves stored ones
type Service interface {
	// Compute runs one aggregation over the feed's posts.
	Compute(ctx context.Context, feedID, name string, tf Timeframe) (*Result, error)

	// Get returns a stored aggregate, or ErrAggregateNotFound.
	Get(ctx context.Context, feedID, name string, tf Timeframe) (*Aggregate, error)

	// GetForFeed returns every stored aggregate for a feed and timeframe.
	GetForFeed(ctx context.Context, feedID string, tf Timeframe) ([]*Aggregate, error)
}

type service struct {
	repo    Repository
	geo     GeoSource
	news    NewsSource
	weights posts.Weights
}

// NewService creates a new aggregation service
func NewService(repo Repository, geo GeoSource, news NewsSource, weights posts.Weights) Service {
	return &service{
		repo:    repo,
		geo:     geo,
		news:    news,
		weights: weights,
	}
}

type computeFunc func(s *service, ctx context.Context, feedID string, tf Timeframe) (*Result, error)

var computeFuncs = map[string]computeFunc{
	TopPosts:             (*service).topPosts,
	TopImages:            (*service).topImages,
	TopVideos:            (*service).topVideos,
	TopHashtags:          (*service).topHashtags,
	TopLinks:             (*service).topLinks,
	TopDomains:           (*service).topDomains,
	TopLinkCards:         (*service).topLinkCards,
	TopNewsLinkCards:     (*service).topNewsLinkCards,
	TopCities:            (*service).topCities,
	TopRegions:           (*service).topRegions,
	TopCountries:         (*service).topCountries,
	TopUsers:             (*service).topUsers,
	TopPostersByCount:    (*service).topPostersByCount,
	TopMentions:          (*service).topMentions,
	FirstTimePosters:     (*service).firstTimePosters,
	LongestPosterStreaks: (*service).longestPosterStreaks,
	ActivePosterStreaks:  (*service).activePosterStreaks,
}

func (s *service) Compute(ctx context.Context, feedID, name string, tf Timeframe) (*Result, error) {
	fn, ok := computeFuncs[name]
	if !ok {
		return nil, fmt.Errorf("unknown aggregation: %q", name)
	}
	return fn(s, ctx, feedID, tf)
}

func (s *service) Get(ctx context.Context, feedID, name string, tf Timeframe) (*Aggregate, error) {
	return s.repo.Get(ctx, feedID, name, tf)
}

func (s *service) GetForFeed(ctx context.Context, feedID string, tf Timeframe) ([]*Aggregate, error) {
	return s.repo.GetForFeed(ctx, feedID, tf)
}

func hasValue(p *string) bool {
	return p != nil && *p != ""
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
