package aggregates

import (
	"context"
	"time"
)

type postsEnvelope struct {
	Top []*PostCard `json:"top"`
}

func (s *service) topPosts(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	return s.topMedia(ctx, feedID, tf, MediaAny)
}

func (s *service) topImages(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	return s.topMedia(ctx, feedID, tf, MediaImages)
}

func (s *service) topVideos(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	return s.topMedia(ctx, feedID, tf, MediaVideos)
}

func (s *service) topMedia(ctx context.Context, feedID string, tf Timeframe, media MediaFilter) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.ScoredPosts(ctx, feedID, since, s.weights, media, resultLimit)
	if err != nil {
		return nil, err
	}

	cards := make([]*PostCard, 0, len(rows))
	var prominent []string
	for _, row := range rows {
		cards = append(cards, newPostCard(row))
		prominent = append(prominent, row.Post.AuthorDID)
		if q := row.Post.QuotedPostAuthorDID; hasValue(q) {
			prominent = append(prominent, *q)
		}
	}
	return &Result{Payload: postsEnvelope{Top: cards}, Prominent: prominent}, nil
}
