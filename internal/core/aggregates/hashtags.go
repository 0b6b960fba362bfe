package aggregates

import (
	"context"
	"time"
)

type hashtagsEnvelope struct {
	Hashtags []*HashtagCard `json:"hashtags"`
}

func (s *service) topHashtags(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.HashtagCounts(ctx, feedID, since, resultLimit)
	if err != nil {
		return nil, err
	}

	cards := make([]*HashtagCard, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, &HashtagCard{Type: "hashtag", Hashtag: row.Hashtag, Count: row.Count})
	}
	return &Result{Payload: hashtagsEnvelope{Hashtags: cards}}, nil
}
