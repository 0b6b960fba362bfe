package posts

// Weights convert raw engagement counts into a score.
type Weights struct {
	Like   int64
	Repost int64
	Reply  int64
}

// DefaultWeights is the point system used across the pipeline: one point per
// like, two per repost, three per reply.
var DefaultWeights = Weights{Like: 1, Repost: 2, Reply: 3}

// Score computes the engagement score for the given counts.
func (w Weights) Score(likes, reposts, replies int64) int64 {
	return likes*w.Like + reposts*w.Repost + replies*w.Reply
}
