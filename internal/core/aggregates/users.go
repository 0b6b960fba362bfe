package aggregates

import (
	"context"
	"math"
	"sort"
	"time"
)

type usersEnvelope struct {
	Users []*UserCard `json:"users"`
}

type postersEnvelope struct {
	Posters []*UserCard `json:"posters"`
}

type mentionsEnvelope struct {
	Mentions []*UserCard `json:"mentions"`
}

type firstTimeEnvelope struct {
	Top []*UserCard `json:"top"`
}

type streaksEnvelope struct {
	Streaks []*UserCard `json:"streaks"`
}

// topUsers ranks authors by drop-lowest weighted scoring: the better of the
// mean over all of the author's posts and the mean excluding one lowest
// scorer, multiplied by ln(post_count+1). Dropping the worst post keeps one
// flop from sinking an otherwise consistent author; the log bonus rewards
// volume without letting it dominate.
func (s *service) topUsers(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.AuthorPostScores(ctx, feedID, since, s.weights)
	if err != nil {
		return nil, err
	}

	ranked := rankAuthors(rows)
	if len(ranked) > resultLimit {
		ranked = ranked[:resultLimit]
	}

	cards := make([]*UserCard, 0, len(ranked))
	prominent := make([]string, 0, len(ranked))
	for _, r := range ranked {
		card := newUserCard(r.did, r.handle, r.displayName, r.avatarURL)
		count := int64(r.weighted)
		card.Count = &count
		cards = append(cards, card)
		prominent = append(prominent, r.did)
	}
	return &Result{Payload: usersEnvelope{Users: cards}, Prominent: prominent}, nil
}

type authorRank struct {
	did         string
	handle      string
	displayName *string
	avatarURL   *string
	scores      []int64
	weighted    float64
}

func rankAuthors(rows []*AuthorPostScore) []*authorRank {
	byDID := make(map[string]*authorRank)
	// First-seen order keeps equal scores in a stable order across runs.
	var order []string
	for _, row := range rows {
		r, ok := byDID[row.DID]
		if !ok {
			r = &authorRank{did: row.DID, handle: row.Handle, displayName: row.DisplayName, avatarURL: row.AvatarURL}
			byDID[row.DID] = r
			order = append(order, row.DID)
		}
		r.scores = append(r.scores, row.Score)
	}

	ranked := make([]*authorRank, 0, len(order))
	for _, did := range order {
		r := byDID[did]
		r.weighted = dropLowestScore(r.scores)
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].weighted > ranked[j].weighted })
	return ranked
}

func dropLowestScore(scores []int64) float64 {
	if len(scores) == 0 {
		return 0
	}
	bonus := math.Log(float64(len(scores)) + 1)

	var sum int64
	minIdx := 0
	for i, v := range scores {
		sum += v
		if v < scores[minIdx] {
			minIdx = i
		}
	}
	avg := float64(sum) / float64(len(scores))
	if len(scores) == 1 {
		return avg * bonus
	}

	trimmed := float64(sum-scores[minIdx]) / float64(len(scores)-1)
	if trimmed > avg {
		return trimmed * bonus
	}
	return avg * bonus
}

func (s *service) topPostersByCount(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.PosterCounts(ctx, feedID, since, resultLimit)
	if err != nil {
		return nil, err
	}
	cards, prominent := authorCountCards(rows)
	return &Result{Payload: postersEnvelope{Posters: cards}, Prominent: prominent}, nil
}

func (s *service) topMentions(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.MentionCounts(ctx, feedID, since, resultLimit)
	if err != nil {
		return nil, err
	}
	cards, prominent := authorCountCards(rows)
	return &Result{Payload: mentionsEnvelope{Mentions: cards}, Prominent: prominent}, nil
}

func authorCountCards(rows []*AuthorCount) ([]*UserCard, []string) {
	cards := make([]*UserCard, 0, len(rows))
	prominent := make([]string, 0, len(rows))
	for _, row := range rows {
		card := newUserCard(row.DID, row.Handle, row.DisplayName, row.AvatarURL)
		count := row.Count
		card.Count = &count
		cards = append(cards, card)
		prominent = append(prominent, row.DID)
	}
	return cards, prominent
}

func (s *service) firstTimePosters(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	rows, err := s.repo.FirstTimePosters(ctx, feedID, since, resultLimit)
	if err != nil {
		return nil, err
	}

	cards := make([]*UserCard, 0, len(rows))
	prominent := make([]string, 0, len(rows))
	for _, row := range rows {
		card := newUserCard(row.DID, row.Handle, row.DisplayName, row.AvatarURL)
		one := int64(1)
		card.Count = &one
		iso := row.FirstPostAt.UTC().Format(time.RFC3339)
		card.FirstPostAt = &iso
		cards = append(cards, card)
		prominent = append(prominent, row.DID)
	}
	return &Result{Payload: firstTimeEnvelope{Top: cards}, Prominent: prominent}, nil
}

// The timeframe is ignored for streaks; they only run at allTime.
func (s *service) longestPosterStreaks(ctx context.Context, feedID string, _ Timeframe) (*Result, error) {
	rows, err := s.repo.LongestStreaks(ctx, feedID, resultLimit)
	if err != nil {
		return nil, err
	}
	cards, prominent := streakCards(rows)
	return &Result{Payload: streaksEnvelope{Streaks: cards}, Prominent: prominent}, nil
}

func (s *service) activePosterStreaks(ctx context.Context, feedID string, _ Timeframe) (*Result, error) {
	rows, err := s.repo.ActiveStreaks(ctx, feedID, resultLimit)
	if err != nil {
		return nil, err
	}
	cards, prominent := streakCards(rows)
	return &Result{Payload: streaksEnvelope{Streaks: cards}, Prominent: prominent}, nil
}

// streakCards drops single-day streaks after the query limit, so a page can
// come back shorter than the limit even when more runs exist.
func streakCards(rows []*AuthorStreak) ([]*UserCard, []string) {
	cards := make([]*UserCard, 0, len(rows))
	prominent := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Length <= 1 {
			continue
		}
		card := newUserCard(row.DID, row.Handle, row.DisplayName, row.AvatarURL)
		length := row.Length
		card.LongestStreak = &length
		cards = append(cards, card)
		prominent = append(prominent, row.DID)
	}
	return cards, prominent
}
