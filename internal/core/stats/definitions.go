package stats

import (
	"strconv"
	"strings"
)

// Definition seeds one achievement row. The registry below is the source of
// truth for keys and criteria; display fields can be edited in the DB
// afterwards and are never overwritten by seeding.
type Definition struct {
	Key          string
	Name         string
	Description  string
	Icon         string
	Type         AchievementType
	IsRepeatable bool
	SeriesKey    string
	Criteria     Criteria
}

// Achievement materializes the definition as a fresh row ready to insert.
func (d Definition) Achievement() *Achievement {
	a := &Achievement{
		Key:          d.Key,
		Name:         d.Name,
		Description:  d.Description,
		Type:         d.Type,
		IsRepeatable: d.IsRepeatable,
		IsActive:     true,
	}
	if d.Icon != "" {
		icon := d.Icon
		a.Icon = &icon
	}
	if d.SeriesKey != "" {
		series := d.SeriesKey
		a.SeriesKey = &series
	}
	criteria := d.Criteria
	a.Criteria = &criteria
	return a
}

// tier is one step of a progression: icebreaker_i, power_poster_ii, and so on.
type tier struct {
	suffix     string
	nameSuffix string
	value      int64
}

// series expands into one Definition per tier. The description template's
// {value} placeholder is replaced with the tier's threshold, formatted with
// thousands separators.
type series struct {
	key         string
	name        string
	description string
	stat        string
	typ         AchievementType
	icon        string
	repeatable  bool
	operator    string
	aggMethod   string
	tiers       []tier
}

func (s series) expand() []Definition {
	operator := s.operator
	if operator == "" {
		operator = OpGTE
	}

	defs := make([]Definition, 0, len(s.tiers))
	for _, t := range s.tiers {
		name := s.name
		if t.nameSuffix != "" {
			name += " " + t.nameSuffix
		}
		defs = append(defs, Definition{
			Key:          s.key + "_" + t.suffix,
			Name:         name,
			Description:  strings.ReplaceAll(s.description, "{value}", formatCount(t.value)),
			Icon:         s.icon,
			Type:         s.typ,
			IsRepeatable: s.repeatable,
			SeriesKey:    s.key,
			Criteria: Criteria{
				Stat:      s.stat,
				Operator:  operator,
				Value:     t.value,
				AggMethod: s.aggMethod,
			},
		})
	}
	return defs
}

// formatCount renders 1000000 as "1,000,000" for achievement descriptions.
func formatCount(v int64) string {
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var (
	powerPosterTiers = []tier{
		{"i", "I", 10},
		{"ii", "II", 50},
		{"iii", "III", 250},
	}
	globalIconTiers = []tier{
		{"i", "I", 1000},
		{"ii", "II", 5000},
		{"iii", "III", 25000},
		{"iv", "IV", 100000},
		{"v", "V", 250000},
		{"vi", "VI", 1000000},
		{"vii", "VII", 5000000},
	}
	imagePosterTiers = []tier{
		{"i", "I", 1},
		{"ii", "II", 5},
		{"iii", "III", 20},
		{"iv", "IV", 100},
		{"v", "V", 500},
		{"vi", "VI", 1000},
		{"vii", "VII", 5000},
	}
	videoPosterTiers = []tier{
		{"i", "I", 1},
		{"ii", "II", 3},
		{"iii", "III", 10},
		{"iv", "IV", 50},
		{"v", "V", 200},
		{"vi", "VI", 500},
		{"vii", "VII", 2000},
	}
	viralSensationTiers = []tier{
		{"i", "I", 25},
		{"ii", "II", 100},
		{"iii", "III", 500},
		{"iv", "IV", 2500},
	}
)

// allSeries lists every achievement progression in seed order. The global
// variants reuse the per-feed tier tables but aggregate across all of a
// user's feeds.
var allSeries = []series{
	{
		key: "icebreaker", name: "Icebreaker",
		description: "Made your first post in a feed. Welcome!",
		stat:        StatPostCount, typ: TypePerFeed,
		icon: "👋", repeatable: true, operator: OpEQ,
		tiers: []tier{{"i", "", 1}},
	},
	{
		key: "community_favorite", name: "Community Favorite",
		description: "Received {value}+ likes on posts in a single feed.",
		stat:        StatTotalLikesReceived, typ: TypePerFeed,
		icon: "❤️‍🔥", repeatable: true,
		tiers: []tier{{"i", "", 100}},
	},
	{
		key: "feed_explorer", name: "Feed Explorer",
		description: "Posted in {value} different feeds.",
		stat:        StatFeedCount, typ: TypeGlobal,
		icon: "🌍", aggMethod: AggCount,
		tiers: []tier{{"i", "", 3}},
	},
	{
		key: "power_poster", name: "Power Poster",
		description: "Posted {value} times in a single feed.",
		stat:        StatPostCount, typ: TypePerFeed,
		repeatable: true,
		tiers:      powerPosterTiers,
	},
	{
		key: "global_likes", name: "Global Icon",
		description: "Received {value} likes in total across all feeds.",
		stat:        StatTotalLikesReceived, typ: TypeGlobal,
		icon: "🌟", aggMethod: AggSum,
		tiers: globalIconTiers,
	},
	{
		key: "image_poster", name: "Image Poster",
		description: "Include an image in {value} posts in a single feed.",
		stat:        StatImagePostCount, typ: TypePerFeed,
		icon: "🖼️", repeatable: true,
		tiers: imagePosterTiers,
	},
	{
		key: "video_poster", name: "Video Poster",
		description: "Share {value} video posts in a single feed.",
		stat:        StatVideoPostCount, typ: TypePerFeed,
		icon: "🎬", repeatable: true,
		tiers: videoPosterTiers,
	},
	{
		key: "viral_sensation", name: "Viral Sensation",
		description: "A single post received {value}+ total likes & reposts in a feed.",
		stat:        StatMaxPostEngagement, typ: TypePerFeed,
		icon: "🔥", repeatable: true,
		tiers: viralSensationTiers,
	},
	{
		key: "global_power_poster", name: "Power Poster",
		description: "Posted {value} times in total across all feeds.",
		stat:        StatPostCount, typ: TypeGlobal,
		icon: "✍️", aggMethod: AggSum,
		tiers: powerPosterTiers,
	},
	{
		key: "global_image_poster", name: "Image Poster",
		description: "Include an image in {value} posts in total across all feeds.",
		stat:        StatImagePostCount, typ: TypeGlobal,
		icon: "📸", aggMethod: AggSum,
		tiers: imagePosterTiers,
	},
	{
		key: "global_video_poster", name: "Video Poster",
		description: "Share {value} video posts in total across all feeds.",
		stat:        StatVideoPostCount, typ: TypeGlobal,
		icon: "🎥", aggMethod: AggSum,
		tiers: videoPosterTiers,
	},
	{
		key: "global_viral_sensation", name: "Viral Sensation",
		description: "A single post received {value}+ total likes & reposts anywhere.",
		stat:        StatMaxPostEngagement, typ: TypeGlobal,
		icon: "💥", aggMethod: AggMax,
		tiers: viralSensationTiers,
	},
}

// Definitions returns the canonical achievement registry in seed order.
func Definitions() []Definition {
	var defs []Definition
	for _, s := range allSeries {
		defs = append(defs, s.expand()...)
	}
	return defs
}
