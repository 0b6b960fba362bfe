package polling

// Config drives the poll scheduler: when to check a post again and when to
// give up on it.
type Config struct {
	DeactivationRules DeactivationRules `json:"deactivation_rules"`
	Tiers             []Tier            `json:"polling_tiers"`
}

// DeactivationRules sets the early checkpoint ages and elimination cutoffs.
// All ages are post ages in hours.
type DeactivationRules struct {
	HardStopHours                      float64 `json:"hard_stop_hours"`
	FirstPollAgeHours                  float64 `json:"first_poll_age_hours"`
	SecondPollAgeHours                 float64 `json:"second_poll_age_hours"`
	ThirdPollAgeHours                  float64 `json:"third_poll_age_hours"`
	FourthPollAgeHours                 float64 `json:"fourth_poll_age_hours"`
	FifthPollAgeHours                  float64 `json:"fifth_poll_age_hours"`
	FourthPollEliminationScore         int64   `json:"fourth_poll_elimination_score"`
	FifthPollEliminationScoreThreshold int64   `json:"fifth_poll_elimination_score_threshold"`
}

// Tier maps a post age bracket to a polling interval.
type Tier struct {
	Description   string  `json:"description,omitempty"`
	MaxAgeHours   float64 `json:"max_age_hours"`
	IntervalHours float64 `json:"interval_hours"`
}

// Default returns the schedule used when no polling_config.json exists:
// aggressive checks at roughly 5/10/20/30/60 minutes, then widening tier
// intervals up to the seven day hard stop.
func Default() *Config {
	return &Config{
		DeactivationRules: DeactivationRules{
			HardStopHours:                      168.0,
			FirstPollAgeHours:                  0.084,
			SecondPollAgeHours:                 0.167,
			ThirdPollAgeHours:                  0.334,
			FourthPollAgeHours:                 0.5,
			FifthPollAgeHours:                  1.0,
			FourthPollEliminationScore:         0,
			FifthPollEliminationScoreThreshold: 3,
		},
		Tiers: []Tier{
			{Description: "Hour 1 to Day 1", MaxAgeHours: 24.0, IntervalHours: 2.0},
			{Description: "Day 1 to Day 2", MaxAgeHours: 48.0, IntervalHours: 6.0},
			{Description: "Day 2 to Day 3", MaxAgeHours: 72.0, IntervalHours: 12.0},
			{Description: "Day 3 to Day 7", MaxAgeHours: 168.0, IntervalHours: 24.0},
		},
	}
}
