package polling

import "time"

// NextPollDelay decides when a post should be polled again given its age and
// current engagement score. ok is false when the post should be retired.
//
// Young posts move through fixed checkpoints, each rescheduling for the next
// checkpoint's age. The 30 minute checkpoint retires posts still at the
// elimination score, the 1 hour checkpoint retires posts at or below the
// elimination threshold. Survivors use the tier table.
func (c *Config) NextPollDelay(age time.Duration, score int64) (time.Duration, bool) {
	rules := c.DeactivationRules
	ageHours := age.Hours()

	// A post aged exactly hard_stop_hours still gets one more poll.
	if ageHours > rules.HardStopHours {
		return 0, false
	}

	switch {
	case ageHours <= rules.FirstPollAgeHours:
		return hoursToDuration(rules.SecondPollAgeHours - ageHours), true

	case ageHours <= rules.SecondPollAgeHours:
		return hoursToDuration(rules.ThirdPollAgeHours - ageHours), true

	case ageHours <= rules.ThirdPollAgeHours:
		return hoursToDuration(rules.FourthPollAgeHours - ageHours), true

	case ageHours <= rules.FourthPollAgeHours:
		if score == rules.FourthPollEliminationScore {
			return 0, false
		}
		return hoursToDuration(rules.FifthPollAgeHours - ageHours), true

	case ageHours <= rules.FifthPollAgeHours:
		if score <= rules.FifthPollEliminationScoreThreshold {
			return 0, false
		}
		// Survivors fall through to the tiered schedule.
	}

	for _, tier := range c.Tiers {
		if ageHours <= tier.MaxAgeHours {
			return hoursToDuration(tier.IntervalHours), true
		}
	}

	// Posts that outlive every tier stop being polled.
	return 0, false
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
