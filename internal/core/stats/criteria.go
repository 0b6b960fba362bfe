package stats

// Comparison operators accepted in achievement criteria.
const (
	OpGT  = ">"
	OpLT  = "<"
	OpGTE = ">="
	OpLTE = "<="
	OpEQ  = "=="
	OpNEQ = "!="
)

// Criteria is the declarative rule an achievement is evaluated with. Stat
// names come from the Stat* constants; AggMethod applies only to global
// achievements and describes how to collapse a user's per-feed rows into a
// single value.
type Criteria struct {
	Stat      string `json:"stat"`
	Operator  string `json:"operator"`
	Value     int64  `json:"value"`
	AggMethod string `json:"agg_method,omitempty"`
}

// Valid reports whether the criteria carry enough to be evaluated. Rows
// edited through the admin surface can end up with missing pieces; those
// simply never match.
func (c *Criteria) Valid() bool {
	return c != nil && c.Stat != "" && c.Operator != ""
}

// Met reports whether actual satisfies the operator against the required
// value. Unknown operators never match.
func (c *Criteria) Met(actual int64) bool {
	switch c.Operator {
	case OpGT:
		return actual > c.Value
	case OpLT:
		return actual < c.Value
	case OpGTE:
		return actual >= c.Value
	case OpLTE:
		return actual <= c.Value
	case OpEQ:
		return actual == c.Value
	case OpNEQ:
		return actual != c.Value
	default:
		return false
	}
}

// PerFeedValue reads the criteria's stat from a single per-feed stats row.
func (c *Criteria) PerFeedValue(row *UserStats) (int64, bool) {
	return row.StatValue(c.Stat)
}

// GlobalValue collapses all of a user's stats rows into one value using the
// criteria's aggregation method. An empty row set or an unknown method yields
// no value.
func (c *Criteria) GlobalValue(rows []*UserStats) (int64, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	switch c.AggMethod {
	case AggCount:
		return int64(len(rows)), true
	case AggSum:
		var total int64
		for _, row := range rows {
			v, _ := row.StatValue(c.Stat)
			total += v
		}
		return total, true
	case AggMax:
		var max int64
		for _, row := range rows {
			if v, _ := row.StatValue(c.Stat); v > max {
				max = v
			}
		}
		return max, true
	default:
		return 0, false
	}
}
