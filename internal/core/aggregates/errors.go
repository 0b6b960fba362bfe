package aggregates

import "errors"

// ErrAggregateNotFound is returned when no aggregate exists for a
// (feed, name, timeframe) key
var ErrAggregateNotFound = errors.New("aggregate not found")

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAggregateNotFound)
}
