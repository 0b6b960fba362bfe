package feeds

import (
	"errors"
	"fmt"
)

// ErrFeedNotFound is returned when a feed doesn't exist
var ErrFeedNotFound = errors.New("feed not found")

// InvalidATURIError indicates a bluesky_at_uri that does not follow the
// at://did/collection/rkey shape.
type InvalidATURIError struct {
	URI string
}

func (e *InvalidATURIError) Error() string {
	return fmt.Sprintf("invalid AT URI format: %s", e.URI)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFeedNotFound)
}
