package posts

import (
	"errors"
	"fmt"
	"time"
)

// ErrPostNotFound is returned when a post doesn't exist in the index
var ErrPostNotFound = errors.New("post not found")

// ErrNotPostRecord is returned for commit events carrying a record other than
// app.bsky.feed.post. Callers should skip these silently.
var ErrNotPostRecord = errors.New("not an app.bsky.feed.post record")

// MalformedRecordError represents a post record missing a required field
type MalformedRecordError struct {
	Field string
}

func (e MalformedRecordError) Error() string {
	return fmt.Sprintf("post record missing required field %q", e.Field)
}

// FutureTimestampError represents a post claiming a createdAt further in the
// future than the allowed clock skew
type FutureTimestampError struct {
	URI       string
	CreatedAt time.Time
}

func (e FutureTimestampError) Error() string {
	return fmt.Sprintf("post %s has future timestamp %s", e.URI, e.CreatedAt.Format(time.RFC3339))
}

// TimestampParseError wraps an unparseable createdAt value
type TimestampParseError struct {
	Value string
	Err   error
}

func (e TimestampParseError) Error() string {
	return fmt.Sprintf("could not parse createdAt %q: %v", e.Value, e.Err)
}

func (e TimestampParseError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if an error indicates a missing post
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPostNotFound)
}
