package contrails

import (
	"errors"
	"fmt"
	"time"

	"feedmaster/internal/core/posts"

	"github.com/ipfs/go-cid"
)

// PostSink receives parsed posts for batched persistence. *Batcher satisfies it.
type PostSink interface {
	Enqueue(post *posts.Post, feedID string)
}

// Consumer turns raw Contrails events into indexable posts. A single consumer
// is shared by every feed stream; the feed ID rides along with each event.
type Consumer struct {
	sink PostSink
}

// NewConsumer creates a consumer that hands parsed posts to sink.
func NewConsumer(sink PostSink) *Consumer {
	return &Consumer{sink: sink}
}

// HandleEvent parses one stream event and queues the post it carries.
// Events without an app.bsky.feed.post record return nil so writes from other
// collections pass without noise. Anything else wrong with the event is an
// error; the connector logs it and keeps reading.
func (c *Consumer) HandleEvent(feedID string, event *Event) error {
	if event == nil || event.Commit == nil || len(event.Commit.Record) == 0 {
		return nil
	}

	// The record type check inside BuildPost runs first so non-post writes
	// stay silent even when the rest of the envelope is incomplete.
	post, err := posts.BuildPost(event.Did, event.Commit.CID, event.Commit.RKey, event.Commit.Record, time.Now().UTC())
	if err != nil {
		if errors.Is(err, posts.ErrNotPostRecord) {
			return nil
		}
		return err
	}
	if event.Did == "" {
		return posts.MalformedRecordError{Field: "did"}
	}
	if _, err := cid.Decode(post.CID); err != nil {
		return fmt.Errorf("post %s carries malformed cid %q: %w", post.URI, post.CID, err)
	}

	c.sink.Enqueue(post, feedID)
	return nil
}
