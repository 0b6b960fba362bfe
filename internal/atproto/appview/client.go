package appview

import (
	"context"
	"fmt"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
)

// MaxBatchSize is the largest batch accepted by the AppView's getPosts and
// getProfiles endpoints.
const MaxBatchSize = 25

// Client is a thin wrapper over the public Bluesky AppView XRPC API covering
// the read endpoints the workers need: post hydration for engagement polling,
// profile hydration for the resolver, and feed generator metadata.
type Client struct {
	xrpc *xrpc.Client
}

// NewClient creates an AppView client for the given host,
// e.g. https://public.api.bsky.app
func NewClient(host string) *Client {
	return &Client{
		xrpc: &xrpc.Client{
			Host: host,
		},
	}
}

// GetPosts hydrates up to MaxBatchSize post views keyed by AT URI.
// URIs absent from the result were deleted or taken down.
func (c *Client) GetPosts(ctx context.Context, uris []string) (map[string]*bsky.FeedDefs_PostView, error) {
	if len(uris) == 0 {
		return map[string]*bsky.FeedDefs_PostView{}, nil
	}
	if len(uris) > MaxBatchSize {
		return nil, fmt.Errorf("getPosts accepts at most %d uris, got %d", MaxBatchSize, len(uris))
	}

	out, err := bsky.FeedGetPosts(ctx, c.xrpc, uris)
	if err != nil {
		return nil, fmt.Errorf("getPosts failed: %w", err)
	}

	views := make(map[string]*bsky.FeedDefs_PostView, len(out.Posts))
	for _, post := range out.Posts {
		views[post.Uri] = post
	}
	return views, nil
}

// GetProfiles hydrates up to MaxBatchSize detailed profile views.
func (c *Client) GetProfiles(ctx context.Context, dids []string) ([]*bsky.ActorDefs_ProfileViewDetailed, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	if len(dids) > MaxBatchSize {
		return nil, fmt.Errorf("getProfiles accepts at most %d actors, got %d", MaxBatchSize, len(dids))
	}

	out, err := bsky.ActorGetProfiles(ctx, c.xrpc, dids)
	if err != nil {
		return nil, fmt.Errorf("getProfiles failed: %w", err)
	}
	return out.Profiles, nil
}

// GetFeedGenerator fetches the generator view for a feed AT URI.
func (c *Client) GetFeedGenerator(ctx context.Context, atURI string) (*bsky.FeedDefs_GeneratorView, error) {
	out, err := bsky.FeedGetFeedGenerator(ctx, c.xrpc, atURI)
	if err != nil {
		return nil, fmt.Errorf("getFeedGenerator failed: %w", err)
	}
	if out.View == nil {
		return nil, fmt.Errorf("getFeedGenerator returned no view for %s", atURI)
	}
	return out.View, nil
}
