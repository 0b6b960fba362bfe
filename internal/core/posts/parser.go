package posts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// clockSkewAllowance is how far in the future a record's createdAt may sit
	// before the post is rejected outright.
	clockSkewAllowance = 5 * time.Minute

	// initialPollDelay schedules the first engagement poll for a fresh post.
	initialPollDelay = 5 * time.Minute

	imageCDNBase = "https://cdn.bsky.app/img/feed_thumbnail/plain"
	videoCDNBase = "https://video.cdn.bsky.app/hls"
)

// BuildPost converts a raw post record from a Contrails commit into an
// indexable Post: it validates required fields, extracts hashtags, links and
// mentions from facets, flattens the embed union (images, external link card,
// quote, video) and schedules the first engagement poll.
//
// now anchors both the future-timestamp check and the poll schedule so callers
// and tests control the clock.
func BuildPost(authorDID, cid, rkey string, raw json.RawMessage, now time.Time) (*Post, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse post record: %w", err)
	}
	if rec.Type != RecordType {
		return nil, ErrNotPostRecord
	}
	if cid == "" {
		return nil, MalformedRecordError{Field: "cid"}
	}
	if rkey == "" {
		return nil, MalformedRecordError{Field: "rkey"}
	}
	if rec.CreatedAt == "" {
		return nil, MalformedRecordError{Field: "createdAt"}
	}

	uri := fmt.Sprintf("at://%s/%s/%s", authorDID, RecordType, rkey)

	createdAt, err := ParseCreatedAt(rec.CreatedAt)
	if err != nil {
		return nil, TimestampParseError{Value: rec.CreatedAt, Err: err}
	}
	// AT Protocol records may claim any timestamp. Tolerate clock skew but
	// refuse posts from the future so windowed aggregations stay honest.
	if createdAt.After(now.Add(clockSkewAllowance)) {
		return nil, FutureTimestampError{URI: uri, CreatedAt: createdAt}
	}

	firstPoll := now.Add(initialPollDelay)
	p := &Post{
		URI:                uri,
		CID:                cid,
		Text:               rec.Text,
		CreatedAt:          createdAt,
		IngestedAt:         now,
		AuthorDID:          authorDID,
		RawRecord:          raw,
		IsActiveForPolling: true,
		NextPollAt:         &firstPoll,
	}

	b := &recordParser{post: p, authorDID: authorDID, now: now, seenLinks: make(map[string]bool)}
	b.applyFacets(rec.Facets)
	if len(rec.Embed) > 0 {
		b.applyEmbed(rec.Embed)
	}
	return p, nil
}

// recordParser accumulates derived post fields while walking facets and the
// embed union. seenLinks de-duplicates link URIs across facets and link cards.
type recordParser struct {
	post      *Post
	authorDID string
	now       time.Time
	seenLinks map[string]bool
}

func (b *recordParser) applyFacets(facets []Facet) {
	if len(facets) == 0 {
		return
	}
	for _, f := range facets {
		for _, feat := range f.Features {
			switch feat.Type {
			case FacetLink:
				b.post.HasLink = true
				b.addLink(feat.URI)
				if b.post.LinkURL == nil && feat.URI != "" {
					uri := feat.URI
					b.post.LinkURL = &uri
				}
			case FacetMention:
				b.post.HasMention = true
				b.post.Mentions = append(b.post.Mentions, Mention{DID: feat.DID})
			case FacetTag:
				if feat.Tag != "" {
					b.post.Hashtags = append(b.post.Hashtags, feat.Tag)
				}
			}
		}
	}
	if data, err := json.Marshal(facets); err == nil {
		b.post.Facets = data
	}
}

func (b *recordParser) applyEmbed(raw json.RawMessage) {
	b.post.Embed = raw

	var shell embedShell
	if err := json.Unmarshal(raw, &shell); err != nil {
		return
	}

	switch shell.Type {
	case EmbedImages:
		b.applyImages(shell.Images)
	case EmbedExternal:
		b.applyExternal(shell.External)
	case EmbedVideo:
		b.applyVideo(&shell)
	case EmbedRecord:
		b.post.HasQuote = true
		b.applyQuoted(shell.Record)
	case EmbedRecordWithMedia:
		b.post.HasQuote = true
		// The record half nests another record embed.
		var inner embedShell
		if err := json.Unmarshal(shell.Record, &inner); err == nil && inner.Type == EmbedRecord {
			b.applyQuoted(inner.Record)
		}
		if len(shell.Media) > 0 {
			var media embedShell
			if err := json.Unmarshal(shell.Media, &media); err == nil {
				switch media.Type {
				case EmbedImages:
					b.applyImages(media.Images)
				case EmbedExternal:
					b.applyExternal(media.External)
				case EmbedVideo:
					b.applyVideo(&media)
				}
			}
		}
	}
}

func (b *recordParser) applyImages(items []imageItem) {
	for _, item := range items {
		var url string
		switch {
		case item.Image != nil:
			url = ImageCDNURL(b.authorDID, item.Image)
		case item.Fullsize != "":
			url = item.Fullsize
		}
		if url == "" {
			continue
		}
		detail := ImageDetail{URL: url}
		if alt := strings.TrimSpace(item.Alt); alt != "" {
			detail.Alt = &alt
			b.post.HasAltText = true
		}
		b.post.Images = append(b.post.Images, detail)
	}
	if len(b.post.Images) > 0 {
		b.post.HasImage = true
	}
}

func (b *recordParser) applyExternal(ext *externalItem) {
	if ext == nil {
		return
	}
	b.post.HasLink = true
	if ext.URI != "" {
		uri := ext.URI
		b.post.LinkURL = &uri
		b.addLink(ext.URI)
	}
	if ext.Title != "" {
		title := ext.Title
		b.post.LinkTitle = &title
	}
	if ext.Description != "" {
		desc := ext.Description
		b.post.LinkDescription = &desc
	}
	if url := b.thumbURL(ext.Thumb); url != "" {
		b.post.ThumbnailURL = &url
	}
}

func (b *recordParser) applyVideo(shell *embedShell) {
	if shell.Video == nil || shell.Video.Type != "blob" {
		return
	}
	b.post.HasVideo = true

	switch {
	case shell.Thumb != nil:
		if url := ImageCDNURL(b.authorDID, shell.Thumb); url != "" {
			b.post.ThumbnailURL = &url
		}
	case shell.Video.Ref.Link != "":
		url := fmt.Sprintf("%s/%s/%s/thumbnail.jpg", videoCDNBase, b.authorDID, shell.Video.Ref.Link)
		b.post.ThumbnailURL = &url
	}

	if ar := shell.AspectRatio; ar != nil {
		w, h := ar.Width, ar.Height
		b.post.AspectRatioWidth = &w
		b.post.AspectRatioHeight = &h
	}
}

func (b *recordParser) applyQuoted(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var q quotedRecord
	if err := json.Unmarshal(raw, &q); err != nil {
		return
	}

	setIfNotEmpty := func(dst **string, v string) {
		if v != "" {
			s := v
			*dst = &s
		}
	}
	setIfNotEmpty(&b.post.QuotedPostURI, q.URI)
	setIfNotEmpty(&b.post.QuotedPostCID, q.CID)
	setIfNotEmpty(&b.post.QuotedPostAuthorDID, q.Value.Author.DID)
	setIfNotEmpty(&b.post.QuotedPostAuthorHandle, q.Value.Author.Handle)
	setIfNotEmpty(&b.post.QuotedPostAuthorDisplayName, q.Value.Author.DisplayName)
	setIfNotEmpty(&b.post.QuotedPostText, q.Value.Text)
	b.post.QuotedPostLikeCount = q.Value.LikeCount
	b.post.QuotedPostRepostCount = q.Value.RepostCount
	b.post.QuotedPostReplyCount = q.Value.ReplyCount

	if q.Value.CreatedAt != "" {
		if ts, err := ParseCreatedAt(q.Value.CreatedAt); err == nil && !ts.After(b.now.Add(clockSkewAllowance)) {
			b.post.QuotedPostCreatedAt = &ts
		}
	}
}

// thumbURL resolves a link card thumbnail that may arrive either as a blob
// reference or as an already-hydrated URL string.
func (b *recordParser) thumbURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var blob Blob
	if err := json.Unmarshal(raw, &blob); err == nil && blob.Type == "blob" {
		return ImageCDNURL(b.authorDID, &blob)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func (b *recordParser) addLink(uri string) {
	if uri == "" || b.seenLinks[uri] {
		return
	}
	b.seenLinks[uri] = true
	b.post.Links = append(b.post.Links, LinkDetail{URI: uri})
}

// ImageCDNURL builds the public CDN address for an image blob. The file
// extension comes from the blob's MIME subtype, falling back to jpeg for
// missing or non-raster types.
func ImageCDNURL(did string, blob *Blob) string {
	if blob == nil || blob.Ref.Link == "" {
		return ""
	}
	ext := "jpeg"
	if i := strings.LastIndexByte(blob.MimeType, '/'); i >= 0 && i < len(blob.MimeType)-1 {
		ext = blob.MimeType[i+1:]
	}
	if ext == "image" || ext == "svg+xml" {
		ext = "jpeg"
	}
	return fmt.Sprintf("%s/%s/%s@%s", imageCDNBase, did, blob.Ref.Link, ext)
}

// VideoHLSThumbnail derives the CDN thumbnail address for a post's video
// straight from its raw record, for rows whose thumbnail column never got
// populated. Returns "" when the record carries no video blob.
func VideoHLSThumbnail(authorDID string, raw json.RawMessage) string {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil || len(rec.Embed) == 0 {
		return ""
	}
	var shell embedShell
	if err := json.Unmarshal(rec.Embed, &shell); err != nil {
		return ""
	}
	video := shell.Video
	if video == nil && len(shell.Media) > 0 {
		var media embedShell
		if err := json.Unmarshal(shell.Media, &media); err == nil {
			video = media.Video
		}
	}
	if video == nil || video.Ref.Link == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s/thumbnail.jpg", videoCDNBase, authorDID, video.Ref.Link)
}

// ParseCreatedAt parses the loose ISO 8601 timestamps found in firehose
// records. Some clients emit more fractional digits than RFC 3339 parsers
// accept, so anything beyond microsecond precision is truncated. A fractional
// timestamp without a timezone designator is assumed UTC.
func ParseCreatedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		end := dot + 1
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		frac := s[dot+1 : end]
		if len(frac) > 6 {
			frac = frac[:6]
		}
		tz := s[end:]
		if tz == "" {
			tz = "Z"
		}
		s = s[:dot] + "." + frac + tz
	}

	return time.Parse(time.RFC3339, s)
}

// RKeyFromURI extracts the record key from an AT URI.
func RKeyFromURI(uri string) string {
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// WebURL returns the public bsky.app permalink for a post, addressed by the
// author's current handle.
func WebURL(handle, uri string) string {
	return "https://bsky.app/profile/" + handle + "/post/" + RKeyFromURI(uri)
}
