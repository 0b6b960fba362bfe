package posts

import "encoding/json"

// RecordType is the post collection's record $type.
const RecordType = "app.bsky.feed.post"

// Rich text facet feature discriminators.
const (
	FacetLink    = "app.bsky.richtext.facet#link"
	FacetMention = "app.bsky.richtext.facet#mention"
	FacetTag     = "app.bsky.richtext.facet#tag"
)

// Embed discriminators.
const (
	EmbedImages          = "app.bsky.embed.images"
	EmbedExternal        = "app.bsky.embed.external"
	EmbedRecord          = "app.bsky.embed.record"
	EmbedRecordWithMedia = "app.bsky.embed.recordWithMedia"
	EmbedVideo           = "app.bsky.embed.video"
)

// Record mirrors the app.bsky.feed.post lexicon shape as it arrives in a
// Contrails commit event. The embed stays raw because its shape depends on
// the $type discriminator inside it.
type Record struct {
	Type      string          `json:"$type"`
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Langs     []string        `json:"langs,omitempty"`
	Facets    []Facet         `json:"facets,omitempty"`
	Embed     json.RawMessage `json:"embed,omitempty"`
	Reply     json.RawMessage `json:"reply,omitempty"`
}

// Facet is one rich text annotation over a byte range of the post text.
type Facet struct {
	Index    FacetIndex     `json:"index"`
	Features []FacetFeature `json:"features"`
}

// FacetIndex addresses a byte range in the UTF-8 encoded post text.
type FacetIndex struct {
	ByteStart int64 `json:"byteStart"`
	ByteEnd   int64 `json:"byteEnd"`
}

// FacetFeature is one feature of a facet. Only the field matching Type is set.
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	DID  string `json:"did,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// Blob is the lexicon blob reference shape used for images and video.
type Blob struct {
	Type     string  `json:"$type"`
	Ref      BlobRef `json:"ref"`
	MimeType string  `json:"mimeType"`
}

// BlobRef carries the CID link of a blob.
type BlobRef struct {
	Link string `json:"$link"`
}

// embedShell is a superset of every embed variant; the $type discriminator
// decides which fields are meaningful. Reused for the media half of
// recordWithMedia embeds.
type embedShell struct {
	Type        string          `json:"$type"`
	Images      []imageItem     `json:"images,omitempty"`
	External    *externalItem   `json:"external,omitempty"`
	Record      json.RawMessage `json:"record,omitempty"`
	Media       json.RawMessage `json:"media,omitempty"`
	Video       *Blob           `json:"video,omitempty"`
	Thumb       *Blob           `json:"thumb,omitempty"`
	AspectRatio *aspectRatio    `json:"aspectRatio,omitempty"`
}

type imageItem struct {
	Image    *Blob  `json:"image,omitempty"`
	Fullsize string `json:"fullsize,omitempty"`
	Alt      string `json:"alt,omitempty"`
}

// externalItem is a link card. The thumb arrives as a blob from the firehose
// but as a plain CDN URL in hydrated views, so it stays raw until parsed.
type externalItem struct {
	URI         string          `json:"uri"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Thumb       json.RawMessage `json:"thumb,omitempty"`
}

type aspectRatio struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// quotedRecord is the hydrated view of a quoted post inside an
// app.bsky.embed.record embed.
type quotedRecord struct {
	URI   string      `json:"uri"`
	CID   string      `json:"cid"`
	Value quotedValue `json:"value"`
}

type quotedValue struct {
	Text        string       `json:"text"`
	CreatedAt   string       `json:"createdAt"`
	Author      quotedAuthor `json:"author"`
	LikeCount   int64        `json:"likeCount"`
	RepostCount int64        `json:"repostCount"`
	ReplyCount  int64        `json:"replyCount"`
}

type quotedAuthor struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}
