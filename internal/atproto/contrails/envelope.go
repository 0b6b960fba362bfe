package contrails

import "encoding/json"

// Event is one message from a Contrails feed stream. Contrails re-emits
// Jetstream commit events for the posts a feed generator matched, so the
// envelope mirrors the Jetstream shape.
type Event struct {
	Did    string  `json:"did"`
	Commit *Commit `json:"commit,omitempty"`
}

// Commit is the record write carried by an event. Record stays raw so the
// posts parser owns its interpretation.
type Commit struct {
	CID    string          `json:"cid"`
	RKey   string          `json:"rkey"`
	Record json.RawMessage `json:"record,omitempty"`
}
