package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the feed configuration file inside the config directory.
const FileName = "feeds.json"

// defaultFileJSON is written when no feeds.json exists yet, so a fresh
// checkout can start streaming without manual setup.
const defaultFileJSON = `[
  {
    "id": "home-feed-graze",
    "name": "Graze Home Feed",
    "description": "The default home feed from Graze Contrails.",
    "contrails_websocket_url": "wss://api.graze.social/app/contrail",
    "bluesky_at_uri": "at://did:plc:lptjvw6ut224kwrj7ub3sqbe/app.bsky.feed.generator/aaaotfjzjplna",
    "tier": "silver"
  },
  {
    "id": "tech-news-graze",
    "name": "Graze Tech News",
    "description": "Tech news feed curated by Contrails.",
    "contrails_websocket_url": "wss://api.graze.social/app/contrail",
    "bluesky_at_uri": "at://did:plc:lptjvw6ut224kwrj7ub3sqbe/app.bsky.feed.generator/aaaic34mdicfg",
    "tier": "gold"
  }
]
`

// LoadFile reads feed definitions from dir/feeds.json. When the file does not
// exist a default sample file is written first and its contents returned.
func LoadFile(dir string) ([]*Feed, error) {
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("No feeds.json found, writing a default one", "path", path)
		if err := writeDefaultFile(path); err != nil {
			return nil, err
		}
		data = []byte(defaultFileJSON)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var configured []*Feed
	if err := json.Unmarshal(data, &configured); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return configured, nil
}

func writeDefaultFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFileJSON), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
