package aggregates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NewsFileName is the news domain whitelist inside the config directory.
const NewsFileName = "news_domains.json"

// NewsFile tracks news_domains.json on disk and reloads it when the file's
// modification time advances. A missing file leaves the whitelist empty, so
// the news card aggregation returns empty payloads. Not safe for concurrent
// use; the aggregation worker is the only caller.
type NewsFile struct {
	path    string
	modTime time.Time
	current []string
}

// NewNewsFile tracks the news domain list inside the given config directory.
func NewNewsFile(dir string) *NewsFile {
	return &NewsFile{path: filepath.Join(dir, NewsFileName)}
}

// Current returns the active whitelist, reloading the file first when it has
// changed on disk. A failed reload keeps the previously loaded list.
func (f *NewsFile) Current() []string {
	info, err := os.Stat(f.path)
	if err != nil {
		if f.current == nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("No news domain list found, news card aggregations will be empty", "path", f.path)
			} else {
				slog.Error("Failed to stat news domain list", "path", f.path, "error", err)
			}
			f.current = []string{}
		}
		return f.current
	}

	if f.current != nil && !info.ModTime().After(f.modTime) {
		return f.current
	}

	loaded, err := loadNewsDomains(f.path)
	if err != nil {
		slog.Error("Failed to load news domain list, keeping previous", "path", f.path, "error", err)
		if f.current == nil {
			f.current = []string{}
		}
		return f.current
	}

	slog.Info("Loaded news domain list", "path", f.path, "domains", len(loaded))
	f.current = loaded
	f.modTime = info.ModTime()
	return f.current
}

func loadNewsDomains(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	domains := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains, nil
}
