package polling

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileName is the schedule configuration file inside the config directory.
const FileName = "polling_config.json"

// File tracks polling_config.json on disk and reloads it when the file's
// modification time advances, so schedule changes apply without a restart.
// Not safe for concurrent use; the worker calls Current once per cycle.
type File struct {
	path    string
	modTime time.Time
	current *Config
}

// NewFile tracks the polling config inside the given config directory.
func NewFile(dir string) *File {
	return &File{path: filepath.Join(dir, FileName)}
}

// Current returns the active schedule, reloading the file first when it has
// changed on disk. A missing file is created with the default schedule. A
// failed reload keeps the previously loaded schedule.
func (f *File) Current() *Config {
	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if f.current == nil {
			slog.Warn("No polling config found, writing a default one", "path", f.path)
			f.current = Default()
			if werr := f.writeDefault(); werr != nil {
				slog.Error("Failed to write default polling config", "path", f.path, "error", werr)
			} else if info, serr := os.Stat(f.path); serr == nil {
				f.modTime = info.ModTime()
			}
		}
		return f.current
	}
	if err != nil {
		slog.Error("Failed to stat polling config", "path", f.path, "error", err)
		return f.fallback()
	}

	if f.current != nil && !info.ModTime().After(f.modTime) {
		return f.current
	}

	loaded, err := f.load()
	if err != nil {
		slog.Error("Failed to reload polling config, keeping previous schedule", "path", f.path, "error", err)
		return f.fallback()
	}

	if f.current != nil {
		slog.Info("Reloaded polling config", "path", f.path)
	} else {
		slog.Info("Loaded polling config", "path", f.path)
	}
	f.current = loaded
	f.modTime = info.ModTime()
	return f.current
}

func (f *File) load() (*Config, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	// Start from the defaults so keys absent from the file keep their
	// canonical values.
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return cfg, nil
}

func (f *File) fallback() *Config {
	if f.current == nil {
		f.current = Default()
	}
	return f.current
}

func (f *File) writeDefault() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}
