package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// GeoFileName is the hashtag-to-location map inside the config directory.
const GeoFileName = "geo_hashtags_mapping.json"

// Location is one geography a hashtag maps to. City and region are optional;
// a bare country entry is valid.
type Location struct {
	City    *string `json:"city,omitempty"`
	Region  *string `json:"region,omitempty"`
	Country *string `json:"country,omitempty"`
}

// GeoMap maps normalized hashtags to locations.
type GeoMap map[string]Location

// NormalizeTag lowercases a hashtag and strips everything outside a-z and
// 0-9, so #SãoPaulo, #saopaulo and #sao_paulo collapse to one key.
func NormalizeTag(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tag) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InferLocation resolves a single location from a post's hashtags. The most
// specific level wins: the first city-bearing tag fixes all three levels,
// otherwise the first region-bearing tag fixes region and country, otherwise
// the first country-bearing tag fixes the country. A post whose tags name
// more than one distinct city is dropped entirely.
func (m GeoMap) InferLocation(hashtags []string) *Location {
	if len(hashtags) == 0 {
		return nil
	}

	var city, region, country *string
	cities := make(map[string]struct{})

	for _, tag := range hashtags {
		loc, ok := m[NormalizeTag(tag)]
		if !ok {
			continue
		}
		if hasValue(loc.City) {
			cities[*loc.City] = struct{}{}
		}
		switch {
		case hasValue(loc.City) && city == nil:
			city, region, country = loc.City, loc.Region, loc.Country
		case city == nil && hasValue(loc.Region) && region == nil:
			region, country = loc.Region, loc.Country
		case city == nil && region == nil && hasValue(loc.Country) && country == nil:
			country = loc.Country
		}
	}

	if len(cities) > 1 {
		return nil
	}
	if city == nil && region == nil && country == nil {
		return nil
	}
	return &Location{City: city, Region: region, Country: country}
}

// GeoFile tracks geo_hashtags_mapping.json on disk and reloads it when the
// file's modification time advances. A missing file disables geo inference
// rather than failing aggregation. Not safe for concurrent use; the
// aggregation worker is the only caller.
type GeoFile struct {
	path    string
	modTime time.Time
	current GeoMap
}

// NewGeoFile tracks the geo map inside the given config directory.
func NewGeoFile(dir string) *GeoFile {
	return &GeoFile{path: filepath.Join(dir, GeoFileName)}
}

// Current returns the active map, reloading the file first when it has
// changed on disk. A failed reload keeps the previously loaded map.
func (f *GeoFile) Current() GeoMap {
	info, err := os.Stat(f.path)
	if err != nil {
		if f.current == nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("No geo hashtag map found, geo aggregations will be empty", "path", f.path)
			} else {
				slog.Error("Failed to stat geo hashtag map", "path", f.path, "error", err)
			}
			f.current = GeoMap{}
		}
		return f.current
	}

	if f.current != nil && !info.ModTime().After(f.modTime) {
		return f.current
	}

	loaded, err := loadGeoMap(f.path)
	if err != nil {
		slog.Error("Failed to load geo hashtag map, keeping previous", "path", f.path, "error", err)
		if f.current == nil {
			f.current = GeoMap{}
		}
		return f.current
	}

	slog.Info("Loaded geo hashtag map", "path", f.path, "entries", len(loaded))
	f.current = loaded
	f.modTime = info.ModTime()
	return f.current
}

func loadGeoMap(path string) (GeoMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var raw map[string]Location
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	m := make(GeoMap, len(raw))
	for tag, loc := range raw {
		m[NormalizeTag(tag)] = loc
	}
	return m, nil
}

type geoEnvelope struct {
	Top []*GeoCard `json:"top"`
}

type geoLevel int

const (
	geoCity geoLevel = iota
	geoRegion
	geoCountry
)

func (s *service) topCities(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	return s.topGeo(ctx, feedID, tf, geoCity)
}

func (s *service) topRegions(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	return s.topGeo(ctx, feedID, tf, geoRegion)
}

func (s *service) topCountries(ctx context.Context, feedID string, tf Timeframe) (*Result, error) {
	return s.topGeo(ctx, feedID, tf, geoCountry)
}

func (s *service) topGeo(ctx context.Context, feedID string, tf Timeframe, level geoLevel) (*Result, error) {
	since := tf.Boundary(time.Now().UTC())
	lists, err := s.repo.HashtagLists(ctx, feedID, since)
	if err != nil {
		return nil, err
	}
	geoMap := s.geo.Current()

	counts := make(map[string]int64)
	var order []string
	for _, tags := range lists {
		loc := geoMap.InferLocation(tags)
		if loc == nil {
			continue
		}
		var key *string
		switch level {
		case geoCity:
			key = loc.City
		case geoRegion:
			key = loc.Region
		case geoCountry:
			key = loc.Country
		}
		if !hasValue(key) {
			continue
		}
		if _, ok := counts[*key]; !ok {
			order = append(order, *key)
		}
		counts[*key]++
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > resultLimit {
		order = order[:resultLimit]
	}

	cards := make([]*GeoCard, 0, len(order))
	for _, name := range order {
		card := &GeoCard{Type: "geo", Count: counts[name]}
		value := name
		switch level {
		case geoCity:
			card.City = &value
		case geoRegion:
			card.Region = &value
		case geoCountry:
			card.Country = &value
		}
		cards = append(cards, card)
	}
	return &Result{Payload: geoEnvelope{Top: cards}}, nil
}
