package aggregates

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"feedmaster/internal/core/posts"
)

func testGeoMap() GeoMap {
	return GeoMap{
		"nyc":        {City: strp("New York"), Region: strp("New York"), Country: strp("USA")},
		"london":     {City: strp("London"), Region: strp("England"), Country: strp("UK")},
		"california": {Region: strp("California"), Country: strp("USA")},
		"usa":        {Country: strp("USA")},
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NYC", "nyc"},
		{"San-Francisco", "sanfrancisco"},
		{"Tel_Aviv2024", "telaviv2024"},
		{"#london!", "london"},
		{"日本", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTag(tt.in), tt.in)
	}
}

func TestGeoMap_InferLocation(t *testing.T) {
	m := testGeoMap()

	t.Run("city tag fixes the full triple", func(t *testing.T) {
		loc := m.InferLocation([]string{"nyc"})
		require.NotNil(t, loc)
		assert.Equal(t, "New York", *loc.City)
		assert.Equal(t, "New York", *loc.Region)
		assert.Equal(t, "USA", *loc.Country)
	})

	t.Run("city overrides an earlier region tag", func(t *testing.T) {
		loc := m.InferLocation([]string{"california", "nyc"})
		require.NotNil(t, loc)
		assert.Equal(t, "New York", *loc.City)
		assert.Equal(t, "New York", *loc.Region)
	})

	t.Run("region tag after a city is ignored", func(t *testing.T) {
		loc := m.InferLocation([]string{"nyc", "california"})
		require.NotNil(t, loc)
		assert.Equal(t, "New York", *loc.Region)
	})

	t.Run("region tag alone", func(t *testing.T) {
		loc := m.InferLocation([]string{"california"})
		require.NotNil(t, loc)
		assert.Nil(t, loc.City)
		assert.Equal(t, "California", *loc.Region)
		assert.Equal(t, "USA", *loc.Country)
	})

	t.Run("country tag alone", func(t *testing.T) {
		loc := m.InferLocation([]string{"usa"})
		require.NotNil(t, loc)
		assert.Nil(t, loc.City)
		assert.Nil(t, loc.Region)
		assert.Equal(t, "USA", *loc.Country)
	})

	t.Run("conflicting cities drop the post", func(t *testing.T) {
		assert.Nil(t, m.InferLocation([]string{"nyc", "london"}))
	})

	t.Run("repeated city is not a conflict", func(t *testing.T) {
		loc := m.InferLocation([]string{"nyc", "nyc"})
		require.NotNil(t, loc)
		assert.Equal(t, "New York", *loc.City)
	})

	t.Run("tags are normalized before lookup", func(t *testing.T) {
		loc := m.InferLocation([]string{"#NYC!"})
		require.NotNil(t, loc)
		assert.Equal(t, "New York", *loc.City)
	})

	t.Run("unknown tags resolve nothing", func(t *testing.T) {
		assert.Nil(t, m.InferLocation([]string{"golang", "coffee"}))
	})

	t.Run("no tags", func(t *testing.T) {
		assert.Nil(t, m.InferLocation(nil))
	})
}

func TestService_TopCitiesAndRegions(t *testing.T) {
	lists := [][]string{
		{"nyc"},
		{"nyc", "coffee"},
		{"london"},
		{"california"},
		{"golang"},
	}
	repo := new(mockRepository)
	repo.On("HashtagLists", mock.Anything, "tech", mock.Anything).Return(lists, nil)
	svc := NewService(repo, fixedGeoSource{testGeoMap()}, fixedNewsSource{}, posts.DefaultWeights)

	res, err := svc.Compute(context.Background(), "tech", TopCities, Timeframe1Day)
	require.NoError(t, err)

	cities := res.Payload.(geoEnvelope)
	require.Len(t, cities.Top, 2)
	assert.Equal(t, "geo", cities.Top[0].Type)
	assert.Equal(t, "New York", *cities.Top[0].City)
	assert.Equal(t, int64(2), cities.Top[0].Count)
	assert.Nil(t, cities.Top[0].Region)
	assert.Equal(t, "London", *cities.Top[1].City)

	// The region level picks up region-only posts the city level misses.
	res, err = svc.Compute(context.Background(), "tech", TopRegions, Timeframe1Day)
	require.NoError(t, err)

	regions := res.Payload.(geoEnvelope)
	require.Len(t, regions.Top, 3)
	assert.Equal(t, "New York", *regions.Top[0].Region)
	assert.Equal(t, int64(2), regions.Top[0].Count)
	assert.Equal(t, "England", *regions.Top[1].Region)
	assert.Equal(t, "California", *regions.Top[2].Region)
}

func TestService_TopCountries_ConflictingPostsExcluded(t *testing.T) {
	lists := [][]string{
		{"nyc", "london"},
		{"usa"},
	}
	repo := new(mockRepository)
	repo.On("HashtagLists", mock.Anything, "tech", mock.Anything).Return(lists, nil)
	svc := NewService(repo, fixedGeoSource{testGeoMap()}, fixedNewsSource{}, posts.DefaultWeights)

	res, err := svc.Compute(context.Background(), "tech", TopCountries, TimeframeAllTime)
	require.NoError(t, err)

	env := res.Payload.(geoEnvelope)
	require.Len(t, env.Top, 1)
	assert.Equal(t, "USA", *env.Top[0].Country)
	assert.Equal(t, int64(1), env.Top[0].Count)
}

func TestGeoFile_MissingFileYieldsEmptyMap(t *testing.T) {
	f := NewGeoFile(t.TempDir())

	m := f.Current()
	require.NotNil(t, m)
	assert.Empty(t, m)
}

func TestGeoFile_LoadsAndNormalizesKeys(t *testing.T) {
	dir := t.TempDir()
	contents := `{"New-York": {"city": "New York", "region": "New York", "country": "USA"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, GeoFileName), []byte(contents), 0o644))

	m := NewGeoFile(dir).Current()
	require.Len(t, m, 1)
	loc, ok := m["newyork"]
	require.True(t, ok)
	assert.Equal(t, "New York", *loc.City)
}

func TestGeoFile_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, GeoFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"nyc": {"city": "New York"}}`), 0o644))

	f := NewGeoFile(dir)
	require.Len(t, f.Current(), 1)

	require.NoError(t, os.WriteFile(path, []byte(`{"nyc": {"city": "New York"}, "london": {"city": "London"}}`), 0o644))
	later := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Len(t, f.Current(), 2)
}

func TestGeoFile_BrokenReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, GeoFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"nyc": {"city": "New York"}}`), 0o644))

	f := NewGeoFile(dir)
	require.Len(t, f.Current(), 1)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	later := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	m := f.Current()
	require.Len(t, m, 1)
	assert.Equal(t, "New York", *m["nyc"].City)
}

func TestGeoFile_FileAppearingAfterStartIsPickedUp(t *testing.T) {
	dir := t.TempDir()
	f := NewGeoFile(dir)
	require.Empty(t, f.Current())

	require.NoError(t, os.WriteFile(filepath.Join(dir, GeoFileName), []byte(`{"nyc": {"city": "New York"}}`), 0o644))

	assert.Len(t, f.Current(), 1)
}
