package aggregates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewsFile_MissingFileYieldsEmptyList(t *testing.T) {
	f := NewNewsFile(t.TempDir())

	domains := f.Current()
	require.NotNil(t, domains)
	assert.Empty(t, domains)
}

func TestNewsFile_LoadsAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	contents := `["NYTimes.com", " bbc.co.uk ", ""]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, NewsFileName), []byte(contents), 0o644))

	domains := NewNewsFile(dir).Current()
	assert.Equal(t, []string{"nytimes.com", "bbc.co.uk"}, domains)
}

func TestNewsFile_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, NewsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`["nytimes.com"]`), 0o644))

	f := NewNewsFile(dir)
	require.Len(t, f.Current(), 1)

	require.NoError(t, os.WriteFile(path, []byte(`["nytimes.com", "reuters.com"]`), 0o644))
	later := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Equal(t, []string{"nytimes.com", "reuters.com"}, f.Current())
}

func TestNewsFile_BrokenReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, NewsFileName)
	require.NoError(t, os.WriteFile(path, []byte(`["nytimes.com"]`), 0o644))

	f := NewNewsFile(dir)
	require.Len(t, f.Current(), 1)

	require.NoError(t, os.WriteFile(path, []byte("[broken"), 0o644))
	later := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Equal(t, []string{"nytimes.com"}, f.Current())
}
