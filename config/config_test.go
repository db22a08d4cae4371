package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstExistingPicksFirstHit(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "chipdata.cid")
	require.NoError(t, os.WriteFile(present, []byte("CHIPname = 12F675\n"), 0o644))

	got, err := firstExisting([]string{
		filepath.Join(dir, "missing", "chipdata.cid"),
		present,
		filepath.Join(dir, "also-missing.cid"),
	})
	require.NoError(t, err)
	require.Equal(t, present, got)
}

func TestFirstExistingSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	asDir := filepath.Join(dir, "chipdata.cid")
	require.NoError(t, os.Mkdir(asDir, 0o755))

	got, err := firstExisting([]string{asDir})
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestSearchPathsStartWithSystemInstall(t *testing.T) {
	paths := searchPaths()
	require.NotEmpty(t, paths)
	require.Equal(t, filepath.Join(string(filepath.Separator), "usr", "share", "picpro", "chipdata.cid"), paths[0])
}
