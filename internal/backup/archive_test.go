package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"level.dat":         "header",
		"db/000001.ldb":     "chunks",
		"db/CURRENT":        "MANIFEST-000002",
		"nested/deep/x.txt": "x",
	}
	for name, data := range files {
		path := filepath.Join(src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))

	zipPath := filepath.Join(t.TempDir(), "world.zip")
	require.NoError(t, Archive(src, zipPath))

	dst := t.TempDir()
	require.NoError(t, Extract(zipPath, dst))
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.DirExists(t, filepath.Join(dst, "empty"))
}

func TestArchiveMissingDir(t *testing.T) {
	err := Archive(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "out.zip"))
	assert.Error(t, err)
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../outside.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dst := filepath.Join(t.TempDir(), "target")
	assert.ErrorContains(t, Extract(zipPath, dst), "escapes")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dst), "outside.txt"))
}

func TestFileNames(t *testing.T) {
	ms, ok := ParseFileName("1700000000123.zip")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000123), ms)

	for _, name := range []string{"x.zip", "12.tar", "-5.zip", ".zip"} {
		_, ok := ParseFileName(name)
		assert.False(t, ok, name)
	}

	backups := []Backup{{CreationTime: 1}, {CreationTime: 3}, {CreationTime: 2}}
	SortNewestFirst(backups)
	assert.Equal(t, []int64{3, 2, 1}, []int64{backups[0].CreationTime, backups[1].CreationTime, backups[2].CreationTime})
}
