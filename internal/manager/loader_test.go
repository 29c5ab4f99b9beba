package manager

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	root := t.TempDir()
	return NewLoader(filepath.Join(root, "worlds"), filepath.Join(root, "templates"), zap.NewNop()), root
}

func writeLevel(t *testing.T, dir string, header int32, body any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, nbt.NewEncoderWithEncoding(&buf, nbt.LittleEndian).Encode(body))
	}
	data := make([]byte, 8, 8+buf.Len())
	binary.LittleEndian.PutUint32(data[:4], uint32(header))
	binary.LittleEndian.PutUint32(data[4:], uint32(buf.Len()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, levelFile), append(data, buf.Bytes()...), 0o644))
}

func TestDiscover(t *testing.T) {
	l, _ := newTestLoader(t)
	writeLevel(t, l.Path("Beta"), 9, nil)
	writeLevel(t, l.Path("alpha"), 9, nil)
	require.NoError(t, os.MkdirAll(l.Path("not-a-world"), 0o755))
	require.NoError(t, os.WriteFile(l.Path("stray.txt"), nil, 0o644))

	names, err := l.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "Beta"}, names)
}

func TestStorageVersion(t *testing.T) {
	l, _ := newTestLoader(t)
	writeLevel(t, l.Path("header"), 9, nil)
	writeLevel(t, l.Path("tagged"), 8, map[string]any{"StorageVersion": int32(11)})
	require.NoError(t, os.MkdirAll(l.Path("empty"), 0o755))

	assert.Equal(t, 9, l.StorageVersion("header"))
	assert.Equal(t, 11, l.StorageVersion("tagged"))
	assert.Equal(t, -1, l.StorageVersion("empty"))
	assert.Equal(t, -1, l.StorageVersion("missing"))

	assert.True(t, l.DataVersionTooHigh("tagged", 10))
	assert.False(t, l.DataVersionTooHigh("header", 10))
	assert.False(t, l.DataVersionTooHigh("empty", 10))
}

func TestGeneratorMarkerIsWrittenOnce(t *testing.T) {
	l, _ := newTestLoader(t)

	require.NoError(t, l.WriteGeneratorMarker("arena", "VOID"))
	require.NoError(t, l.WriteGeneratorMarker("arena", "FLAT"))

	got, ok := l.GeneratorMarker("arena")
	require.True(t, ok)
	assert.Equal(t, "VOID", got)

	_, ok = l.GeneratorMarker("missing")
	assert.False(t, ok)
}

func TestRenameAndDelete(t *testing.T) {
	l, _ := newTestLoader(t)
	writeLevel(t, l.Path("old"), 9, nil)
	writeLevel(t, l.Path("taken"), 9, nil)

	var loadErr *LoadError
	err := l.Rename("old", "taken")
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "taken", loadErr.World)

	require.NoError(t, l.Rename("old", "new"))
	assert.True(t, l.Exists("new"))
	assert.False(t, l.Exists("old"))

	require.NoError(t, l.Delete("new"))
	assert.False(t, l.Exists("new"))
	assert.ErrorIs(t, l.Delete("new"), os.ErrNotExist)
}

func TestCopyTemplate(t *testing.T) {
	l, root := newTestLoader(t)
	writeLevel(t, filepath.Join(root, "templates", "castle", "db"), 9, nil)

	assert.True(t, l.TemplateExists("castle"))
	require.NoError(t, l.CopyTemplate("castle", "keep"))
	assert.FileExists(t, filepath.Join(l.Path("keep"), "db", levelFile))

	assert.ErrorIs(t, l.CopyTemplate("missing", "other"), os.ErrNotExist)
}

func TestReplace(t *testing.T) {
	l, root := newTestLoader(t)
	writeLevel(t, l.Path("arena"), 1, nil)
	require.NoError(t, os.WriteFile(filepath.Join(l.Path("arena"), "stale"), nil, 0o644))

	restored := filepath.Join(root, "restore")
	writeLevel(t, restored, 2, nil)

	require.NoError(t, l.Replace("arena", restored))

	assert.Equal(t, 2, l.StorageVersion("arena"))
	assert.NoFileExists(t, filepath.Join(l.Path("arena"), "stale"))
	assert.NoDirExists(t, l.Path("arena")+".old")
}

func TestLocalName(t *testing.T) {
	tests := map[string]bool{
		"arena":       true,
		"maps/arena":  true,
		"a.b":         true,
		"":            false,
		".":           false,
		"..":          false,
		"../x":        false,
		"a/../../x":   false,
		"a/../b":      false,
		"/x":          false,
		"arena/":      false,
		"maps//arena": false,
	}
	for name, want := range tests {
		assert.Equal(t, want, LocalName(name), name)
	}
}
