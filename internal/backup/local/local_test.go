package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup/backuptest"
)

func TestStorage(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "backups"), zap.NewNop())
	require.NoError(t, err)
	backuptest.Run(t, s)
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, zap.NewNop())
	require.NoError(t, err)
	p := backup.Profile{ID: uuid.New(), Name: "arena"}
	created := time.UnixMilli(1_700_000_000_123)

	b, err := s.StoreBackup(context.Background(), p, backuptest.Snapshot(t, created, 8))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, p.ID.String(), "1700000000123.zip"), b.Key)

	path, temporary, err := s.DownloadBackup(context.Background(), b)
	require.NoError(t, err)
	assert.False(t, temporary)
	assert.Equal(t, b.Key, path)

	require.NoError(t, s.DeleteBackup(context.Background(), b))
	assert.NoDirExists(t, filepath.Join(root, p.ID.String()))
}

func TestListIgnoresForeignFiles(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, zap.NewNop())
	require.NoError(t, err)
	p := backup.Profile{ID: uuid.New(), Name: "arena"}
	dir := filepath.Join(root, p.ID.String())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"notes.txt", "abc.zip", "42.zip.tmp", "42.zip"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	backups, err := s.ListBackups(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, int64(42), backups[0].CreationTime)
}
