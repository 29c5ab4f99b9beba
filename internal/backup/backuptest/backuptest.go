// Package backuptest checks that a backup.Storage behaves like every other
// backend.
package backuptest

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
)

// Snapshot writes size random bytes to a file in a temporary directory.
func Snapshot(t *testing.T, created time.Time, size int) backup.Snapshot {
	t.Helper()
	data := make([]byte, size)
	_, _ = rand.Read(data)
	path := filepath.Join(t.TempDir(), backup.FileName(created))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return backup.Snapshot{Path: path, Created: created}
}

// Run exercises s against the contract of backup.Storage. Run closes s.
func Run(t *testing.T, s backup.Storage) {
	ctx := context.Background()
	arena := backup.Profile{ID: uuid.New(), Name: "arena"}
	other := backup.Profile{ID: uuid.New(), Name: "other"}
	base := time.UnixMilli(1_700_000_000_000)

	t.Run("empty", func(t *testing.T) {
		backups, err := s.ListBackups(ctx, backup.Profile{ID: uuid.New(), Name: "fresh"})
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	snaps := []backup.Snapshot{
		Snapshot(t, base.Add(2*time.Minute), 4096),
		Snapshot(t, base, 1),
		Snapshot(t, base.Add(time.Minute), 70_000),
	}
	for _, snap := range snaps {
		b, err := s.StoreBackup(ctx, arena, snap)
		require.NoError(t, err)
		assert.Equal(t, arena, b.Profile)
		assert.Equal(t, snap.Created.UnixMilli(), b.CreationTime)
	}
	_, err := s.StoreBackup(ctx, other, Snapshot(t, base, 16))
	require.NoError(t, err)

	backups, err := s.ListBackups(ctx, arena)
	require.NoError(t, err)
	require.Len(t, backups, 3)

	t.Run("newest first", func(t *testing.T) {
		for i, want := range []time.Time{base.Add(2 * time.Minute), base.Add(time.Minute), base} {
			assert.Equal(t, want.UnixMilli(), backups[i].CreationTime)
			assert.Equal(t, arena.ID, backups[i].Profile.ID)
		}
	})

	t.Run("download", func(t *testing.T) {
		for i, b := range backups {
			want, err := os.ReadFile(snaps[[]int{0, 2, 1}[i]].Path)
			require.NoError(t, err)

			path, temporary, err := s.DownloadBackup(ctx, b)
			require.NoError(t, err)
			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			if temporary {
				require.NoError(t, os.Remove(path))
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteBackup(ctx, backups[2]))
		require.NoError(t, s.DeleteBackup(ctx, backups[2]))

		left, err := s.ListBackups(ctx, arena)
		require.NoError(t, err)
		require.Len(t, left, 2)
		assert.Equal(t, backups[:2], left)

		_, _, err = s.DownloadBackup(ctx, backups[2])
		assert.Error(t, err)

		others, err := s.ListBackups(ctx, other)
		require.NoError(t, err)
		assert.Len(t, others, 1)
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, s.Close())
		_, err := s.ListBackups(ctx, arena)
		assert.ErrorIs(t, err, types.ErrStorageClosed)
		_, err = s.StoreBackup(ctx, arena, snaps[0])
		assert.ErrorIs(t, err, types.ErrStorageClosed)
	})
}
