package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"01:00:00", time.Hour, true},
		{"00:00:05", 5 * time.Second, true},
		{"36:30:15", 36*time.Hour + 30*time.Minute + 15*time.Second, true},
		{"00:60:00", 0, false},
		{"1:00", 0, false},
		{"aa:bb:cc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Hour, cfg.UnloadAfter())
	assert.Equal(t, 5, cfg.MaxBackups())
	assert.Equal(t, -1, cfg.MaxWorlds(world.VisibilityPublic))
	assert.Equal(t, 30*time.Second, cfg.ImportDelay())
	assert.Equal(t, 15*time.Minute, cfg.AutoBackupInterval())
	assert.True(t, cfg.IsDeletionBlacklisted("World"))
	assert.False(t, cfg.IsDeletionBlacklisted("arena"))
}

func TestMaxBackupsIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.World.Backup.MaxBackupsPerWorld = 40
	assert.Equal(t, MaxBackupsCap, cfg.MaxBackups())

	cfg.World.Backup.MaxBackupsPerWorld = -3
	assert.Equal(t, 0, cfg.MaxBackups())
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.World.Unload.TimeUntilUnload = "soon"
	cfg.World.Default.Difficulty = "IMPOSSIBLE"
	cfg.Paths.StorageType = "mongo"

	err := cfg.Validate()
	var errs types.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 3)
}

func TestWorldDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.World.Default.Difficulty = "hard"
	cfg.World.CreatorIsBuilder = true

	d := cfg.WorldDefaults()
	assert.Equal(t, world.DifficultyHard, d.Difficulty)
	assert.True(t, d.PrivateBuildersEnabled)
	assert.False(t, d.PublicBuildersEnabled)
	assert.True(t, d.CreatorIsBuilder)
	assert.Equal(t, "worlds.%world%", d.PrivatePermission)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "buildsystem.toml")
	cfg := DefaultConfig()
	cfg.World.Unload.TimeUntilUnload = "00:00:05"
	cfg.World.Backup.Storage.Type = "sftp"
	cfg.World.Backup.Storage.SFTP.Host = "backup.example.org"

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, loaded.UnloadAfter())
	assert.Equal(t, "sftp", loaded.World.Backup.Storage.Type)
	assert.Equal(t, "backup.example.org", loaded.World.Backup.Storage.SFTP.Host)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildsystem.toml")
	require.NoError(t, os.WriteFile(path, []byte("[world.unload]\nenabled = false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.World.Unload.Enabled)
	assert.Equal(t, "01:00:00", cfg.World.Unload.TimeUntilUnload)
	assert.Equal(t, 900, cfg.World.Backup.AutoBackup.Interval)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Equal(t, "local", cfg.World.Backup.Storage.Type)
}
