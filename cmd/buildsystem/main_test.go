package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup/local"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/manager"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildsystem.toml")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server, cfg.Server)
	assert.FileExists(t, path)

	again, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.World.Unload, again.World.Unload)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := newLogger("chatty")
	assert.Error(t, err)

	logger, err := newLogger("DEBUG")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestRecordStorage(t *testing.T) {
	tests := []struct {
		kind string
		want any
	}{
		{"memory", &manager.MemoryStorage{}},
		{"leveldb", &manager.LevelDBStorage{}},
		{"yaml", &manager.YAMLStorage{}},
		{"", &manager.YAMLStorage{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Paths.DataDir = t.TempDir()
			cfg.Paths.StorageType = tt.kind

			s, err := recordStorage(&cfg)
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestBackupStorageFallsBackToLocal(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.World.Backup.Storage.Type = "ftp"

	s, err := backupStorage(&cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &local.Storage{}, s)
	assert.DirExists(t, filepath.Join(cfg.Paths.DataDir, "backups"))
}
