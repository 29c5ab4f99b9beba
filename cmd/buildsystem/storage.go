package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup/local"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup/s3"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup/sftp"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
)

// backupStorage opens the configured backup backend. Unknown types fall back
// to local storage. Remote backends that cannot be reached yet are returned
// anyway and fail per operation.
func backupStorage(cfg *config.Config, logger *zap.Logger) (backup.Storage, error) {
	sc := cfg.World.Backup.Storage
	switch strings.ToLower(sc.Type) {
	case "s3":
		return s3.New(sc.S3, logger.Named("backup-s3")), nil
	case "sftp":
		return sftp.New(sc.SFTP, logger.Named("backup-sftp")), nil
	case "local":
	default:
		logger.Warn("unknown backup storage type, using local", zap.String("type", sc.Type))
	}

	root := sc.Local.Path
	if !filepath.IsAbs(root) {
		root = filepath.Join(cfg.Paths.DataDir, root)
	}
	s, err := local.New(root, logger.Named("backup-local"))
	if err != nil {
		return nil, fmt.Errorf("open local backup storage: %w", err)
	}
	return s, nil
}
