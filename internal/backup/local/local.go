// Package local stores backups on the local filesystem under
// <root>/<world uuid>/<creation ms>.zip.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
)

var _ backup.Storage = (*Storage)(nil)

type Storage struct {
	root   string
	logger *zap.Logger
	closed atomic.Bool
}

func New(root string, logger *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Storage{root: root, logger: logger}, nil
}

func (s *Storage) Name() string { return "local" }

func (s *Storage) dir(p backup.Profile) string {
	return filepath.Join(s.root, p.ID.String())
}

func (s *Storage) ListBackups(_ context.Context, p backup.Profile) ([]backup.Backup, error) {
	if s.closed.Load() {
		return nil, types.ErrStorageClosed
	}
	entries, err := os.ReadDir(s.dir(p))
	if errors.Is(err, fs.ErrNotExist) {
		return []backup.Backup{}, nil
	}
	if err != nil {
		return nil, err
	}

	backups := make([]backup.Backup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ms, ok := backup.ParseFileName(e.Name())
		if !ok {
			continue
		}
		backups = append(backups, backup.Backup{
			Profile:      p,
			CreationTime: ms,
			Key:          filepath.Join(s.dir(p), e.Name()),
		})
	}
	backup.SortNewestFirst(backups)
	return backups, nil
}

func (s *Storage) StoreBackup(_ context.Context, p backup.Profile, snap backup.Snapshot) (backup.Backup, error) {
	if s.closed.Load() {
		return backup.Backup{}, types.ErrStorageClosed
	}
	dir := s.dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return backup.Backup{}, err
	}
	dst := filepath.Join(dir, backup.FileName(snap.Created))
	tmp := dst + ".tmp"
	if err := backup.CopyFile(snap.Path, tmp); err != nil {
		os.Remove(tmp)
		return backup.Backup{}, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return backup.Backup{}, err
	}
	s.logger.Debug("stored backup", zap.String("path", dst))
	return backup.Backup{Profile: p, CreationTime: snap.Created.UnixMilli(), Key: dst}, nil
}

// DownloadBackup hands out the stored file itself; the caller must not
// remove it.
func (s *Storage) DownloadBackup(_ context.Context, b backup.Backup) (string, bool, error) {
	if s.closed.Load() {
		return "", false, types.ErrStorageClosed
	}
	if _, err := os.Stat(b.Key); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, types.ErrBackupNotFound
		}
		return "", false, err
	}
	return b.Key, false, nil
}

func (s *Storage) DeleteBackup(_ context.Context, b backup.Backup) error {
	if s.closed.Load() {
		return types.ErrStorageClosed
	}
	if err := os.Remove(b.Key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// Drop the world directory once its last backup is gone.
	dir := filepath.Dir(b.Key)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
	return nil
}

func (s *Storage) Close() error {
	s.closed.Store(true)
	return nil
}
