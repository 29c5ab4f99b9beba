package backup

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/manager"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/events"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// Service creates, lists and restores backups. Storage I/O runs on the
// executor; operations on the same world are serialized.
type Service struct {
	storage Storage
	exec    *Executor
	manager *manager.Manager
	config  *config.Config
	logger  *zap.Logger
	scratch string

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService wires the service into the manager: deleting a world destroys
// its backups. Snapshots are staged in scratch, which must be on the same
// filesystem as the world container for restores to be a rename.
func NewService(storage Storage, exec *Executor, m *manager.Manager, cfg *config.Config, scratch string, logger *zap.Logger) (*Service, error) {
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("backup scratch dir: %w", err)
	}
	s := &Service{
		storage: storage,
		exec:    exec,
		manager: m,
		config:  cfg,
		logger:  logger.Named("backup"),
		scratch: scratch,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
	m.Events().On(events.EventWorldDelete, "backup", func(e *events.Event) {
		s.DestroyAll(ProfileOf(e.World))
	})
	return s, nil
}

func (s *Service) Storage() Storage { return s.storage }

func (s *Service) lock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = new(sync.Mutex)
		s.locks[id] = l
	}
	return l
}

func (s *Service) fail(op string, p Profile, err error) error {
	berr := types.NewBackupError(s.storage.Name(), op, p.Name, err)
	s.logger.Error("backup operation failed",
		zap.String("backend", s.storage.Name()),
		zap.String("op", op),
		zap.Stringer("world", p),
		zap.Error(err),
	)
	return berr
}

// List returns the backups of p, newest first.
func (s *Service) List(p Profile) *Future[[]Backup] {
	return Go(s.exec, func(ctx context.Context) ([]Backup, error) {
		backups, err := s.storage.ListBackups(ctx, p)
		if err != nil {
			return nil, s.fail("list", p, err)
		}
		return backups, nil
	})
}

// Create snapshots w and stores it, then trims the world's backups to the
// configured maximum. It must be called on the scheduler goroutine since it
// flushes the world to disk first.
func (s *Service) Create(w *world.BuildWorld) *Future[Backup] {
	if err := s.manager.SaveWorldData(w); err != nil {
		s.logger.Warn("failed to save world before backup", zap.String("world", w.Name()), zap.Error(err))
	}
	p := ProfileOf(w)
	dir := s.manager.Loader().Path(w.Name())
	created := s.manager.Scheduler().Now()

	return Go(s.exec, func(ctx context.Context) (Backup, error) {
		l := s.lock(p.ID)
		l.Lock()
		defer l.Unlock()

		start := time.Now()
		b, err := s.store(ctx, p, dir, created)
		if err != nil {
			return Backup{}, s.fail("store", p, err)
		}
		if !s.manager.Registered(w) {
			s.logger.Debug("world removed while backing up", zap.Stringer("world", p))
			return b, nil
		}
		s.logger.Info("backed up world",
			zap.Stringer("world", p),
			zap.String("backend", s.storage.Name()),
			zap.Duration("took", time.Since(start)),
		)
		if err := s.enforceRetention(ctx, p); err != nil {
			s.fail("retention", p, err)
		}
		return b, nil
	})
}

func (s *Service) store(ctx context.Context, p Profile, dir string, created time.Time) (Backup, error) {
	if _, err := os.Stat(dir); err != nil {
		return Backup{}, err
	}
	tmp, err := os.CreateTemp(s.scratch, "snapshot-*.zip")
	if err != nil {
		return Backup{}, err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := Archive(dir, path); err != nil {
		return Backup{}, err
	}
	return s.storage.StoreBackup(ctx, p, Snapshot{Path: path, Created: created})
}

// enforceRetention deletes the oldest backups of p beyond the configured
// maximum. A maximum of zero keeps every backup.
func (s *Service) enforceRetention(ctx context.Context, p Profile) error {
	limit := s.config.MaxBackups()
	if limit <= 0 {
		return nil
	}
	backups, err := s.storage.ListBackups(ctx, p)
	if err != nil || len(backups) <= limit {
		return err
	}

	var errs error
	for _, b := range backups[limit:] {
		if err := s.storage.DeleteBackup(ctx, b); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.logger.Debug("removed old backup", zap.Stringer("world", p), zap.Time("created", b.Created()))
	}
	return errs
}

// Restore replaces the world the backup belongs to with its contents.
// Players inside are moved out and the world is reloaded afterwards if it
// was loaded before.
func (s *Service) Restore(b Backup) *Future[struct{}] {
	return Go(s.exec, func(ctx context.Context) (struct{}, error) {
		l := s.lock(b.Profile.ID)
		l.Lock()
		defer l.Unlock()

		if err := s.restore(ctx, b); err != nil {
			return struct{}{}, s.fail("restore", b.Profile, err)
		}
		s.logger.Info("restored world", zap.Stringer("world", b.Profile), zap.Time("created", b.Created()))
		return struct{}{}, nil
	})
}

func (s *Service) restore(ctx context.Context, b Backup) error {
	path, temporary, err := s.storage.DownloadBackup(ctx, b)
	if err != nil {
		return err
	}
	if temporary {
		defer os.Remove(path)
	}

	dir, err := os.MkdirTemp(s.scratch, "restore-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	if err := Extract(path, dir); err != nil {
		return err
	}

	var replaceErr error
	if err := s.onScheduler(ctx, func() {
		w, ok := s.manager.BuildWorldByID(b.Profile.ID)
		if !ok {
			replaceErr = types.Reject(types.ReasonNotFound, b.Profile.Name)
			return
		}
		replaceErr = s.manager.ReplaceWorld(w, dir)
	}); err != nil {
		return err
	}
	return replaceErr
}

func (s *Service) onScheduler(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	s.manager.Scheduler().Run(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DestroyAll deletes every backup of p and reports how many were removed.
func (s *Service) DestroyAll(p Profile) *Future[int] {
	return Go(s.exec, func(ctx context.Context) (int, error) {
		l := s.lock(p.ID)
		l.Lock()
		defer l.Unlock()

		backups, err := s.storage.ListBackups(ctx, p)
		if err != nil {
			return 0, s.fail("destroy", p, err)
		}
		var errs error
		n := 0
		for _, b := range backups {
			if err := s.storage.DeleteBackup(ctx, b); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			n++
		}
		if errs != nil {
			return n, s.fail("destroy", p, errs)
		}
		if n > 0 {
			s.logger.Info("destroyed backups", zap.Stringer("world", p), zap.Int("count", n))
		}
		return n, nil
	})
}

// Close drains pending backup jobs and closes the storage.
func (s *Service) Close(ctx context.Context) error {
	return multierr.Append(s.exec.Close(ctx), s.storage.Close())
}
