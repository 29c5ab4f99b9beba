package backup

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/manager"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// TickPeriod is how often the auto-backup clock advances.
const TickPeriod = 5 * time.Second

// AutoBackup backs up each world once it has accumulated the configured
// interval of eligible time. All of its state lives on the scheduler
// goroutine.
type AutoBackup struct {
	service *Service
	manager *manager.Manager
	config  *config.Config
	logger  *zap.Logger

	elapsed map[uuid.UUID]time.Duration
	running map[uuid.UUID]bool
	task    scheduler.Task
}

func NewAutoBackup(s *Service, m *manager.Manager, cfg *config.Config, logger *zap.Logger) *AutoBackup {
	return &AutoBackup{
		service: s,
		manager: m,
		config:  cfg,
		logger:  logger.Named("auto-backup"),
		elapsed: make(map[uuid.UUID]time.Duration),
		running: make(map[uuid.UUID]bool),
	}
}

// Start schedules the auto-backup clock. It does nothing when auto-backups
// are disabled.
func (a *AutoBackup) Start() {
	if !a.config.World.Backup.AutoBackup.Enabled || a.task != nil {
		return
	}
	a.task = a.manager.Scheduler().RunTimer(TickPeriod, TickPeriod, a.Tick)
	a.logger.Info("auto-backup started", zap.Duration("interval", a.config.AutoBackupInterval()))
}

func (a *AutoBackup) Stop() {
	if a.task != nil {
		a.task.Cancel()
		a.task = nil
	}
}

// Tick advances the clock of every eligible world by TickPeriod and starts
// a backup for each world whose clock passed the interval. A world with a
// backup still in flight is skipped until it completes.
func (a *AutoBackup) Tick() {
	interval := a.config.AutoBackupInterval()
	seen := make(map[uuid.UUID]struct{})

	for _, w := range a.manager.BuildWorlds() {
		id := w.UniqueID()
		seen[id] = struct{}{}
		if a.running[id] || !a.eligible(w) {
			continue
		}
		a.elapsed[id] += TickPeriod
		if a.elapsed[id] < interval {
			continue
		}
		a.elapsed[id] = 0
		a.backup(w)
	}

	for id := range a.elapsed {
		if _, ok := seen[id]; !ok {
			delete(a.elapsed, id)
		}
	}
}

// InFlight counts worlds whose backup has not completed yet.
func (a *AutoBackup) InFlight() int { return len(a.running) }

func (a *AutoBackup) backup(w *world.BuildWorld) {
	id := w.UniqueID()
	a.running[id] = true
	a.service.Create(w).Then(a.manager.Scheduler(), func(_ Backup, err error) {
		delete(a.running, id)
		if err != nil {
			a.logger.Warn("auto-backup failed", zap.String("world", w.Name()), zap.Error(err))
		}
	})
}

// eligible reports whether w accumulates backup time. With only_active_worlds
// set, a world must hold a player who may modify it.
func (a *AutoBackup) eligible(w *world.BuildWorld) bool {
	if !a.config.World.Backup.AutoBackup.OnlyActiveWorlds {
		return true
	}
	eng := a.manager.Engine()
	h, ok := eng.World(w.Name())
	if !ok {
		return false
	}
	for _, id := range eng.Occupants(h) {
		pl, ok := eng.Player(id)
		if ok && a.manager.CanModify(pl, w, nil) {
			return true
		}
	}
	return false
}
