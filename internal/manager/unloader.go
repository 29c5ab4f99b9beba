package manager

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/events"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// env is what the registry and every unloader share.
type env struct {
	config *config.Config
	engine engine.Engine
	sched  scheduler.Scheduler
	events *events.Dispatcher
	loader *Loader
	perms  *Permissions
	logger *zap.Logger
}

// materialize asks the engine for the world and applies the configured
// world defaults to it.
func (e *env) materialize(w *world.BuildWorld, generate bool) (engine.Handle, error) {
	name := w.Name()
	if e.loader.Exists(name) && e.loader.DataVersionTooHigh(name, e.engine.DataVersion()) {
		return nil, types.Reject(types.ReasonNewerVersion, name)
	}

	h, err := e.engine.CreateWorld(engine.CreateSpec{
		Name:       name,
		Type:       w.Type(),
		Generator:  w.ChunkGenerator(),
		Difficulty: w.Difficulty(),
		Settings:   w.Settings(),
		Generate:   generate,
	})
	if err != nil {
		return nil, fmt.Errorf("create world %s: %w", name, err)
	}
	if h == nil {
		return nil, fmt.Errorf("create world %s: %w", name, types.ErrEngineUnavailable)
	}

	d := e.config.World.Default
	e.engine.SetDifficulty(h, w.Difficulty())
	e.engine.SetTime(h, d.Time)
	e.engine.SetBorderSize(h, d.WorldBorderSize)
	e.engine.SetGameRules(h, d.GameRules)
	if spawn, ok := w.CustomSpawn(); ok {
		e.engine.SetSpawn(h, spawn.Position)
	}
	return h, nil
}

// Unloader evicts a world from the engine once it has been idle for the
// configured time. All methods must be called from the scheduler goroutine.
type Unloader struct {
	world *world.BuildWorld
	env   *env
	task  scheduler.Task
}

func newUnloader(w *world.BuildWorld, e *env) *Unloader {
	return &Unloader{world: w, env: e}
}

func (u *Unloader) enabled() bool { return u.env.config.World.Unload.Enabled }

// ManageUnload initialises the loaded flag when the world is registered. With
// unloading disabled the world counts as permanently loaded.
func (u *Unloader) ManageUnload() {
	if !u.enabled() {
		u.world.SetLoaded(true)
		return
	}
	_, hosted := u.env.engine.World(u.world.Name())
	u.world.SetLoaded(hosted)
	u.StartUnloadTask()
}

func (u *Unloader) StartUnloadTask() {
	if !u.enabled() {
		return
	}
	u.task = u.env.sched.RunLater(u.env.config.UnloadAfter(), u.Unload)
}

// ResetUnloadTask restarts the idle clock. The previous timer is cancelled
// before the new one is created, so at most one is ever pending.
func (u *Unloader) ResetUnloadTask() {
	u.cancel()
	u.StartUnloadTask()
}

func (u *Unloader) cancel() {
	if u.task != nil {
		u.task.Cancel()
		u.task = nil
	}
}

func (u *Unloader) Pending() bool {
	return u.task != nil && !u.task.Cancelled()
}

// Unload runs when the idle timer fires. A populated world gets a fresh
// timer instead of being unloaded.
func (u *Unloader) Unload() {
	u.task = nil
	h, ok := u.env.engine.World(u.world.Name())
	if !ok {
		return
	}
	if len(u.env.engine.Occupants(h)) > 0 {
		u.ResetUnloadTask()
		return
	}
	if err := u.ForceUnload(true); err != nil {
		if _, rejected := types.IsRejection(err); rejected {
			u.env.logger.Debug("world kept loaded", zap.String("world", u.world.Name()), zap.Error(err))
			return
		}
		u.env.logger.Warn("failed to unload world", zap.String("world", u.world.Name()), zap.Error(err))
	}
}

// Protected reports whether the world must never be unloaded: it is on the
// unload blacklist or hosts the spawn point. The spawn world is matched by
// engine handle so that renames do not matter.
func (u *Unloader) Protected() bool {
	name := u.world.Name()
	if u.env.config.IsUnloadBlacklisted(name) {
		return true
	}
	spawn, ok := u.env.engine.SpawnWorld()
	if !ok {
		return false
	}
	h, ok := u.env.engine.World(name)
	return ok && h == spawn
}

// ForceUnload removes the world from the engine regardless of idle time.
func (u *Unloader) ForceUnload(save bool) error {
	name := u.world.Name()
	if u.Protected() {
		return types.Reject(types.ReasonBlacklisted, name)
	}
	if !u.env.events.Allow(events.EventWorldPreUnload, u.world) {
		return types.Reject(types.ReasonCancelled, name)
	}
	return u.detach(save)
}

// detach unloads without consulting the blacklist or listeners. Deletion,
// unimport and restore use it after their own checks. A failed engine unload
// leaves the world loaded with a running idle timer.
func (u *Unloader) detach(save bool) error {
	name := u.world.Name()
	h, ok := u.env.engine.World(name)
	if !ok {
		u.markUnloaded()
		return nil
	}
	if save {
		if err := u.env.engine.Save(h); err != nil {
			u.env.logger.Warn("failed to save world before unloading", zap.String("world", name), zap.Error(err))
		}
	}
	regions := u.env.engine.LoadedRegions(h)
	if err := u.env.engine.Unload(h, save); err != nil {
		if !u.Pending() {
			u.StartUnloadTask()
		}
		return fmt.Errorf("unload world %s: %w", name, err)
	}
	u.markUnloaded()

	u.env.events.Fire(events.EventWorldUnload, u.world)
	if u.env.config.Logging.LogUnloads {
		u.env.logger.Info("unloaded world", zap.String("world", name), zap.Int("regions", regions))
	}
	return nil
}

func (u *Unloader) markUnloaded() {
	u.world.SetLastUnloaded(u.env.sched.Now())
	u.world.SetLoaded(false)
	u.cancel()
}

// Load attaches the world to the engine if it is not loaded yet. When the
// engine declines, the world stays registered but unloaded.
func (u *Unloader) Load() error {
	if u.world.IsLoaded() {
		return nil
	}
	name := u.world.Name()
	if !u.env.events.Allow(events.EventWorldPreLoad, u.world) {
		return types.Reject(types.ReasonCancelled, name)
	}
	if _, err := u.env.materialize(u.world, false); err != nil {
		if !errors.Is(err, types.ErrDataVersionTooHigh) {
			u.env.logger.Warn("failed to load world", zap.String("world", name), zap.Error(err))
		}
		return err
	}

	u.world.SetLastLoaded(u.env.sched.Now())
	u.world.SetLoaded(true)
	u.env.events.Fire(events.EventWorldLoad, u.world)
	u.ResetUnloadTask()
	return nil
}

// LoadFor loads the world on behalf of a player who wants to enter it.
func (u *Unloader) LoadFor(pl engine.Player) error {
	if !u.env.perms.CanEnter(pl, u.world) {
		return types.Reject(types.ReasonPermissionDenied, u.world.Name())
	}
	return u.Load()
}

// spawnPoint is where players arrive in the world.
func (u *Unloader) spawnPoint() mgl64.Vec3 {
	if s, ok := u.world.CustomSpawn(); ok {
		return s.Position
	}
	return defaultSpawn(u.world.Type())
}

func defaultSpawn(t world.Type) mgl64.Vec3 {
	switch t {
	case world.TypeVoid:
		return mgl64.Vec3{0, 65, 0}
	case world.TypeFlat, world.TypePrivate:
		return mgl64.Vec3{0, -60, 0}
	default:
		return mgl64.Vec3{0, 100, 0}
	}
}
