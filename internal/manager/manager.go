package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/events"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// Dependencies are the collaborators of a Manager. Engine and Scheduler are
// required; the rest fall back to in-process defaults.
type Dependencies struct {
	Engine      engine.Engine
	Scheduler   scheduler.Scheduler
	Storage     Storage
	Events      *events.Dispatcher
	Resolver    engine.IdentityResolver
	Permissions *Permissions
	Loader      *Loader
}

type entry struct {
	world    *world.BuildWorld
	unloader *Unloader
}

// Manager is the registry of every managed world. Registry mutations happen
// on the scheduler goroutine; lookups are safe from any goroutine.
type Manager struct {
	*env
	storage  Storage
	resolver engine.IdentityResolver

	mu     sync.RWMutex
	worlds map[string]*entry
}

func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Manager {
	logger = logger.Named("world-manager")
	if deps.Events == nil {
		deps.Events = events.NewDispatcher(logger)
	}
	if deps.Permissions == nil {
		deps.Permissions = NewPermissions()
	}
	if deps.Loader == nil {
		deps.Loader = NewLoader(deps.Engine.WorldContainer(), filepath.Join(cfg.Paths.DataDir, "templates"), logger)
	}
	if deps.Storage == nil {
		deps.Storage = NewMemoryStorage()
	}
	return &Manager{
		env: &env{
			config: cfg,
			engine: deps.Engine,
			sched:  deps.Scheduler,
			events: deps.Events,
			loader: deps.Loader,
			perms:  deps.Permissions,
			logger: logger,
		},
		storage:  deps.Storage,
		resolver: deps.Resolver,
		worlds:   make(map[string]*entry),
	}
}

func (m *Manager) Events() *events.Dispatcher     { return m.events }
func (m *Manager) Permissions() *Permissions      { return m.perms }
func (m *Manager) Loader() *Loader                { return m.loader }
func (m *Manager) Engine() engine.Engine          { return m.engine }
func (m *Manager) Scheduler() scheduler.Scheduler { return m.sched }

func key(name string) string { return strings.ToLower(name) }

func compareNames(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// Init reads every persisted world into the registry. With unloading
// disabled the worlds are loaded straight away.
func (m *Manager) Init() error {
	records, err := m.storage.LoadAll()
	if err != nil {
		return fmt.Errorf("load worlds: %w", err)
	}

	for _, r := range records {
		if !LocalName(r.Name) {
			m.logger.Warn("world record with unsafe name ignored", zap.String("world", r.Name))
			continue
		}
		w := world.FromData(r.ID, r.Name, r.Data, m.config.World.CreatorIsBuilder)
		if m.resolveCreator(w) || r.ID == uuid.Nil {
			m.persist(w)
		}
		if _, ok := m.lookup(w.Name()); ok {
			m.logger.Warn("duplicate world record ignored", zap.String("world", w.Name()))
			continue
		}
		e := m.register(w)

		if !m.config.World.Unload.Enabled {
			if _, hosted := m.engine.World(w.Name()); !hosted {
				if _, err := m.materialize(w, false); err != nil {
					m.logger.Warn("failed to load world", zap.String("world", w.Name()), zap.Error(err))
				}
			}
		}
		e.unloader.ManageUnload()
	}

	m.logger.Info("worlds loaded", zap.Int("count", len(records)))
	return nil
}

// resolveCreator fills in the id of legacy creators that were stored by name
// only, reporting whether the record changed.
func (m *Manager) resolveCreator(w *world.BuildWorld) bool {
	creator, ok := w.Creator()
	if !ok || creator.ID != uuid.Nil {
		return false
	}
	b, err := m.ResolveBuilder(creator.Name)
	if err != nil {
		return false
	}
	w.SetCreator(&world.Builder{ID: b.ID, Name: creator.Name})
	return true
}

func (m *Manager) register(w *world.BuildWorld) *entry {
	e := &entry{world: w, unloader: newUnloader(w, m.env)}
	m.mu.Lock()
	m.worlds[key(w.Name())] = e
	m.mu.Unlock()
	return e
}

func (m *Manager) unregister(name string) {
	m.mu.Lock()
	delete(m.worlds, key(name))
	m.mu.Unlock()
}

func (m *Manager) lookup(name string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.worlds[key(name)]
	return e, ok
}

// entryOf returns the entry of w, failing when w has been removed or
// replaced in the meantime.
func (m *Manager) entryOf(w *world.BuildWorld) (*entry, error) {
	if w == nil {
		return nil, types.Reject(types.ReasonNotFound, "")
	}
	e, ok := m.lookup(w.Name())
	if !ok || e.world != w {
		return nil, types.Reject(types.ReasonNotFound, w.Name())
	}
	return e, nil
}

func (m *Manager) validateName(name string) error {
	if strings.TrimSpace(name) == "" || !LocalName(name) || m.config.InvalidCharacters().MatchString(name) {
		return types.Reject(types.ReasonInvalidName, name)
	}
	return nil
}

func (m *Manager) persist(w *world.BuildWorld) {
	if err := m.storage.Save(RecordOf(w)); err != nil {
		m.logger.Error("failed to persist world", zap.String("world", w.Name()), zap.Error(err))
	}
}

func (m *Manager) isSpawnWorld(name string) bool {
	spawn, ok := m.engine.SpawnWorld()
	if !ok {
		return false
	}
	h, ok := m.engine.World(name)
	return ok && h == spawn
}

// evacuate moves every occupant of the named world to the fallback world and
// returns who was moved.
func (m *Manager) evacuate(name string) []uuid.UUID {
	h, ok := m.engine.World(name)
	if !ok {
		return nil
	}
	occupants := m.engine.Occupants(h)
	fallback := m.engine.FallbackWorld()
	if fallback == nil || fallback == h {
		return occupants
	}
	pos := m.engine.Spawn(fallback)
	for _, id := range occupants {
		if err := m.engine.Teleport(id, fallback, pos); err != nil {
			m.logger.Warn("failed to move player out of world", zap.String("world", name), zap.Stringer("player", id), zap.Error(err))
		}
	}
	return occupants
}

type CreateOptions struct {
	Name    string
	Type    world.Type
	Private bool
	// Creator is nil for worlds created from the console.
	Creator engine.Player
	// Template names a folder under the templates directory to copy from.
	Template string
	// Generator is the chunk generator of CUSTOM worlds.
	Generator string
	Teleport  bool
}

// CreateWorld registers and generates a new world. The world is unregistered
// again if the engine fails to produce it.
func (m *Manager) CreateWorld(opts CreateOptions) (*world.BuildWorld, error) {
	name := opts.Name
	if err := m.validateName(name); err != nil {
		return nil, err
	}
	if _, ok := m.lookup(name); ok {
		return nil, types.Reject(types.ReasonNameTaken, name)
	}
	if m.loader.Exists(name) {
		return nil, types.Reject(types.ReasonFolderExists, name)
	}
	if opts.Template != "" && !m.loader.TemplateExists(opts.Template) {
		return nil, types.Reject(types.ReasonNotFound, opts.Template)
	}
	vis := world.VisibilityOf(opts.Private)
	if !m.CanCreate(opts.Creator, vis) {
		return nil, types.Reject(types.ReasonLimitReached, name)
	}

	typ := opts.Type
	if opts.Template != "" {
		typ = world.TypeTemplate
	}
	var creator *world.Builder
	if opts.Creator != nil {
		creator = &world.Builder{ID: opts.Creator.UUID(), Name: opts.Creator.Name()}
	}
	w := world.New(name, creator, typ, opts.Private, m.sched.Now(), m.config.WorldDefaults())
	if typ == world.TypeCustom {
		w.SetChunkGenerator(opts.Generator)
	}
	e := m.register(w)

	if opts.Template != "" {
		if err := m.loader.CopyTemplate(opts.Template, name); err != nil {
			m.unregister(name)
			return nil, fmt.Errorf("copy template %s: %w", opts.Template, err)
		}
	}
	h, err := m.materialize(w, opts.Template == "")
	if err != nil {
		m.unregister(name)
		m.logger.Warn("failed to create world", zap.String("world", name), zap.Error(err))
		return nil, err
	}
	m.applyTypeFixups(h, w)

	marker := typ.String()
	if typ == world.TypeCustom {
		marker = "GENERATOR:" + opts.Generator
	}
	if err := m.loader.WriteGeneratorMarker(name, marker); err != nil {
		m.logger.Warn("failed to write generator marker", zap.String("world", name), zap.Error(err))
	}

	w.SetLastLoaded(m.sched.Now())
	e.unloader.ManageUnload()
	m.persist(w)
	m.events.Fire(events.EventWorldCreate, w)
	m.logger.Info("created world", zap.String("world", name), zap.Stringer("type", typ), zap.Bool("private", opts.Private))

	if opts.Teleport && opts.Creator != nil {
		if err := m.engine.Teleport(opts.Creator.UUID(), h, e.unloader.spawnPoint()); err != nil {
			m.logger.Warn("failed to teleport creator", zap.String("world", name), zap.Error(err))
		}
	}
	return w, nil
}

// applyTypeFixups prepares freshly generated worlds so players do not spawn
// inside terrain or above nothing.
func (m *Manager) applyTypeFixups(h engine.Handle, w *world.BuildWorld) {
	if _, ok := w.CustomSpawn(); ok {
		return
	}
	switch w.Type() {
	case world.TypeVoid:
		m.engine.SetBlock(h, mgl64.Vec3{0, 64, 0}, "minecraft:gold_block")
		m.engine.SetSpawn(h, defaultSpawn(world.TypeVoid))
	case world.TypeFlat, world.TypePrivate:
		m.engine.SetSpawn(h, defaultSpawn(w.Type()))
	}
}

type ImportOptions struct {
	// Generator is set for worlds generated by a custom chunk generator.
	Generator string
	Creator   *world.Builder
}

// ImportWorld registers a world folder that already exists in the world
// container.
func (m *Manager) ImportWorld(name string, opts ImportOptions) (*world.BuildWorld, error) {
	if err := m.validateName(name); err != nil {
		return nil, err
	}
	if _, ok := m.lookup(name); ok {
		return nil, types.Reject(types.ReasonNameTaken, name)
	}
	if !m.loader.Exists(name) {
		return nil, types.Reject(types.ReasonFolderMissing, name)
	}
	if m.loader.DataVersionTooHigh(name, m.engine.DataVersion()) {
		return nil, types.Reject(types.ReasonNewerVersion, name)
	}

	typ := world.TypeImported
	if opts.Generator != "" {
		typ = world.TypeCustom
	}
	w := world.New(name, opts.Creator, typ, false, m.sched.Now(), m.config.WorldDefaults())
	if opts.Generator != "" {
		w.SetChunkGenerator(opts.Generator)
	}
	e := m.register(w)

	if _, err := m.materialize(w, false); err != nil {
		m.unregister(name)
		m.logger.Warn("failed to import world", zap.String("world", name), zap.Error(err))
		return nil, err
	}

	w.SetLastLoaded(m.sched.Now())
	e.unloader.ManageUnload()
	m.persist(w)
	m.events.Fire(events.EventWorldImport, w)
	m.logger.Info("imported world", zap.String("world", name))
	return w, nil
}

type ImportReport struct {
	Imported []string
	Skipped  map[string]error
}

// ImportAll imports the named worlds one after another, waiting
// import_all_delay between two imports. It blocks until all names are
// processed or ctx ends and must not be called from the scheduler goroutine.
func (m *Manager) ImportAll(ctx context.Context, names []string, opts ImportOptions) (ImportReport, error) {
	report := ImportReport{Skipped: make(map[string]error)}
	limit := rate.Inf
	if d := m.config.ImportDelay(); d > 0 {
		limit = rate.Every(d)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, name := range names {
		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}

		var importErr error
		if err := m.call(ctx, func() { _, importErr = m.ImportWorld(name, opts) }); err != nil {
			return report, err
		}
		if importErr != nil {
			report.Skipped[name] = importErr
			m.logger.Debug("skipped world during import", zap.String("world", name), zap.Error(importErr))
			continue
		}
		report.Imported = append(report.Imported, name)
	}

	m.logger.Info("imported worlds", zap.Int("imported", len(report.Imported)), zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

// call runs fn on the scheduler goroutine and waits for it.
func (m *Manager) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	m.sched.Run(func() {
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

// RenameWorld moves the world to a new name, carrying its occupants along.
// The unique id is kept so backups stay attached.
func (m *Manager) RenameWorld(w *world.BuildWorld, newName string) error {
	e, err := m.entryOf(w)
	if err != nil {
		return err
	}
	oldName := w.Name()
	if err := m.validateName(newName); err != nil {
		return err
	}
	if strings.EqualFold(oldName, newName) || m.config.IsDeletionBlacklisted(newName) {
		return types.Reject(types.ReasonNameTaken, newName)
	}
	if _, ok := m.lookup(newName); ok {
		return types.Reject(types.ReasonNameTaken, newName)
	}
	if m.loader.Exists(newName) {
		return types.Reject(types.ReasonFolderExists, newName)
	}
	if e.unloader.Protected() {
		return types.Reject(types.ReasonBlacklisted, oldName)
	}

	wasLoaded := w.IsLoaded()
	occupants := m.evacuate(oldName)
	if err := e.unloader.ForceUnload(true); err != nil {
		return err
	}

	if m.loader.Exists(oldName) {
		if err := m.loader.Rename(oldName, newName); err != nil {
			if wasLoaded {
				_ = e.unloader.Load()
			}
			return fmt.Errorf("rename world folder: %w", err)
		}
	}

	m.mu.Lock()
	delete(m.worlds, key(oldName))
	w.SetName(newName)
	m.worlds[key(newName)] = e
	m.mu.Unlock()

	if err := m.storage.Delete(oldName); err != nil {
		m.logger.Error("failed to remove old world record", zap.String("world", oldName), zap.Error(err))
	}
	m.persist(w)

	if wasLoaded || len(occupants) > 0 {
		if err := e.unloader.Load(); err != nil {
			m.logger.Warn("failed to reload renamed world", zap.String("world", newName), zap.Error(err))
		} else if h, ok := m.engine.World(newName); ok {
			pos := e.unloader.spawnPoint()
			for _, id := range occupants {
				if err := m.engine.Teleport(id, h, pos); err != nil {
					m.logger.Warn("failed to return player to renamed world", zap.Stringer("player", id), zap.Error(err))
				}
			}
		}
	}

	m.events.Dispatch(&events.Event{Type: events.EventWorldRename, World: w, OldName: oldName})
	m.logger.Info("renamed world", zap.String("from", oldName), zap.String("to", newName))
	return nil
}

// DeleteWorld removes the world from the registry and destroys its folder.
func (m *Manager) DeleteWorld(w *world.BuildWorld) error {
	if w != nil && m.config.IsDeletionBlacklisted(w.Name()) {
		return types.Reject(types.ReasonBlacklisted, w.Name())
	}
	e, err := m.entryOf(w)
	if err != nil {
		return err
	}
	name := w.Name()
	if !m.loader.Exists(name) {
		return types.Reject(types.ReasonFolderMissing, name)
	}
	if m.isSpawnWorld(name) {
		return types.Reject(types.ReasonBlacklisted, name)
	}

	if err := m.forget(e, false); err != nil {
		return err
	}
	if err := m.loader.Delete(name); err != nil {
		return fmt.Errorf("delete world folder: %w", err)
	}

	m.events.Fire(events.EventWorldDelete, w)
	m.logger.Info("deleted world", zap.String("world", name))
	return nil
}

// UnimportWorld removes the world from the registry and leaves its folder in
// place so it can be imported again.
func (m *Manager) UnimportWorld(w *world.BuildWorld, save bool) error {
	e, err := m.entryOf(w)
	if err != nil {
		return err
	}
	if m.isSpawnWorld(w.Name()) {
		return types.Reject(types.ReasonBlacklisted, w.Name())
	}
	if err := m.forget(e, save); err != nil {
		return err
	}

	m.events.Fire(events.EventWorldUnimport, w)
	m.logger.Info("unimported world", zap.String("world", w.Name()))
	return nil
}

func (m *Manager) forget(e *entry, save bool) error {
	name := e.world.Name()
	m.evacuate(name)
	if err := e.unloader.detach(save); err != nil {
		return err
	}
	m.unregister(name)
	if err := m.storage.Delete(name); err != nil {
		m.logger.Error("failed to remove world record", zap.String("world", name), zap.Error(err))
	}
	return nil
}

// BuildWorld looks a world up by its current name, ignoring case.
func (m *Manager) BuildWorld(name string) (*world.BuildWorld, bool) {
	e, ok := m.lookup(name)
	if !ok {
		return nil, false
	}
	return e.world, true
}

// BuildWorlds returns every registered world ordered by name.
func (m *Manager) BuildWorlds() []*world.BuildWorld {
	m.mu.RLock()
	out := make([]*world.BuildWorld, 0, len(m.worlds))
	for _, e := range m.worlds {
		out = append(out, e.world)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *world.BuildWorld) int { return compareNames(a.Name(), b.Name()) })
	return out
}

// BuildWorldByID finds a world by its unique id, which survives renames.
func (m *Manager) BuildWorldByID(id uuid.UUID) (*world.BuildWorld, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.worlds {
		if e.world.UniqueID() == id {
			return e.world, true
		}
	}
	return nil, false
}

// Registered reports whether w is still the registered world under its name.
func (m *Manager) Registered(w *world.BuildWorld) bool {
	_, err := m.entryOf(w)
	return err == nil
}

func (m *Manager) WorldsCreatedBy(id uuid.UUID, v world.Visibility) []*world.BuildWorld {
	return slices.DeleteFunc(m.BuildWorlds(), func(w *world.BuildWorld) bool {
		return !w.IsCreator(id) || w.Visibility() != v
	})
}

func (m *Manager) countVisibility(v world.Visibility) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int
	for _, e := range m.worlds {
		if e.world.Visibility() == v {
			n++
		}
	}
	return n
}

// CanCreate checks the global limit for the visibility and, for players, the
// per-player limit granted through permissions. A nil player is the console.
func (m *Manager) CanCreate(pl engine.Player, v world.Visibility) bool {
	if limit := m.config.MaxWorlds(v); limit >= 0 && m.countVisibility(v) >= limit {
		return false
	}
	if pl == nil {
		return true
	}
	limit := MaxWorlds(pl, v)
	return limit < 0 || len(m.WorldsCreatedBy(pl.UUID(), v)) < limit
}

// IsPermitted reports whether pl may use the command node on the named
// world. The player must be able to enter the world as well.
func (m *Manager) IsPermitted(pl engine.Player, node, worldName string) bool {
	if IsAdmin(pl) {
		return true
	}
	w, ok := m.BuildWorld(worldName)
	if !ok {
		return true
	}
	return m.perms.CanEnter(pl, w) && m.perms.CanPerformCommand(pl, w, node)
}

func (m *Manager) CanEnter(pl engine.Player, w *world.BuildWorld) bool {
	return m.perms.CanEnter(pl, w)
}

func (m *Manager) CanModify(pl engine.Player, w *world.BuildWorld, extra func() bool) bool {
	return m.perms.CanModify(pl, w, extra)
}

func (m *Manager) CanPerformCommand(pl engine.Player, w *world.BuildWorld, node string) bool {
	return m.perms.CanPerformCommand(pl, w, node)
}

// MarkEdited records a modification of the named world. A world that was
// not started yet moves to IN_PROGRESS.
func (m *Manager) MarkEdited(name string) {
	e, ok := m.lookup(name)
	if !ok {
		return
	}
	e.world.SetLastEdited(m.sched.Now())
	if e.world.Status() == world.StatusNotStarted {
		_ = m.SetStatus(e.world, world.StatusInProgress)
		return
	}
	m.persist(e.world)
}

func (m *Manager) SetStatus(w *world.BuildWorld, s world.Status) error {
	if _, err := m.entryOf(w); err != nil {
		return err
	}
	old := w.Status()
	if old == s {
		return nil
	}
	w.SetStatus(s)
	m.persist(w)
	m.events.Dispatch(&events.Event{Type: events.EventWorldStatus, World: w, OldStatus: old})
	return nil
}

func (m *Manager) AddBuilder(w *world.BuildWorld, b world.Builder) error {
	if _, err := m.entryOf(w); err != nil {
		return err
	}
	if !w.AddBuilder(b) {
		return types.Reject(types.ReasonBuilderPresent, w.Name())
	}
	m.persist(w)
	return nil
}

func (m *Manager) RemoveBuilder(w *world.BuildWorld, id uuid.UUID) error {
	if _, err := m.entryOf(w); err != nil {
		return err
	}
	if !w.RemoveBuilder(id) {
		return types.Reject(types.ReasonBuilderAbsent, w.Name())
	}
	m.persist(w)
	return nil
}

// ResolveBuilder looks up a possibly offline player by name. Players the
// resolver does not know are searched among the creators and builders of
// registered worlds.
func (m *Manager) ResolveBuilder(name string) (world.Builder, error) {
	if m.resolver != nil {
		if id, ok := m.resolver.Resolve(name); ok {
			return world.Builder{ID: id, Name: name}, nil
		}
	}
	if b, ok := m.knownBuilder(name); ok {
		return b, nil
	}
	return world.Builder{}, types.Reject(types.ReasonNotFound, name)
}

func (m *Manager) knownBuilder(name string) (world.Builder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.worlds {
		if c, ok := e.world.Creator(); ok && c.ID != uuid.Nil && strings.EqualFold(c.Name, name) {
			return c, true
		}
		for _, b := range e.world.Builders() {
			if b.ID != uuid.Nil && strings.EqualFold(b.Name, name) {
				return b, true
			}
		}
	}
	return world.Builder{}, false
}

func (m *Manager) Unloader(w *world.BuildWorld) (*Unloader, bool) {
	e, err := m.entryOf(w)
	if err != nil {
		return nil, false
	}
	return e.unloader, true
}

// Touch restarts the idle clock of the named world after player activity.
func (m *Manager) Touch(name string) {
	if e, ok := m.lookup(name); ok && e.world.IsLoaded() {
		e.unloader.ResetUnloadTask()
	}
}

// Load makes sure the named world is loaded in the engine.
func (m *Manager) Load(name string) error {
	e, ok := m.lookup(name)
	if !ok {
		return types.Reject(types.ReasonNotFound, name)
	}
	return e.unloader.Load()
}

// ReplaceWorld swaps the folder of w for dir, typically an extracted
// backup. Occupants are moved out, the world is unloaded without saving and
// loaded again from the new data if it was loaded before.
func (m *Manager) ReplaceWorld(w *world.BuildWorld, dir string) error {
	e, err := m.entryOf(w)
	if err != nil {
		return err
	}
	name := w.Name()
	if m.isSpawnWorld(name) {
		return types.Reject(types.ReasonBlacklisted, name)
	}

	wasLoaded := w.IsLoaded()
	m.evacuate(name)
	if err := e.unloader.detach(false); err != nil {
		return err
	}
	if err := m.loader.Replace(name, dir); err != nil {
		return fmt.Errorf("replace world folder: %w", err)
	}
	if wasLoaded {
		if err := e.unloader.Load(); err != nil {
			m.logger.Warn("failed to reload replaced world", zap.String("world", name), zap.Error(err))
		}
	}
	m.logger.Info("replaced world data", zap.String("world", name))
	return nil
}

// SaveWorldData flushes the engine state of a loaded world to disk.
func (m *Manager) SaveWorldData(w *world.BuildWorld) error {
	h, ok := m.engine.World(w.Name())
	if !ok {
		return nil
	}
	return m.engine.Save(h)
}

func (m *Manager) Save(w *world.BuildWorld) error {
	return m.storage.Save(RecordOf(w))
}

func (m *Manager) SaveAll() error {
	worlds := m.BuildWorlds()
	records := make([]Record, 0, len(worlds))
	for _, w := range worlds {
		records = append(records, RecordOf(w))
	}
	return m.storage.Save(records...)
}

// Close stops all unload timers, persists every world and closes the
// storage.
func (m *Manager) Close() error {
	m.mu.RLock()
	for _, e := range m.worlds {
		e.unloader.cancel()
	}
	m.mu.RUnlock()

	err := m.SaveAll()
	if cerr := m.storage.Close(); cerr != nil && !errors.Is(cerr, types.ErrStorageClosed) {
		err = multierr.Append(err, cerr)
	}
	return err
}
