// Package adapter hosts build worlds in a dragonfly server.
package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/df-mc/dragonfly/server"
	"github.com/df-mc/dragonfly/server/block"
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/entity"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/df-mc/dragonfly/server/world/biome"
	"github.com/df-mc/dragonfly/server/world/generator"
	"github.com/df-mc/dragonfly/server/world/mcdb"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine"
	buildworld "github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// StorageVersion is the newest level.dat storage version mcdb reads.
const StorageVersion = 10

var errSpawnWorld = errors.New("the spawn world cannot be unloaded")

var (
	_ engine.Engine           = (*Adapter)(nil)
	_ engine.IdentityResolver = (*Adapter)(nil)
)

type handle struct {
	name string
	w    *world.World
}

func (h *handle) Name() string { return h.name }

// Adapter implements engine.Engine on top of a dragonfly server. The
// server's default world is the spawn world; every build world gets its own
// *world.World backed by an mcdb provider inside the world container.
type Adapter struct {
	srv       *server.Server
	container string
	grants    config.PermissionsConfig
	log       *slog.Logger
	logger    *zap.Logger
	handler   world.Handler

	mu         sync.Mutex
	worlds     map[string]*handle
	spawn      *handle
	generators map[string]world.Generator

	players    sync.Map
	identities *Identities
}

// NewAdapter registers the server's default world under spawnName. Players
// tracked by the adapter are remembered in ids, which may be nil.
func NewAdapter(srv *server.Server, container, spawnName string, grants config.PermissionsConfig, ids *Identities, log *slog.Logger, logger *zap.Logger) *Adapter {
	spawn := &handle{name: spawnName, w: srv.World()}
	return &Adapter{
		srv:        srv,
		container:  container,
		grants:     grants,
		log:        log,
		logger:     logger.Named("engine"),
		worlds:     map[string]*handle{spawnName: spawn},
		spawn:      spawn,
		generators: make(map[string]world.Generator),
		identities: ids,
	}
}

// RegisterGenerator makes a named generator available to CUSTOM worlds.
func (a *Adapter) RegisterGenerator(name string, g world.Generator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generators[strings.ToLower(name)] = g
}

// HandleWorlds sets the handler of every build world created from now on.
func (a *Adapter) HandleWorlds(h world.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

func (a *Adapter) generator(spec engine.CreateSpec) (world.Generator, bool) {
	switch spec.Type {
	case buildworld.TypeVoid, buildworld.TypeTemplate, buildworld.TypeImported:
		return world.NopGenerator{}, true
	case buildworld.TypeNether:
		return generator.NewFlat(biome.NetherWastes{}, []world.Block{block.Netherrack{}, block.Netherrack{}, block.Netherrack{}, block.Bedrock{}}), true
	case buildworld.TypeEnd:
		return generator.NewFlat(biome.End{}, []world.Block{block.EndStone{}, block.EndStone{}, block.EndStone{}, block.Bedrock{}}), true
	case buildworld.TypeCustom:
		g, ok := a.generators[strings.ToLower(spec.Generator)]
		return g, ok
	default:
		return generator.NewFlat(biome.Plains{}, []world.Block{block.Grass{}, block.Dirt{}, block.Dirt{}, block.Bedrock{}}), true
	}
}

func dimension(t buildworld.Type) world.Dimension {
	switch t {
	case buildworld.TypeNether:
		return world.Nether
	case buildworld.TypeEnd:
		return world.End
	default:
		return world.Overworld
	}
}

func (a *Adapter) CreateWorld(spec engine.CreateSpec) (engine.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.worlds[spec.Name]; ok {
		return h, nil
	}

	gen, ok := a.generator(spec)
	if !ok {
		a.logger.Warn("unknown chunk generator", zap.String("world", spec.Name), zap.String("generator", spec.Generator))
		return nil, nil
	}
	log := a.log.With("world", spec.Name)
	prov, err := mcdb.Config{Log: log}.Open(filepath.Join(a.container, spec.Name))
	if err != nil {
		return nil, fmt.Errorf("open world %s: %w", spec.Name, err)
	}

	w := world.Config{
		Log:       log,
		Dim:       dimension(spec.Type),
		Provider:  prov,
		Generator: gen,
		Entities:  entity.DefaultRegistry,
		PortalDestination: func(world.Dimension) *world.World {
			return a.srv.World()
		},
	}.New()
	if a.handler != nil {
		w.Handle(a.handler)
	}

	h := &handle{name: spec.Name, w: w}
	a.worlds[spec.Name] = h
	return h, nil
}

func (a *Adapter) World(name string) (engine.Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.worlds[name]
	if !ok {
		return nil, false
	}
	return h, true
}

// WorldName returns the name a dragonfly world is hosted under.
func (a *Adapter) WorldName(w *world.World) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, h := range a.worlds {
		if h.w == w {
			return name, true
		}
	}
	return "", false
}

func (a *Adapter) SpawnWorld() (engine.Handle, bool) { return a.spawn, true }
func (a *Adapter) FallbackWorld() engine.Handle      { return a.spawn }

// Unload closes the world. dragonfly always flushes chunks on close, so save
// only controls an explicit save beforehand.
func (a *Adapter) Unload(eh engine.Handle, save bool) error {
	h := eh.(*handle)
	if h == a.spawn {
		return errSpawnWorld
	}
	a.mu.Lock()
	delete(a.worlds, h.name)
	a.mu.Unlock()

	if save {
		h.w.Save()
	}
	return h.w.Close()
}

func (a *Adapter) Save(eh engine.Handle) error {
	eh.(*handle).w.Save()
	return nil
}

// LoadedRegions is always zero: dragonfly does not expose its chunk cache.
func (a *Adapter) LoadedRegions(engine.Handle) int { return 0 }

func (a *Adapter) Occupants(eh engine.Handle) []uuid.UUID {
	var ids []uuid.UUID
	<-eh.(*handle).w.Exec(func(tx *world.Tx) {
		for e := range tx.Players() {
			if p, ok := e.(*player.Player); ok {
				ids = append(ids, p.UUID())
			}
		}
	})
	return ids
}

func (a *Adapter) Spawn(eh engine.Handle) mgl64.Vec3 {
	return eh.(*handle).w.Spawn().Vec3Middle()
}

func (a *Adapter) SetSpawn(eh engine.Handle, pos mgl64.Vec3) {
	eh.(*handle).w.SetSpawn(cube.PosFromVec3(pos))
}

func (a *Adapter) SetDifficulty(eh engine.Handle, d buildworld.Difficulty) {
	var diff world.Difficulty = world.DifficultyPeaceful
	switch d {
	case buildworld.DifficultyEasy:
		diff = world.DifficultyEasy
	case buildworld.DifficultyNormal:
		diff = world.DifficultyNormal
	case buildworld.DifficultyHard:
		diff = world.DifficultyHard
	}
	eh.(*handle).w.SetDifficulty(diff)
}

// SetBorderSize only logs: dragonfly worlds have no border.
func (a *Adapter) SetBorderSize(eh engine.Handle, size int) {
	a.logger.Debug("world border not supported", zap.String("world", eh.Name()), zap.Int("size", size))
}

func (a *Adapter) SetTime(eh engine.Handle, time int) { eh.(*handle).w.SetTime(time) }

// SetGameRules applies the rules dragonfly has an equivalent for.
func (a *Adapter) SetGameRules(eh engine.Handle, rules map[string]bool) {
	w := eh.(*handle).w
	if cycle, ok := rules["doDaylightCycle"]; ok {
		if cycle {
			w.StartTime()
		} else {
			w.StopTime()
		}
	}
}

func (a *Adapter) SetBlock(eh engine.Handle, pos mgl64.Vec3, name string) {
	b, ok := world.BlockByName(name, nil)
	if !ok {
		a.logger.Warn("unknown block", zap.String("block", name))
		return
	}
	eh.(*handle).w.Exec(func(tx *world.Tx) {
		tx.SetBlock(cube.PosFromVec3(pos), b, nil)
	})
}

// Teleport moves an online player to pos in the target world, transferring
// them between worlds if needed.
func (a *Adapter) Teleport(id uuid.UUID, eh engine.Handle, pos mgl64.Vec3) error {
	op, ok := a.online(id)
	if !ok {
		return fmt.Errorf("player %s is not online", id)
	}
	target := eh.(*handle).w
	op.handle.ExecWorld(func(tx *world.Tx, e world.Entity) {
		if tx.World() == target {
			if p, ok := e.(*player.Player); ok {
				p.Teleport(pos)
			}
			return
		}
		moved := tx.RemoveEntity(e)
		if moved == nil {
			return
		}
		target.Exec(func(tx *world.Tx) {
			if p, ok := tx.AddEntity(moved).(*player.Player); ok {
				p.Teleport(pos)
			}
		})
	})
	return nil
}

func (a *Adapter) WorldContainer() string { return a.container }
func (a *Adapter) DataVersion() int       { return StorageVersion }

// Close closes every build world and the identity database. The spawn world
// belongs to the server.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for name, h := range a.worlds {
		if h == a.spawn {
			continue
		}
		errs = append(errs, h.w.Close())
		delete(a.worlds, name)
	}
	if a.identities != nil {
		errs = append(errs, a.identities.Close())
	}
	return errors.Join(errs...)
}

type onlinePlayer struct {
	id     uuid.UUID
	name   string
	handle *world.EntityHandle
	nodes  []string
	op     bool
}

func (p *onlinePlayer) UUID() uuid.UUID       { return p.id }
func (p *onlinePlayer) Name() string          { return p.name }
func (p *onlinePlayer) Permissions() []string { return p.nodes }

func (p *onlinePlayer) HasPermission(node string) bool {
	if p.op {
		return true
	}
	for _, n := range p.nodes {
		if strings.EqualFold(n, node) || n == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(n, ".*"); ok && strings.HasPrefix(strings.ToLower(node), strings.ToLower(prefix)+".") {
			return true
		}
	}
	return false
}

func (a *Adapter) newOnlinePlayer(id uuid.UUID, name string, h *world.EntityHandle) *onlinePlayer {
	nodes := slices.Concat(a.grants.Players[name], a.grants.Players[id.String()])
	op := slices.ContainsFunc(a.grants.Operators, func(s string) bool {
		return strings.EqualFold(s, name) || s == id.String()
	})
	return &onlinePlayer{id: id, name: name, handle: h, nodes: nodes, op: op}
}

func (a *Adapter) TrackPlayer(p *player.Player) { a.track(p.UUID(), p.Name(), p.H()) }
func (a *Adapter) UntrackPlayer(p *player.Player) { a.players.Delete(p.UUID()) }

func (a *Adapter) track(id uuid.UUID, name string, h *world.EntityHandle) {
	a.players.Store(id, a.newOnlinePlayer(id, name, h))
	if a.identities == nil {
		return
	}
	if err := a.identities.Remember(id, name); err != nil {
		a.logger.Warn("failed to remember player name", zap.String("player", name), zap.Error(err))
	}
}

// PlayerOf returns the permission holder for p, tracked or not.
func (a *Adapter) PlayerOf(p *player.Player) engine.Player {
	if op, ok := a.online(p.UUID()); ok {
		return op
	}
	return a.newOnlinePlayer(p.UUID(), p.Name(), p.H())
}

func (a *Adapter) online(id uuid.UUID) (*onlinePlayer, bool) {
	v, ok := a.players.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*onlinePlayer), true
}

func (a *Adapter) Player(id uuid.UUID) (engine.Player, bool) {
	p, ok := a.online(id)
	if !ok {
		return nil, false
	}
	return p, true
}

// Resolve finds a player by name, online players first.
func (a *Adapter) Resolve(name string) (uuid.UUID, bool) {
	var found uuid.UUID
	a.players.Range(func(_, v any) bool {
		p := v.(*onlinePlayer)
		if strings.EqualFold(p.name, name) {
			found = p.id
			return false
		}
		return true
	})
	if found != uuid.Nil {
		return found, true
	}
	if a.identities == nil {
		return uuid.Nil, false
	}
	return a.identities.Lookup(name)
}

func (a *Adapter) NameOf(id uuid.UUID) (string, bool) {
	if p, ok := a.online(id); ok {
		return p.name, true
	}
	if a.identities == nil {
		return "", false
	}
	return a.identities.Name(id)
}
