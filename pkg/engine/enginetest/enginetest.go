// Package enginetest provides an in-memory engine and players for tests.
package enginetest

import (
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

type Handle struct{ name string }

func (h *Handle) Name() string { return h.name }

// Engine hosts worlds in memory. It starts out hosting a world named
// "world", which is both the spawn and the fallback world.
type Engine struct {
	mu sync.Mutex

	container string
	// Version is returned by DataVersion.
	Version int
	// Decline makes CreateWorld return no handle.
	Decline bool
	// UnloadErr fails Unload and keeps the world hosted.
	UnloadErr error

	worlds    map[string]*Handle
	spawn     *Handle
	fallback  *Handle
	occupants map[*Handle][]uuid.UUID
	players   map[uuid.UUID]engine.Player
	spawns    map[*Handle]mgl64.Vec3
	blocks    map[mgl64.Vec3]string

	created []engine.CreateSpec
	unloads map[string]int
	saves   map[string]int
}

func New(container string) *Engine {
	e := &Engine{
		container: container,
		Version:   10,
		worlds:    make(map[string]*Handle),
		occupants: make(map[*Handle][]uuid.UUID),
		players:   make(map[uuid.UUID]engine.Player),
		spawns:    make(map[*Handle]mgl64.Vec3),
		blocks:    make(map[mgl64.Vec3]string),
		unloads:   make(map[string]int),
		saves:     make(map[string]int),
	}
	spawn := &Handle{name: "world"}
	e.worlds[spawn.name] = spawn
	e.spawn, e.fallback = spawn, spawn
	return e
}

func (e *Engine) CreateWorld(spec engine.CreateSpec) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, spec)
	if e.Decline {
		return nil, nil
	}
	if h, ok := e.worlds[spec.Name]; ok {
		return h, nil
	}
	h := &Handle{name: spec.Name}
	e.worlds[spec.Name] = h
	return h, nil
}

func (e *Engine) World(name string) (engine.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.worlds[name]
	if !ok {
		return nil, false
	}
	return h, true
}

func (e *Engine) SpawnWorld() (engine.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.spawn == nil {
		return nil, false
	}
	return e.spawn, true
}

// SetSpawnWorld designates the hosted world with this name as the spawn
// world.
func (e *Engine) SetSpawnWorld(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spawn = e.worlds[name]
}

func (e *Engine) FallbackWorld() engine.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallback
}

func (e *Engine) Unload(h engine.Handle, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.UnloadErr != nil {
		return e.UnloadErr
	}
	delete(e.worlds, h.Name())
	e.unloads[h.Name()]++
	return nil
}

func (e *Engine) Save(h engine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saves[h.Name()]++
	return nil
}

func (e *Engine) LoadedRegions(engine.Handle) int { return 4 }

func (e *Engine) Occupants(h engine.Handle) []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.occupants[h.(*Handle)])
}

func (e *Engine) Spawn(h engine.Handle) mgl64.Vec3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spawns[h.(*Handle)]
}

func (e *Engine) SetSpawn(h engine.Handle, pos mgl64.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spawns[h.(*Handle)] = pos
}

func (e *Engine) SetDifficulty(engine.Handle, world.Difficulty) {}
func (e *Engine) SetBorderSize(engine.Handle, int)              {}
func (e *Engine) SetTime(engine.Handle, int)                    {}
func (e *Engine) SetGameRules(engine.Handle, map[string]bool)   {}

func (e *Engine) SetBlock(_ engine.Handle, pos mgl64.Vec3, block string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocks[pos] = block
}

// Block returns the block last placed at pos.
func (e *Engine) Block(pos mgl64.Vec3) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blocks[pos]
}

func (e *Engine) Teleport(player uuid.UUID, h engine.Handle, _ mgl64.Vec3) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(player)
	target := h.(*Handle)
	e.occupants[target] = append(e.occupants[target], player)
	return nil
}

func (e *Engine) remove(player uuid.UUID) {
	for k, ids := range e.occupants {
		e.occupants[k] = slices.DeleteFunc(ids, func(id uuid.UUID) bool { return id == player })
	}
}

func (e *Engine) Player(id uuid.UUID) (engine.Player, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[id]
	return p, ok
}

func (e *Engine) WorldContainer() string { return e.container }
func (e *Engine) DataVersion() int       { return e.Version }

// Enter puts an online player into a hosted world.
func (e *Engine) Enter(name string, p engine.Player) {
	h, ok := e.World(name)
	if !ok {
		panic("enginetest: world not hosted: " + name)
	}
	e.mu.Lock()
	e.players[p.UUID()] = p
	e.mu.Unlock()
	_ = e.Teleport(p.UUID(), h, mgl64.Vec3{})
}

// Leave removes a player from whatever world they are in.
func (e *Engine) Leave(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(id)
}

func (e *Engine) Created() []engine.CreateSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.created)
}

func (e *Engine) Unloads(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unloads[name]
}

func (e *Engine) Saves(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saves[name]
}

type Player struct {
	ID    uuid.UUID
	Nick  string
	Nodes []string
}

func NewPlayer(name string, nodes ...string) *Player {
	return &Player{ID: uuid.New(), Nick: name, Nodes: nodes}
}

func (p *Player) UUID() uuid.UUID                { return p.ID }
func (p *Player) Name() string                   { return p.Nick }
func (p *Player) Permissions() []string          { return p.Nodes }
func (p *Player) HasPermission(node string) bool { return slices.Contains(p.Nodes, node) }

// Resolver maps player names to ids.
type Resolver map[string]uuid.UUID

func (r Resolver) Resolve(name string) (uuid.UUID, bool) {
	id, ok := r[name]
	return id, ok
}

func (r Resolver) NameOf(id uuid.UUID) (string, bool) {
	for name, v := range r {
		if v == id {
			return name, true
		}
	}
	return "", false
}
