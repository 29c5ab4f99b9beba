// Package engine declares what the world lifecycle needs from the game server
// hosting the worlds.
package engine

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// Handle is a loaded world inside the engine. Handles are compared with ==,
// so an engine must return the same value for the same loaded world.
type Handle interface {
	Name() string
}

// CreateSpec describes a world to be generated or attached.
type CreateSpec struct {
	Name       string
	Type       world.Type
	Generator  string
	Difficulty world.Difficulty
	Settings   world.Settings
	// Generate is false for imports, which only attach existing data.
	Generate bool
}

type Engine interface {
	// CreateWorld materialises a world. A nil handle with a nil error means
	// the engine declined, for example because of a data version guard.
	CreateWorld(spec CreateSpec) (Handle, error)
	World(name string) (Handle, bool)
	// SpawnWorld is the world hosting the designated spawn point, if any.
	SpawnWorld() (Handle, bool)
	// FallbackWorld is where players are moved when their world goes away.
	FallbackWorld() Handle

	Unload(h Handle, save bool) error
	Save(h Handle) error
	LoadedRegions(h Handle) int
	Occupants(h Handle) []uuid.UUID

	// Spawn is the position players arrive at when entering h.
	Spawn(h Handle) mgl64.Vec3
	SetSpawn(h Handle, pos mgl64.Vec3)
	SetDifficulty(h Handle, d world.Difficulty)
	SetBorderSize(h Handle, size int)
	SetTime(h Handle, time int)
	SetGameRules(h Handle, rules map[string]bool)
	SetBlock(h Handle, pos mgl64.Vec3, block string)

	Teleport(player uuid.UUID, h Handle, pos mgl64.Vec3) error
	// Player returns an online player.
	Player(id uuid.UUID) (Player, bool)

	// WorldContainer is the directory holding world folders.
	WorldContainer() string
	// DataVersion is the newest world format the engine can read.
	DataVersion() int
}

// Player is an identity that holds permissions.
type Player interface {
	UUID() uuid.UUID
	Name() string
	HasPermission(node string) bool
	// Permissions lists the nodes granted explicitly, used for numbered
	// limits such as buildsystem.create.public.3.
	Permissions() []string
}

// IdentityResolver looks up players that may be offline.
type IdentityResolver interface {
	Resolve(name string) (uuid.UUID, bool)
	NameOf(id uuid.UUID) (string, bool)
}
