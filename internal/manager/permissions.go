package manager

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

const (
	AdminPermission = "buildsystem.admin"

	bypassArchive = "buildsystem.bypass.permission.archive"
	bypassPrivate = "buildsystem.bypass.permission.private"
	bypassPublic  = "buildsystem.bypass.permission.public"
)

// Permissions decides who may enter, modify and manage worlds. Players in
// build mode bypass build restrictions.
type Permissions struct {
	mu        sync.RWMutex
	buildMode map[uuid.UUID]struct{}
}

func NewPermissions() *Permissions {
	return &Permissions{buildMode: make(map[uuid.UUID]struct{})}
}

func (p *Permissions) SetBuildMode(id uuid.UUID, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if enabled {
		p.buildMode[id] = struct{}{}
	} else {
		delete(p.buildMode, id)
	}
}

func (p *Permissions) InBuildMode(id uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.buildMode[id]
	return ok
}

func IsAdmin(pl engine.Player) bool { return pl.HasPermission(AdminPermission) }

func (p *Permissions) CanEnter(pl engine.Player, w *world.BuildWorld) bool {
	if w == nil {
		return false
	}
	if IsAdmin(pl) || p.CanBypassView(pl, w) {
		return true
	}
	if w.IsCreator(pl.UUID()) || w.IsBuilder(pl.UUID()) {
		return true
	}
	if !w.RequiresPermission() {
		return true
	}
	return pl.HasPermission(w.Permission())
}

// CanModify applies extra only to players without a bypass. A nil world
// is not managed and therefore unrestricted.
func (p *Permissions) CanModify(pl engine.Player, w *world.BuildWorld, extra func() bool) bool {
	if w == nil {
		return true
	}
	if IsAdmin(pl) || p.InBuildMode(pl.UUID()) {
		return true
	}
	if extra != nil && !extra() {
		return false
	}
	if w.IsArchived() {
		return false
	}
	if w.IsCreator(pl.UUID()) {
		return true
	}
	if !w.BuildersEnabled() {
		return true
	}
	return w.IsBuilder(pl.UUID())
}

// CanPerformCommand checks node.self for the creator and node.other for
// everyone else. A nil world is allowed so the caller can report it missing.
func (p *Permissions) CanPerformCommand(pl engine.Player, w *world.BuildWorld, node string) bool {
	if IsAdmin(pl) || w == nil {
		return true
	}
	if w.IsCreator(pl.UUID()) {
		return pl.HasPermission(node+".self") || pl.HasPermission(node)
	}
	return pl.HasPermission(node + ".other")
}

func (p *Permissions) CanBypassView(pl engine.Player, w *world.BuildWorld) bool {
	switch {
	case w.IsArchived():
		return pl.HasPermission(bypassArchive)
	case w.IsPrivate():
		return pl.HasPermission(bypassPrivate)
	default:
		return pl.HasPermission(bypassPublic)
	}
}

// MaxWorlds is the highest buildsystem.create.<visibility>.<n> node the
// player holds, or -1 for no limit.
func MaxWorlds(pl engine.Player, v world.Visibility) int {
	if IsAdmin(pl) {
		return -1
	}
	limit := -1
	for _, node := range pl.Permissions() {
		parts := strings.Split(node, ".")
		if len(parts) != 4 || !strings.EqualFold(parts[1], "create") || !strings.EqualFold(parts[2], v.String()) {
			continue
		}
		if parts[3] == "*" {
			return -1
		}
		if n, err := strconv.Atoi(parts[3]); err == nil && n > limit {
			limit = n
		}
	}
	return limit
}
