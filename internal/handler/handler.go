package handler

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/adapter"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/manager"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
	buildworld "github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// PlayerHandler enforces world permissions on player actions and reports
// activity to the registry. Callbacks run on world goroutines: they only read
// build worlds and hand every mutation to the scheduler.
type PlayerHandler struct {
	player.NopHandler
	adapter *adapter.Adapter
	manager *manager.Manager
	sched   scheduler.Scheduler
	logger  *zap.Logger
}

func NewPlayerHandler(a *adapter.Adapter, m *manager.Manager, logger *zap.Logger) *PlayerHandler {
	return &PlayerHandler{
		adapter: a,
		manager: m,
		sched:   m.Scheduler(),
		logger:  logger.Named("player-handler"),
	}
}

// buildWorld returns the managed world p is in.
func (h *PlayerHandler) buildWorld(p *player.Player) (*buildworld.BuildWorld, bool) {
	tx := p.Tx()
	if tx == nil {
		return nil, false
	}
	name, ok := h.adapter.WorldName(tx.World())
	if !ok {
		return nil, false
	}
	return h.manager.BuildWorld(name)
}

// modify cancels the action unless the player may modify the world with the
// given setting enabled. Allowed actions count as edits.
func (h *PlayerHandler) modify(ctx *player.Context, setting func(buildworld.Settings) bool) {
	p := ctx.Val()
	w, ok := h.buildWorld(p)
	if !ok {
		return
	}
	allowed := h.manager.CanModify(h.adapter.PlayerOf(p), w, func() bool { return setting(w.Settings()) })
	if !allowed {
		h.logger.Debug("denied world modification", zap.String("player", p.Name()), zap.String("world", w.Name()))
		ctx.Cancel()
		return
	}
	name := w.Name()
	h.sched.Run(func() { h.manager.MarkEdited(name) })
}

func (h *PlayerHandler) HandleBlockBreak(ctx *player.Context, _ cube.Pos, _ *[]item.Stack, _ *int) {
	h.modify(ctx, func(s buildworld.Settings) bool { return s.BlockBreaking })
}

func (h *PlayerHandler) HandleBlockPlace(ctx *player.Context, _ cube.Pos, _ world.Block) {
	h.modify(ctx, func(s buildworld.Settings) bool { return s.BlockPlacement })
}

func (h *PlayerHandler) HandleItemUseOnBlock(ctx *player.Context, _ cube.Pos, _ cube.Face, _ mgl64.Vec3) {
	h.modify(ctx, func(s buildworld.Settings) bool { return s.BlockInteractions })
}

// HandleChangeWorld restarts the idle clock of both worlds involved.
func (h *PlayerHandler) HandleChangeWorld(_ *player.Player, before, after *world.World) {
	for _, w := range []*world.World{before, after} {
		if w == nil {
			continue
		}
		if name, ok := h.adapter.WorldName(w); ok {
			h.sched.Run(func() { h.manager.Touch(name) })
		}
	}
}

func (h *PlayerHandler) HandleQuit(p *player.Player) {
	if w, ok := h.buildWorld(p); ok {
		name := w.Name()
		h.sched.Run(func() { h.manager.Touch(name) })
	}
	h.adapter.UntrackPlayer(p)
}

// WorldHandler applies the physics and explosion settings of managed worlds.
type WorldHandler struct {
	world.NopHandler
	adapter *adapter.Adapter
	manager *manager.Manager
}

func NewWorldHandler(a *adapter.Adapter, m *manager.Manager) *WorldHandler {
	return &WorldHandler{adapter: a, manager: m}
}

func (h *WorldHandler) settings(tx *world.Tx) (buildworld.Settings, bool) {
	name, ok := h.adapter.WorldName(tx.World())
	if !ok {
		return buildworld.Settings{}, false
	}
	w, ok := h.manager.BuildWorld(name)
	if !ok {
		return buildworld.Settings{}, false
	}
	return w.Settings(), true
}

func (h *WorldHandler) physics(ctx *world.Context) {
	if s, ok := h.settings(ctx.Val()); ok && !s.Physics {
		ctx.Cancel()
	}
}

func (h *WorldHandler) HandleExplosion(ctx *world.Context, _ mgl64.Vec3, _ *[]world.Entity, _ *[]cube.Pos, _ *float64, _ *bool) {
	if s, ok := h.settings(ctx.Val()); ok && !s.Explosions {
		ctx.Cancel()
	}
}

func (h *WorldHandler) HandleLiquidFlow(ctx *world.Context, _, _ cube.Pos, _ world.Liquid, _ world.Block) {
	h.physics(ctx)
}

func (h *WorldHandler) HandleLiquidDecay(ctx *world.Context, _ cube.Pos, _, _ world.Liquid) {
	h.physics(ctx)
}

func (h *WorldHandler) HandleLiquidHarden(ctx *world.Context, _ cube.Pos, _, _, _ world.Block) {
	h.physics(ctx)
}

func (h *WorldHandler) HandleFireSpread(ctx *world.Context, _, _ cube.Pos) { h.physics(ctx) }
func (h *WorldHandler) HandleBlockBurn(ctx *world.Context, _ cube.Pos)     { h.physics(ctx) }
func (h *WorldHandler) HandleCropTrample(ctx *world.Context, _ cube.Pos)   { h.physics(ctx) }
func (h *WorldHandler) HandleLeavesDecay(ctx *world.Context, _ cube.Pos)   { h.physics(ctx) }
