package manager

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine/enginetest"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

var epoch = time.UnixMilli(1_700_000_000_000)

var newPlayer = enginetest.NewPlayer

type harness struct {
	m       *Manager
	engine  *enginetest.Engine
	sched   *scheduler.Manual
	storage *MemoryStorage
	cfg     *config.Config
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.World.Unload.TimeUntilUnload = "00:00:05"
	cfg.World.ImportAllDelay = 0
	cfg.Paths.DataDir = t.TempDir()
	for _, fn := range mutate {
		fn(&cfg)
	}

	h := &harness{
		engine:  enginetest.New(filepath.Join(t.TempDir(), "worlds")),
		sched:   scheduler.NewManual(epoch),
		storage: NewMemoryStorage(),
		cfg:     &cfg,
	}
	h.m = New(&cfg, zap.NewNop(), Dependencies{
		Engine:    h.engine,
		Scheduler: h.sched,
		Storage:   h.storage,
	})
	return h
}

func (h *harness) create(t *testing.T, name string, opts ...func(*CreateOptions)) *world.BuildWorld {
	t.Helper()
	o := CreateOptions{Name: name, Type: world.TypeNormal}
	for _, fn := range opts {
		fn(&o)
	}
	w, err := h.m.CreateWorld(o)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return w
}
