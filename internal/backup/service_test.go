package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup/local"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/manager"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine/enginetest"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type env struct {
	cfg    *config.Config
	engine *enginetest.Engine
	sched  *scheduler.Manual
	m      *manager.Manager
	store  backup.Storage
	svc    *backup.Service
}

func newEnv(t *testing.T, mutate ...func(*config.Config)) *env {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.World.Backup.MaxBackupsPerWorld = 3
	cfg.World.Unload.Enabled = false
	cfg.Paths.DataDir = t.TempDir()
	for _, fn := range mutate {
		fn(&cfg)
	}

	e := &env{
		cfg:    &cfg,
		engine: enginetest.New(filepath.Join(t.TempDir(), "worlds")),
		sched:  scheduler.NewManual(epoch),
	}
	e.m = manager.New(&cfg, zap.NewNop(), manager.Dependencies{Engine: e.engine, Scheduler: e.sched})

	store, err := local.New(filepath.Join(t.TempDir(), "backups"), zap.NewNop())
	require.NoError(t, err)
	e.store = store
	e.svc, err = backup.NewService(store, backup.NewExecutor(2, 16, zap.NewNop()), e.m, &cfg, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.svc.Close(context.Background()) })
	return e
}

func (e *env) create(t *testing.T, name string, opts ...func(*manager.CreateOptions)) *world.BuildWorld {
	t.Helper()
	o := manager.CreateOptions{Name: name, Type: world.TypeFlat}
	for _, fn := range opts {
		fn(&o)
	}
	w, err := e.m.CreateWorld(o)
	require.NoError(t, err)
	return w
}

func (e *env) writeLevel(t *testing.T, name, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.engine.WorldContainer(), name, "level.dat"), []byte(data), 0o644))
}

func (e *env) readLevel(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.engine.WorldContainer(), name, "level.dat"))
	require.NoError(t, err)
	return string(data)
}

// await pumps the scheduler until f completes, standing in for the server
// main thread.
func await[T any](t *testing.T, sched *scheduler.Manual, f *backup.Future[T]) (T, error) {
	t.Helper()
	require.Eventually(t, func() bool {
		sched.Flush()
		select {
		case <-f.Done():
			return true
		default:
			return false
		}
	}, 5*time.Second, time.Millisecond)
	return f.Wait(context.Background())
}

func (e *env) list(t *testing.T, w *world.BuildWorld) []backup.Backup {
	t.Helper()
	backups, err := await(t, e.sched, e.svc.List(backup.ProfileOf(w)))
	require.NoError(t, err)
	return backups
}

func TestCreateBackup(t *testing.T) {
	e := newEnv(t)
	w := e.create(t, "arena")
	e.writeLevel(t, "arena", "v1")

	b, err := await(t, e.sched, e.svc.Create(w))
	require.NoError(t, err)
	assert.Equal(t, epoch.UnixMilli(), b.CreationTime)
	assert.Equal(t, w.UniqueID(), b.Profile.ID)
	assert.Equal(t, 1, e.engine.Saves("arena"))

	assert.Equal(t, []backup.Backup{b}, e.list(t, w))
}

func TestRetentionKeepsNewest(t *testing.T) {
	e := newEnv(t)
	w := e.create(t, "arena")

	var created []int64
	for range 5 {
		b, err := await(t, e.sched, e.svc.Create(w))
		require.NoError(t, err)
		created = append(created, b.CreationTime)
		e.sched.Advance(time.Minute)
	}

	backups := e.list(t, w)
	require.Len(t, backups, 3)
	for i, b := range backups {
		assert.Equal(t, created[4-i], b.CreationTime)
	}
}

func TestRetentionDisabled(t *testing.T) {
	e := newEnv(t, func(c *config.Config) { c.World.Backup.MaxBackupsPerWorld = 0 })
	w := e.create(t, "arena")

	for range 4 {
		_, err := await(t, e.sched, e.svc.Create(w))
		require.NoError(t, err)
		e.sched.Advance(time.Second)
	}
	assert.Len(t, e.list(t, w), 4)
}

func TestBackupsFollowRenames(t *testing.T) {
	e := newEnv(t)
	w := e.create(t, "arena")
	_, err := await(t, e.sched, e.svc.Create(w))
	require.NoError(t, err)

	require.NoError(t, e.m.RenameWorld(w, "colosseum"))
	assert.Len(t, e.list(t, w), 1)
}

func TestRestore(t *testing.T) {
	e := newEnv(t)
	w := e.create(t, "arena")
	e.writeLevel(t, "arena", "v1")
	b, err := await(t, e.sched, e.svc.Create(w))
	require.NoError(t, err)

	e.writeLevel(t, "arena", "v2")
	alex := enginetest.NewPlayer("Alex")
	e.engine.Enter("arena", alex)

	_, err = await(t, e.sched, e.svc.Restore(b))
	require.NoError(t, err)

	assert.Equal(t, "v1", e.readLevel(t, "arena"))
	assert.True(t, w.IsLoaded())
	assert.Equal(t, 1, e.engine.Unloads("arena"))
	assert.Contains(t, e.engine.Occupants(e.engine.FallbackWorld()), alex.UUID())
}

func TestRestoreUnknownWorld(t *testing.T) {
	e := newEnv(t)
	w := e.create(t, "arena")
	b, err := await(t, e.sched, e.svc.Create(w))
	require.NoError(t, err)
	require.NoError(t, e.m.UnimportWorld(w, false))

	_, err = await(t, e.sched, e.svc.Restore(b))
	var berr *types.BackupError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "restore", berr.Op)
	assert.ErrorIs(t, err, types.ErrWorldNotFound)
}

func TestDeleteDestroysBackups(t *testing.T) {
	e := newEnv(t)
	w := e.create(t, "arena")
	other := e.create(t, "other")
	for range 2 {
		_, err := await(t, e.sched, e.svc.Create(w))
		require.NoError(t, err)
		e.sched.Advance(time.Second)
	}
	_, err := await(t, e.sched, e.svc.Create(other))
	require.NoError(t, err)

	require.NoError(t, e.m.DeleteWorld(w))
	require.Eventually(t, func() bool { return len(e.list(t, w)) == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, e.list(t, other), 1)
}

func TestCreateFailureIsReported(t *testing.T) {
	e := newEnv(t)
	w := e.create(t, "arena")
	require.NoError(t, os.RemoveAll(filepath.Join(e.engine.WorldContainer(), "arena")))

	_, err := await(t, e.sched, e.svc.Create(w))
	var berr *types.BackupError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "local", berr.Backend)
	assert.Equal(t, "store", berr.Op)
	assert.Equal(t, "arena", berr.World)
	assert.Empty(t, e.list(t, w))
}
