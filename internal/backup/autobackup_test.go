package backup_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/backup"
	"github.com/EinBexiii/dragonfly-buildsystem/internal/manager"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/engine/enginetest"
)

func autoBackupEnv(t *testing.T, onlyActive bool) (*env, *backup.AutoBackup) {
	e := newEnv(t, func(c *config.Config) {
		c.World.Backup.AutoBackup.Enabled = true
		c.World.Backup.AutoBackup.Interval = 10
		c.World.Backup.AutoBackup.OnlyActiveWorlds = onlyActive
	})
	a := backup.NewAutoBackup(e.svc, e.m, e.cfg, zap.NewNop())
	a.Start()
	t.Cleanup(a.Stop)
	return e, a
}

// settle waits for in-flight backups to land and their completions to run.
func (e *env) settle(t *testing.T, a *backup.AutoBackup, want int, profiles ...backup.Profile) {
	t.Helper()
	require.Eventually(t, func() bool {
		e.sched.Flush()
		if a.InFlight() > 0 {
			return false
		}
		total := 0
		for _, p := range profiles {
			total += len(e.listProfile(t, p))
		}
		return total == want
	}, 5*time.Second, 10*time.Millisecond)
}

func (e *env) listProfile(t *testing.T, p backup.Profile) []backup.Backup {
	t.Helper()
	backups, err := await(t, e.sched, e.svc.List(p))
	require.NoError(t, err)
	return backups
}

func TestAutoBackupInterval(t *testing.T) {
	e, a := autoBackupEnv(t, false)
	w := e.create(t, "arena")
	p := backup.ProfileOf(w)

	e.sched.Advance(backup.TickPeriod)
	assert.Empty(t, e.listProfile(t, p))

	e.sched.Advance(backup.TickPeriod)
	e.settle(t, a, 1, p)

	e.sched.Advance(2 * backup.TickPeriod)
	e.settle(t, a, 2, p)
}

func TestAutoBackupOnlyActiveWorlds(t *testing.T) {
	e, a := autoBackupEnv(t, true)
	creator := enginetest.NewPlayer("Steve")
	idle := e.create(t, "idle", func(o *manager.CreateOptions) { o.Private = true; o.Creator = creator })
	busy := e.create(t, "busy", func(o *manager.CreateOptions) { o.Private = true; o.Creator = creator })

	e.engine.Enter("idle", enginetest.NewPlayer("Visitor"))
	e.engine.Enter("busy", creator)

	e.sched.Advance(2 * backup.TickPeriod)
	e.settle(t, a, 1, backup.ProfileOf(busy))
	assert.Empty(t, e.listProfile(t, backup.ProfileOf(idle)))
}

func TestAutoBackupDisabled(t *testing.T) {
	e := newEnv(t)
	a := backup.NewAutoBackup(e.svc, e.m, e.cfg, zap.NewNop())
	a.Start()
	assert.Zero(t, e.sched.Pending())
	a.Stop()
}

func TestAutoBackupStop(t *testing.T) {
	e, a := autoBackupEnv(t, false)
	w := e.create(t, "arena")
	a.Stop()

	e.sched.Advance(time.Minute)
	assert.Empty(t, e.listProfile(t, backup.ProfileOf(w)))
}
