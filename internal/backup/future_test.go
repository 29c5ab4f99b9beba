package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
)

func TestFutureWait(t *testing.T) {
	f := newFuture[int]()
	go f.complete(7, nil)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFutureWaitContext(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailed(t *testing.T) {
	boom := errors.New("boom")
	_, err := Failed[string](boom).Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFutureThenRunsOnScheduler(t *testing.T) {
	sched := scheduler.NewManual(time.UnixMilli(0))
	f := newFuture[string]()
	var got string
	f.Then(sched, func(v string, err error) {
		require.NoError(t, err)
		got = v
	})
	f.complete("done", nil)

	require.Eventually(t, func() bool { return sched.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, got)
	sched.Flush()
	assert.Equal(t, "done", got)
}
