package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_DrainsBacklogWithoutSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backlog atomic.Int32
	backlog.Store(5)

	start := time.Now()
	err := Loop(ctx, Config{
		Name:         "drain",
		PollInterval: time.Hour,
		Process: func(context.Context) (bool, error) {
			if backlog.Load() == 0 {
				cancel()
				return false, nil
			}

			backlog.Add(-1)

			return true, nil
		},
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, backlog.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestLoop_PeriodicTaskRunsFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string

	err := Loop(ctx, Config{
		Name:         "periodic",
		PollInterval: time.Millisecond,
		PeriodicTasks: []PeriodicTask{{
			Name:     "housekeeping",
			Interval: time.Hour,
			Run:      func(context.Context) { order = append(order, "task") },
		}},
		Process: func(context.Context) (bool, error) {
			order = append(order, "process")
			if len(order) >= 3 {
				cancel()
			}

			return false, nil
		},
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"task", "process", "process"}, order)
}

func TestLoop_OnErrorStops(t *testing.T) {
	boom := errors.New("boom")

	err := Loop(context.Background(), Config{
		Name:    "fatal",
		Process: func(context.Context) (bool, error) { return false, boom },
		OnError: func(error) bool { return false },
	})

	require.ErrorIs(t, err, boom)
}

func TestLoop_RecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32

	var seen error

	err := Loop(ctx, Config{
		Name:         "panicky",
		PollInterval: time.Millisecond,
		Process: func(context.Context) (bool, error) {
			if calls.Add(1) == 1 {
				panic("bad run")
			}

			cancel()

			return false, nil
		},
		OnError: func(err error) bool {
			seen = err
			return true
		},
	})

	require.ErrorIs(t, err, context.Canceled)

	var panicErr PanicError
	require.ErrorAs(t, seen, &panicErr)
	assert.Equal(t, "bad run", panicErr.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
