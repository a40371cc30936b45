package runs

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/core/ports/mocks"
	"github.com/lueurxax/catalog-resolver/internal/platform/schedule"
	"github.com/lueurxax/catalog-resolver/internal/process/resolver"
)

type fakeExecutor struct {
	calls atomic.Int32
	last  atomic.Value
	err   error
}

func (e *fakeExecutor) Run(_ context.Context, opts resolver.RunOptions) (domain.RunReport, error) {
	e.calls.Add(1)
	e.last.Store(opts)

	return domain.RunReport{RunID: opts.RunID, SupplierID: opts.SupplierID, TotalLabels: 4, AutoMatched: 3, Remaining: 1}, e.err
}

func newService(exec *fakeExecutor) (*Service, *mocks.RunStore, *mocks.Notifier, *mocks.Publisher) {
	store := mocks.NewRunStore()
	notifier := mocks.NewNotifier()
	publisher := mocks.NewPublisher()

	return New(store, exec, notifier, publisher, Config{LeaseTTL: time.Hour, PollInterval: time.Millisecond}, nil), store, notifier, publisher
}

func TestRunNow_CompletesAndReports(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	svc, _, notifier, publisher := newService(exec)

	supplier := int64(9)

	rec, err := svc.RunNow(ctx, &supplier, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, rec.Status)
	require.NotNil(t, rec.Report)
	assert.Equal(t, 3, rec.Report.AutoMatched)
	assert.NotNil(t, rec.FinishedAt)

	opts, ok := exec.last.Load().(resolver.RunOptions)
	require.True(t, ok)
	assert.Equal(t, rec.ID, opts.RunID)
	assert.Equal(t, 10, opts.Limit)

	assert.Len(t, notifier.Runs(), 1)
	assert.Len(t, publisher.RunReports(), 1)

	latest, err := svc.Latest(ctx, &supplier)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, latest.ID)
}

func TestRunNow_FailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{err: fmt.Errorf("extraction stopped: %w", coreerrors.ErrAuthentication)}
	svc, _, _, _ := newService(exec)

	rec, err := svc.RunNow(ctx, nil, 0)
	require.ErrorIs(t, err, coreerrors.ErrAuthentication)
	assert.Equal(t, domain.RunFailed, rec.Status)
	assert.Contains(t, rec.Error, "authentication")

	stored, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, stored.Status)
	require.NotNil(t, stored.Report)
	assert.Equal(t, 1, stored.Report.Remaining)
}

func TestExecute_LeaseHeld(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	svc, store, _, _ := newService(exec)

	first, err := svc.Enqueue(ctx, nil, 0)
	require.NoError(t, err)

	_, err = store.ClaimRun(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.Enqueue(ctx, nil, 0)
	require.NoError(t, err)

	_, err = svc.Execute(ctx, second.ID)
	require.ErrorIs(t, err, coreerrors.ErrRunInProgress)
	assert.Zero(t, exec.calls.Load())

	worked, err := svc.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, worked)
	assert.Zero(t, exec.calls.Load())
}

func TestExecute_StaleLeaseIsAbandoned(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	svc, store, _, _ := newService(exec)

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	stuck, err := svc.Enqueue(ctx, nil, 0)
	require.NoError(t, err)

	_, err = store.ClaimRun(ctx, stuck.ID)
	require.NoError(t, err)

	next, err := svc.Enqueue(ctx, nil, 0)
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)

	rec, err := svc.Execute(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, rec.Status)

	old, err := svc.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunAbandoned, old.Status)
}

func TestProcessNext_EmptyQueue(t *testing.T) {
	svc, _, _, _ := newService(&fakeExecutor{})

	worked, err := svc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestWork_DrainsQueueUntilCanceled(t *testing.T) {
	exec := &fakeExecutor{}
	svc, _, _, _ := newService(exec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for range 3 {
		_, err := svc.Enqueue(ctx, nil, 0)
		require.NoError(t, err)
	}

	done := make(chan error, 1)

	go func() { done <- svc.Work(ctx) }()

	require.Eventually(t, func() bool { return exec.calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		require.Fail(t, "worker did not stop")
	}
}

func TestEnqueue_RejectsNegativeLimit(t *testing.T) {
	svc, _, _, _ := newService(&fakeExecutor{})

	_, err := svc.Enqueue(context.Background(), nil, -1)
	require.ErrorIs(t, err, coreerrors.ErrInvalidInput)
}

func TestEnqueueScheduled_OneRunPerPassedWindow(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newService(&fakeExecutor{})

	daily, err := schedule.Parse("02:00,14:00", "UTC")
	require.NoError(t, err)

	svc.cfg.Schedule = daily
	svc.cfg.ScheduledLimit = 500

	now := time.Date(2026, 3, 1, 1, 59, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	store.Now = svc.now
	svc.lastCheck = now

	svc.enqueueScheduled(ctx)
	_, err = svc.Latest(ctx, nil)
	require.ErrorIs(t, err, coreerrors.ErrRunNotFound)

	now = now.Add(2 * time.Minute)
	svc.enqueueScheduled(ctx)

	rec, err := svc.Latest(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunQueued, rec.Status)
	assert.Equal(t, 500, rec.Limit)
	assert.Nil(t, rec.SupplierID)

	now = now.Add(time.Minute)
	svc.enqueueScheduled(ctx)

	again, err := svc.Latest(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID, "no new slot passed")
}
