package jobs_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/db/dbtest"
	"github.com/oggyb/swipe-guard/internal/jobs"
	"github.com/oggyb/swipe-guard/internal/logger"
	"github.com/oggyb/swipe-guard/internal/notify"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// fakeRecalc counts runs and fails the ones listed in failOn.
type fakeRecalc struct {
	calls  atomic.Int32
	failOn map[int32]bool
}

func (f *fakeRecalc) RecalculateAll(ctx context.Context, _ config.AbuseSettings) (int, error) {
	n := f.calls.Add(1)
	if f.failOn[n] {
		return 0, errors.New("db went away")
	}
	return int(n), nil
}

func runInBackground(t *testing.T, run func(context.Context) error) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not stop after cancellation")
			return nil
		}
	}
}

func TestRecalculator_KeepsTickingAfterFailure(t *testing.T) {
	engine := &fakeRecalc{failOn: map[int32]bool{1: true}}
	r := jobs.NewRecalculator(engine, config.StaticAbuse(config.DefaultAbuse()), logger.Discard(),
		jobs.WithStartupDelay(0), jobs.WithInterval(5*time.Millisecond))

	stop := runInBackground(t, r.Run)
	require.Eventually(t, func() bool { return engine.calls.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	assert.NoError(t, stop())
}

func TestRecalculator_CancelDuringStartupDelay(t *testing.T) {
	engine := &fakeRecalc{}
	r := jobs.NewRecalculator(engine, config.StaticAbuse(config.DefaultAbuse()), logger.Discard())

	stop := runInBackground(t, r.Run)
	assert.NoError(t, stop())
	assert.Zero(t, engine.calls.Load())
}

func TestRecalculator_RunOnce(t *testing.T) {
	engine := &fakeRecalc{failOn: map[int32]bool{2: true}}
	r := jobs.NewRecalculator(engine, config.StaticAbuse(config.DefaultAbuse()), logger.Discard())

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.RunOnce(context.Background())
	assert.Error(t, err)
}

// flakyNotifier fails while failing is set.
type flakyNotifier struct {
	mu      sync.Mutex
	failing bool
	calls   int
}

func (n *flakyNotifier) NotifyMatch(context.Context, uint64, uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.failing {
		return errors.New("broker down")
	}
	return nil
}

type dispatchFixture struct {
	ledger   *repository.Ledger
	notifier *flakyNotifier
	d        *jobs.OutboxDispatcher
	now      time.Time
	dbc      dbctx.Context
}

func setupDispatcher(t *testing.T, maxAttempts int) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		ledger:   repository.NewLedger(dbtest.Open(t)),
		notifier: &flakyNotifier{},
		now:      time.Now().UTC().Add(time.Hour),
		dbc:      dbctx.Background(context.Background()),
	}
	f.d = jobs.NewOutboxDispatcher(
		f.ledger.Notifications, f.notifier,
		notify.RetryPolicy{Base: time.Minute, MaxAttempts: maxAttempts},
		time.Second, 2*time.Minute, logger.Discard(),
		jobs.WithDispatcherClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *dispatchFixture) enqueue(t *testing.T, a, b uint64) *db.MatchNotification {
	t.Helper()
	m, err := f.ledger.Matches.Create(f.dbc, a, b)
	require.NoError(t, err)
	n, err := f.ledger.Notifications.Enqueue(f.dbc, m)
	require.NoError(t, err)
	return n
}

func (f *dispatchFixture) reload(t *testing.T, id uint64) *db.MatchNotification {
	t.Helper()
	n, err := f.ledger.Notifications.Get(f.dbc, id)
	require.NoError(t, err)
	require.NotNil(t, n)
	return n
}

func TestDispatchOnce_DeliversStalePending(t *testing.T) {
	f := setupDispatcher(t, 5)
	n := f.enqueue(t, 1, 2)

	sent, err := f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, db.NotificationSent, f.reload(t, n.ID).Status)

	sent, err = f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "sent rows are not redelivered")
	assert.Equal(t, 1, f.notifier.calls)
}

func TestDispatchOnce_BacksOffThenGivesUp(t *testing.T) {
	f := setupDispatcher(t, 3)
	f.notifier.failing = true
	n := f.enqueue(t, 1, 2)

	_, err := f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	got := f.reload(t, n.ID)
	assert.Equal(t, db.NotificationFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.NextAttemptAt)
	assert.True(t, got.NextAttemptAt.Equal(f.now.Add(time.Minute)))

	// not due yet
	_, err = f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.calls)

	f.now = f.now.Add(time.Minute)
	_, err = f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	got = f.reload(t, n.ID)
	assert.Equal(t, 2, got.Attempts)
	assert.True(t, got.NextAttemptAt.Equal(f.now.Add(2*time.Minute)))

	f.now = f.now.Add(2 * time.Minute)
	_, err = f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	got = f.reload(t, n.ID)
	assert.Equal(t, db.NotificationDead, got.Status)
	assert.Equal(t, 3, got.Attempts)

	f.now = f.now.Add(time.Hour)
	_, err = f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.notifier.calls, "dead rows are left alone")
}

func TestDispatchOnce_RecoversAfterOutage(t *testing.T) {
	f := setupDispatcher(t, 5)
	f.notifier.failing = true
	n := f.enqueue(t, 3, 4)

	_, err := f.d.DispatchOnce(context.Background())
	require.NoError(t, err)

	f.notifier.failing = false
	f.now = f.now.Add(time.Minute)
	sent, err := f.d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got := f.reload(t, n.ID)
	assert.Equal(t, db.NotificationSent, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Nil(t, got.NextAttemptAt)
}

func TestOutboxDispatcher_RunStopsOnCancel(t *testing.T) {
	f := setupDispatcher(t, 5)
	f.enqueue(t, 1, 2)

	stop := runInBackground(t, f.d.Run)
	require.Eventually(t, func() bool {
		f.notifier.mu.Lock()
		defer f.notifier.mu.Unlock()
		return f.notifier.calls == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, stop())
}

func TestOutboxDispatcher_ZeroIntervalUsesDefault(t *testing.T) {
	f := setupDispatcher(t, 5)
	d := jobs.NewOutboxDispatcher(
		f.ledger.Notifications, f.notifier,
		notify.RetryPolicy{Base: time.Minute, MaxAttempts: 5},
		0, 2*time.Minute, logger.Discard(),
	)

	stop := runInBackground(t, d.Run)
	assert.NoError(t, stop())
}
