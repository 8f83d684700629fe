package swipe_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/db/dbtest"
	svcErr "github.com/oggyb/swipe-guard/internal/errors"
	"github.com/oggyb/swipe-guard/internal/logger"
	"github.com/oggyb/swipe-guard/internal/ratelimit"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/service/swipe"
	"github.com/oggyb/swipe-guard/internal/trust"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

//
// Test helpers
//

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorder is a MatchNotifier that remembers every call.
type recorder struct {
	mu    sync.Mutex
	calls [][2]uint64
	fail  error
}

func (r *recorder) NotifyMatch(_ context.Context, a, b uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]uint64{a, b})
	return r.fail
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	proc     *swipe.Processor
	ledger   *repository.Ledger
	engine   *trust.Engine
	clock    *clock
	notifier *recorder
	dbc      dbctx.Context
}

// setupProcessor wires a processor with the real limiter and trust engine
// over a fresh in-memory DB. Each test gets its own isolated DB.
func setupProcessor(t *testing.T, cfg config.AbuseSettings, opts ...swipe.Option) *fixture {
	t.Helper()

	ledger := repository.NewLedger(dbtest.Open(t))
	c := &clock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	log := logger.Discard()
	engine := trust.New(ledger.Stats, ledger.Swipes, log, trust.WithClock(c.now))
	n := &recorder{}

	base := []swipe.Option{
		swipe.WithRateLimiter(ratelimit.New(ledger.Counters, log, ratelimit.WithClock(c.now))),
		swipe.WithBehaviorAnalyzer(engine),
		swipe.WithNotifier(n),
		swipe.WithLogger(log),
		swipe.WithClock(c.now),
	}
	proc := swipe.NewProcessor(ledger, config.StaticAbuse(cfg), append(base, opts...)...)

	return &fixture{
		proc:     proc,
		ledger:   ledger,
		engine:   engine,
		clock:    c,
		notifier: n,
		dbc:      dbctx.Background(context.Background()),
	}
}

func (f *fixture) record(t *testing.T, user, target uint64, like bool) swipe.SwipeResult {
	t.Helper()
	f.clock.advance(time.Minute)
	res, err := f.proc.RecordSwipe(context.Background(), swipe.SwipeRequest{UserID: user, TargetUserID: target, IsLike: like})
	require.NoError(t, err)
	return res
}

func (f *fixture) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.ledger.DB().Model(model).Count(&n).Error)
	return n
}

//
// Tests
//

func TestRecordSwipe_SelfSwipeRejected(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())

	for _, id := range []uint64{1, 42, 1 << 40} {
		_, err := f.proc.RecordSwipe(context.Background(), swipe.SwipeRequest{UserID: id, TargetUserID: id, IsLike: true})
		require.ErrorIs(t, err, svcErr.ErrValidation)
		assert.Contains(t, err.Error(), "cannot swipe on yourself")
	}
	assert.Zero(t, f.countRows(t, &db.Swipe{}))
}

func TestRecordSwipe_PassIsRecorded(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())

	res := f.record(t, 1, 2, false)
	assert.True(t, res.Success)
	assert.Equal(t, swipe.MessageRecorded, res.Message)
	assert.False(t, res.IsMutualMatch)
	assert.NotZero(t, res.SwipeID)

	counter, err := f.ledger.Counters.Get(f.dbc, 1, repository.DayKey(f.clock.now()))
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, 1, counter.SwipeCount)
	assert.Equal(t, 0, counter.LikeCount)

	stats, err := f.ledger.Stats.Find(f.dbc, 1)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.TotalPasses)
}

func TestRecordSwipe_MutualMatchSymmetry(t *testing.T) {
	tests := []struct {
		name          string
		first, second [2]uint64
		want          [2]uint64
	}{
		{"lower id completes", [2]uint64{2, 1}, [2]uint64{1, 2}, [2]uint64{1, 2}},
		{"higher id completes", [2]uint64{3, 5}, [2]uint64{5, 3}, [2]uint64{3, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupProcessor(t, config.DefaultAbuse())

			first := f.record(t, tt.first[0], tt.first[1], true)
			assert.False(t, first.IsMutualMatch)

			res := f.record(t, tt.second[0], tt.second[1], true)
			assert.True(t, res.Success)
			assert.True(t, res.IsMutualMatch)
			assert.Equal(t, swipe.MessageMatch, res.Message)
			assert.Greater(t, res.MatchID, uint64(0))
			assert.False(t, res.NotificationPending)

			m, err := f.ledger.Matches.FindActiveByPair(f.dbc, tt.want[0], tt.want[1])
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, res.MatchID, m.ID)
			assert.Equal(t, tt.want[0], m.User1ID)
			assert.Equal(t, tt.want[1], m.User2ID)

			s, err := f.ledger.Swipes.Find(f.dbc, tt.second[0], tt.second[1])
			require.NoError(t, err)
			require.NotNil(t, s.MatchID)
			assert.Equal(t, m.ID, *s.MatchID)

			assert.Equal(t, [][2]uint64{tt.want}, f.notifier.calls)
			n := f.outbox(t, m.ID)
			assert.Equal(t, db.NotificationSent, n.Status)
		})
	}
}

func (f *fixture) outbox(t *testing.T, matchID uint64) db.MatchNotification {
	t.Helper()
	var n db.MatchNotification
	require.NoError(t, f.ledger.DB().Where("match_id = ?", matchID).Take(&n).Error)
	return n
}

func TestRecordSwipe_LikeAfterPassIsNoMatch(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())

	f.record(t, 2, 1, false)
	res := f.record(t, 1, 2, true)
	assert.False(t, res.IsMutualMatch)
	assert.Zero(t, f.countRows(t, &db.Match{}))
	assert.Zero(t, f.notifier.count())
}

func TestRecordSwipe_DuplicateRejected(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	f.record(t, 1, 2, true)

	for _, like := range []bool{true, false} {
		_, err := f.proc.RecordSwipe(context.Background(), swipe.SwipeRequest{UserID: 1, TargetUserID: 2, IsLike: like})
		require.ErrorIs(t, err, svcErr.ErrConflict)
		assert.Equal(t, "already swiped", err.Error())
	}
	assert.Equal(t, int64(1), f.countRows(t, &db.Swipe{}))
}

func TestRecordSwipe_IdempotentReplay(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	ctx := context.Background()
	f.record(t, 2, 1, true)

	req := swipe.SwipeRequest{UserID: 1, TargetUserID: 2, IsLike: true, IdempotencyKey: "req-1"}
	first, err := f.proc.RecordSwipe(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.IsMutualMatch)
	assert.False(t, first.Replayed)

	f.clock.advance(time.Minute)
	second, err := f.proc.RecordSwipe(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.IsMutualMatch, second.IsMutualMatch)
	assert.Equal(t, first.MatchID, second.MatchID)
	assert.Equal(t, first.SwipeID, second.SwipeID)
	assert.Equal(t, first.Message, second.Message)

	assert.Equal(t, int64(2), f.countRows(t, &db.Swipe{}))
	assert.Equal(t, 1, f.notifier.count(), "replay does not notify again")

	counter, err := f.ledger.Counters.Get(f.dbc, 1, repository.DayKey(f.clock.now()))
	require.NoError(t, err)
	assert.Equal(t, 1, counter.SwipeCount, "replay does not consume quota")
}

func TestRecordSwipe_IdempotencyKeyReusedForOtherPair(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	ctx := context.Background()

	_, err := f.proc.RecordSwipe(ctx, swipe.SwipeRequest{UserID: 1, TargetUserID: 2, IdempotencyKey: "k"})
	require.NoError(t, err)

	_, err = f.proc.RecordSwipe(ctx, swipe.SwipeRequest{UserID: 1, TargetUserID: 3, IdempotencyKey: "k"})
	require.ErrorIs(t, err, svcErr.ErrConflict)
	assert.Equal(t, int64(1), f.countRows(t, &db.Swipe{}))
}

func TestRecordSwipe_ConcurrentDuplicatesCreateOneSwipe(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.proc.RecordSwipe(ctx, swipe.SwipeRequest{UserID: 1, TargetUserID: 2, IsLike: true})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, svcErr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, int64(1), f.countRows(t, &db.Swipe{}))
}

func TestRecordSwipe_ConcurrentIdempotentRetries(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	ctx := context.Background()
	req := swipe.SwipeRequest{UserID: 1, TargetUserID: 2, IsLike: true, IdempotencyKey: "retry-me"}

	const workers = 6
	results := make([]swipe.SwipeResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.proc.RecordSwipe(ctx, req)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].SwipeID, results[i].SwipeID)
	}
	assert.Equal(t, int64(1), f.countRows(t, &db.Swipe{}))
}

func TestRecordSwipe_ConcurrentMutualLikesFormOneMatch(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]swipe.SwipeResult, 2)
	for i, pair := range [][2]uint64{{1, 2}, {2, 1}} {
		wg.Add(1)
		go func(i int, pair [2]uint64) {
			defer wg.Done()
			res, err := f.proc.RecordSwipe(ctx, swipe.SwipeRequest{UserID: pair[0], TargetUserID: pair[1], IsLike: true})
			assert.NoError(t, err)
			results[i] = res
		}(i, pair)
	}
	wg.Wait()

	assert.Equal(t, int64(1), f.countRows(t, &db.Match{}))
	assert.Equal(t, int64(1), f.countRows(t, &db.MatchNotification{}))
	assert.Equal(t, 1, f.notifier.count())
	assert.True(t, results[0].IsMutualMatch || results[1].IsMutualMatch)
}

func TestRecordSwipe_RateLimited(t *testing.T) {
	cfg := config.DefaultAbuse()
	cfg.DailyLikeLimit = 2
	f := setupProcessor(t, cfg)

	f.record(t, 1, 10, true)
	f.record(t, 1, 11, true)

	_, err := f.proc.RecordSwipe(context.Background(), swipe.SwipeRequest{UserID: 1, TargetUserID: 12, IsLike: true})
	require.ErrorIs(t, err, svcErr.ErrRateLimited)
	var rl *svcErr.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 0, rl.Remaining)
	assert.Equal(t, 2, rl.Limit)
	assert.True(t, rl.IsLike)

	// passes draw from the overall quota
	f.record(t, 1, 12, false)

	// a new UTC day starts fresh
	f.clock.advance(24 * time.Hour)
	f.record(t, 1, 13, true)
}

func TestRecordSwipe_LikeCannotExceedSwipeCeiling(t *testing.T) {
	cfg := config.DefaultAbuse()
	cfg.DailySwipeLimit = 3
	cfg.DailyLikeLimit = 2
	f := setupProcessor(t, cfg)

	for target := uint64(10); target < 13; target++ {
		f.record(t, 1, target, false)
	}

	for _, like := range []bool{false, true} {
		f.clock.advance(time.Minute)
		_, err := f.proc.RecordSwipe(context.Background(), swipe.SwipeRequest{UserID: 1, TargetUserID: 20, IsLike: like})
		require.ErrorIs(t, err, svcErr.ErrRateLimited)
		var rl *svcErr.RateLimitError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, 3, rl.Limit)
		assert.Equal(t, 0, rl.Remaining)
	}

	var swipes int64
	require.NoError(t, f.ledger.DB().Model(&db.Swipe{}).Where("user_id = ?", 1).Count(&swipes).Error)
	assert.Equal(t, int64(3), swipes)
}

func TestRecordSwipe_CircuitBreaker(t *testing.T) {
	cfg := config.DefaultAbuse()
	cfg.ConsecutiveLikeLimit = 3
	f := setupProcessor(t, cfg)

	for target := uint64(10); target < 13; target++ {
		f.record(t, 1, target, true)
	}

	// reaching the limit arms the breaker but this swipe still goes through
	res := f.record(t, 1, 13, true)
	assert.True(t, res.Success)

	f.clock.advance(time.Minute)
	_, err := f.proc.RecordSwipe(context.Background(), swipe.SwipeRequest{UserID: 1, TargetUserID: 14, IsLike: false})
	require.ErrorIs(t, err, svcErr.ErrCircuitOpen)
	var cd *svcErr.CooldownError
	require.ErrorAs(t, err, &cd)
	assert.True(t, cd.Until.After(f.clock.now()))

	f.clock.advance(time.Duration(cfg.CooldownMinutes) * time.Minute)
	f.record(t, 1, 14, false)
}

func TestRecordSwipe_NotificationFailureKeepsMatch(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	f.notifier.fail = errors.New("matchmaking unavailable")

	f.record(t, 2, 1, true)
	res := f.record(t, 1, 2, true)

	assert.True(t, res.Success)
	assert.True(t, res.IsMutualMatch)
	assert.True(t, res.NotificationPending)
	assert.Equal(t, 1, f.notifier.count())

	n := f.outbox(t, res.MatchID)
	assert.Equal(t, db.NotificationFailed, n.Status)
	assert.Equal(t, 1, n.Attempts)
	require.NotNil(t, n.LastError)
	assert.Contains(t, *n.LastError, "matchmaking unavailable")
	require.NotNil(t, n.NextAttemptAt)
	assert.True(t, n.NextAttemptAt.After(f.clock.now()))
}

func TestRecordSwipe_UnmatchedPairDoesNotRematch(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())

	m, err := f.ledger.Matches.Create(f.dbc, 1, 2)
	require.NoError(t, err)
	_, err = f.ledger.Matches.Deactivate(f.dbc, m.ID, 1, f.clock.now())
	require.NoError(t, err)
	require.NoError(t, f.ledger.Swipes.Create(f.dbc, &db.Swipe{UserID: 2, TargetUserID: 1, IsLike: true}))

	res := f.record(t, 1, 2, true)
	assert.True(t, res.Success)
	assert.False(t, res.IsMutualMatch)
	assert.Zero(t, res.MatchID)
	assert.Equal(t, int64(1), f.countRows(t, &db.Match{}))
	assert.Zero(t, f.notifier.count())
}

// failingStats records the stats and then fails, so the savepoint must undo them.
type failingStats struct {
	*trust.Engine
}

func (s failingStats) UpdateStatsOnSwipe(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64, isLike bool) error {
	if err := s.Engine.UpdateStatsOnSwipe(dbc, cfg, userID, isLike); err != nil {
		return err
	}
	return errors.New("stats store exploded")
}

func TestRecordSwipe_StatsFailureIsSwallowed(t *testing.T) {
	stats := &failingStats{}
	f := setupProcessor(t, config.DefaultAbuse(), swipe.WithBehaviorAnalyzer(stats))
	stats.Engine = f.engine

	f.record(t, 2, 1, true)
	res := f.record(t, 1, 2, true)
	assert.True(t, res.IsMutualMatch, "core pipeline unaffected")

	s, err := f.ledger.Stats.Find(f.dbc, 1)
	require.NoError(t, err)
	require.NotNil(t, s, "created by the suspicion check before the transaction")
	assert.Zero(t, s.TotalSwipes, "stats changes rolled back to the savepoint")
	counter, err := f.ledger.Counters.Get(f.dbc, 1, repository.DayKey(f.clock.now()))
	require.NoError(t, err)
	assert.Equal(t, 1, counter.SwipeCount)
}

func TestRecordSwipe_OptionalCollaboratorsDisabled(t *testing.T) {
	ledger := repository.NewLedger(dbtest.Open(t))
	cfg := config.DefaultAbuse()
	cfg.DailyLikeLimit = 1
	proc := swipe.NewProcessor(ledger, config.StaticAbuse(cfg), swipe.WithLogger(logger.Discard()))
	ctx := context.Background()

	for target := uint64(2); target < 5; target++ {
		_, err := proc.RecordSwipe(ctx, swipe.SwipeRequest{UserID: 1, TargetUserID: target, IsLike: true})
		require.NoError(t, err)
	}
	s, err := ledger.Stats.Find(dbctx.Background(ctx), 1)
	require.NoError(t, err)
	assert.Nil(t, s, "no behavior analysis")
}

func TestRecordSwipe_StoresMetadata(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())

	_, err := f.proc.RecordSwipe(context.Background(), swipe.SwipeRequest{
		UserID: 1, TargetUserID: 2, IsLike: true, DeviceInfo: "Pixel 8", Location: "51.5,-0.1",
	})
	require.NoError(t, err)

	s, err := f.ledger.Swipes.Find(f.dbc, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, s.DeviceInfo)
	assert.Equal(t, "Pixel 8", *s.DeviceInfo)
	require.NotNil(t, s.Location)
	assert.Nil(t, s.IdempotencyKey)
}

func TestUnmatch(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	ctx := context.Background()

	for _, pair := range [][2]uint64{{1, 2}, {2, 1}} {
		_, err := f.proc.Unmatch(ctx, pair[0], pair[1])
		require.ErrorIs(t, err, svcErr.ErrNotFound)
		assert.Equal(t, "match not found", err.Error())
	}

	f.record(t, 1, 2, true)
	f.record(t, 2, 1, true)

	res, err := f.proc.Unmatch(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, res.Success)

	for _, pair := range [][2]uint64{{1, 2}, {2, 1}} {
		_, err := f.proc.Unmatch(ctx, pair[0], pair[1])
		require.ErrorIs(t, err, svcErr.ErrNotFound)
		assert.Equal(t, "match not found", err.Error())
	}

	m, err := f.ledger.Matches.FindByPair(f.dbc, 1, 2)
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	require.NotNil(t, m.UnmatchedByUserID)
	assert.Equal(t, uint64(2), *m.UnmatchedByUserID)

	_, err = f.proc.Unmatch(ctx, 3, 3)
	require.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestListMatches(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	ctx := context.Background()

	for _, other := range []uint64{2, 3, 4} {
		f.record(t, other, 1, true)
		f.record(t, 1, other, true)
	}

	page, next, err := f.proc.ListMatches(ctx, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)

	rest, next2, err := f.proc.ListMatches(ctx, 1, next, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, next2)

	bad := "%%%"
	_, _, err = f.proc.ListMatches(ctx, 1, &bad, 2)
	require.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestAnalyzeBot_InsufficientData(t *testing.T) {
	f := setupProcessor(t, config.DefaultAbuse())
	f.record(t, 1, 2, true)

	res, err := f.proc.AnalyzeBot(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, res.BotProbability)
	assert.Equal(t, []string{"insufficient data"}, res.Signals)
	assert.False(t, res.ShouldFlag)
}
