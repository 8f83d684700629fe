package botdetect_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/swipe-guard/internal/botdetect"
	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/db/dbtest"
	"github.com/oggyb/swipe-guard/internal/logger"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

var start = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// history builds swipes from oldest-first offsets and returns them newest first.
func history(offsets []time.Duration, like func(i int) bool, device func(i int) *string) []db.Swipe {
	out := make([]db.Swipe, len(offsets))
	for i, off := range offsets {
		out[len(offsets)-1-i] = db.Swipe{
			UserID:       1,
			TargetUserID: uint64(1000 + i),
			IsLike:       like(i),
			CreatedAt:    start.Add(off),
			DeviceInfo:   device(i),
		}
	}
	return out
}

func always(v bool) func(int) bool        { return func(int) bool { return v } }
func alternate(i int) bool                 { return i%2 == 0 }
func noDevice(int) *string                 { return nil }
func device(name string) func(int) *string { return func(int) *string { return &name } }

// botOffsets: eight swipes 10s apart at the top of every hour of the day.
func botOffsets() []time.Duration {
	var offs []time.Duration
	for h := 0; h < 24; h++ {
		for k := 0; k < 8; k++ {
			offs = append(offs, time.Duration(h)*time.Hour+time.Duration(k)*10*time.Second)
		}
	}
	return offs
}

func TestEvaluate_InsufficientData(t *testing.T) {
	cfg := config.DefaultAbuse()
	for _, n := range []int{0, 1, 19} {
		offs := make([]time.Duration, n)
		for i := range offs {
			offs[i] = time.Duration(i) * 2 * time.Second
		}
		res := botdetect.Evaluate(history(offs, always(true), noDevice), cfg)
		assert.Equal(t, 0.0, res.BotProbability)
		assert.Equal(t, []string{botdetect.SignalInsufficientData}, res.Signals)
		assert.False(t, res.ShouldFlag)
	}
}

func TestEvaluate_ScriptedUserIsFlagged(t *testing.T) {
	res := botdetect.Evaluate(history(botOffsets(), always(true), noDevice), config.DefaultAbuse())

	// regularity 1 + hours 1 + monotonic 0.9 + no device 0.5
	assert.InDelta(t, 0.85, res.BotProbability, 1e-9)
	assert.True(t, res.ShouldFlag)
	assert.Len(t, res.Signals, 4)
	assert.Contains(t, res.Signals, "no device fingerprint")
	assert.Contains(t, res.Signals, "active 24 of 24 hours")
}

func TestEvaluate_HumanUserIsNotFlagged(t *testing.T) {
	var offs []time.Duration
	at := time.Duration(0)
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			at += 2 * time.Second
		} else {
			at += 200 * time.Second
		}
		offs = append(offs, at)
	}

	res := botdetect.Evaluate(history(offs, alternate, device("iPhone15,2")), config.DefaultAbuse())
	assert.Equal(t, 0.0, res.BotProbability)
	assert.Empty(t, res.Signals)
	assert.False(t, res.ShouldFlag)
}

func TestEvaluate_FewQualifyingIntervalsIgnoreTiming(t *testing.T) {
	offs := make([]time.Duration, 25)
	for i := range offs {
		offs[i] = time.Duration(i) * 10 * time.Minute
	}
	res := botdetect.Evaluate(history(offs, alternate, device("Pixel 8")), config.DefaultAbuse())
	assert.Equal(t, 0.0, res.BotProbability)
}

func TestEvaluate_DeviceFingerprint(t *testing.T) {
	cfg := config.DefaultAbuse()
	spaced := func(n int) []time.Duration {
		offs := make([]time.Duration, n)
		for i := range offs {
			offs[i] = time.Duration(i) * 10 * time.Minute
		}
		return offs
	}

	res := botdetect.Evaluate(history(spaced(51), alternate, device("Pixel 8")), cfg)
	assert.Contains(t, res.Signals, "single device fingerprint")
	assert.InDelta(t, 0.3/4, res.BotProbability, 1e-9)

	res = botdetect.Evaluate(history(spaced(50), alternate, device("Pixel 8")), cfg)
	assert.NotContains(t, res.Signals, "single device fingerprint")

	res = botdetect.Evaluate(history(spaced(21), alternate, noDevice), cfg)
	assert.Contains(t, res.Signals, "no device fingerprint")
	assert.InDelta(t, 0.5/4, res.BotProbability, 1e-9)

	res = botdetect.Evaluate(history(spaced(20), alternate, noDevice), cfg)
	assert.NotContains(t, res.Signals, "no device fingerprint")

	mixed := func(i int) *string {
		d := []string{"Pixel 8", "iPad"}[i%2]
		return &d
	}
	res = botdetect.Evaluate(history(spaced(60), alternate, mixed), cfg)
	assert.Empty(t, res.Signals)
}

func TestEvaluate_MonotonicPasses(t *testing.T) {
	offs := make([]time.Duration, 30)
	for i := range offs {
		offs[i] = time.Duration(i) * 10 * time.Minute
	}
	res := botdetect.Evaluate(history(offs, always(false), device("Pixel 8")), config.DefaultAbuse())
	assert.InDelta(t, 0.9/4, res.BotProbability, 1e-9)
	require.Len(t, res.Signals, 1)
	assert.Contains(t, res.Signals[0], "monotonic")
}

func TestAnalyze_ReadsRecentSample(t *testing.T) {
	swipes := repository.NewSwipeRepository(dbtest.Open(t))
	dbc := dbctx.Background(context.Background())
	for _, s := range history(botOffsets(), always(true), noDevice) {
		require.NoError(t, swipes.Create(dbc, &s))
	}

	cfg := config.DefaultAbuse()
	d := botdetect.New(swipes, logger.Discard())

	res, err := d.Analyze(context.Background(), cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.UserID)
	assert.Equal(t, 192, res.SampleSize)
	assert.True(t, res.ShouldFlag)

	cfg.BotSampleSize = 10
	res, err = d.Analyze(context.Background(), cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{botdetect.SignalInsufficientData}, res.Signals)

	res, err = d.Analyze(context.Background(), config.DefaultAbuse(), 2)
	require.NoError(t, err)
	assert.Zero(t, res.BotProbability)
}
