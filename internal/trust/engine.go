// Package trust maintains per-user behavioral statistics, derives the trust
// score from them and runs the consecutive-like circuit breaker.
package trust

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

const (
	// velocityWindow bounds the intervals that feed the velocity EMA.
	velocityWindow = 300 * time.Second
	emaAlpha       = 0.1
)

// Suspicion reasons.
const (
	ReasonCooldown         = "cooldown active"
	ReasonRapidSwipe       = "rapid swipe"
	ReasonConsecutiveLikes = "consecutive like limit reached"
)

// Suspicion is the verdict on a single swipe about to be recorded.
type Suspicion struct {
	Suspicious bool
	Reason     string
	// CooldownUntil is set when the check armed the circuit breaker.
	CooldownUntil *time.Time
}

// Engine is the TrustScoreEngine backed by the Ledger.
type Engine struct {
	stats  *repository.StatsRepository
	swipes *repository.SwipeRepository
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(stats *repository.StatsRepository, swipes *repository.SwipeRepository, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		stats:  stats,
		swipes: swipes,
		log:    log.With("component", "trust"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// GetOrCreateStats returns the user's stats, creating them at full trust.
func (e *Engine) GetOrCreateStats(dbc dbctx.Context, userID uint64) (*db.BehaviorStats, error) {
	s, err := e.stats.GetOrCreate(dbc, userID, e.clock())
	if err != nil {
		return nil, fmt.Errorf("load behavior stats: %w", err)
	}
	return s, nil
}

// UpdateStatsOnSwipe folds one swipe into the user's stats.
//
// Behavior:
//   - An interval below the rapid threshold counts as a rapid swipe.
//   - Intervals under five minutes feed the velocity EMA (swipes/min).
//   - A pass resets the current like streak; the peak is kept.
//   - daysActive grows when the swipe falls on a new UTC day.
//   - Every RecalcEveryNSwipes swipes the trust score is recomputed in place.
func (e *Engine) UpdateStatsOnSwipe(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64, isLike bool) error {
	now := e.clock()
	s, err := e.GetOrCreateStats(dbc, userID)
	if err != nil {
		return err
	}

	if s.LastSwipeAt != nil {
		dt := now.Sub(*s.LastSwipeAt)
		if dt > 0 && dt < cfg.RapidThreshold() {
			s.RapidSwipeCount++
		}
		if dt > 0 && dt < velocityWindow {
			instant := 60 / dt.Seconds()
			s.AvgSwipeVelocity = s.AvgSwipeVelocity*(1-emaAlpha) + instant*emaAlpha
		}
		if repository.DayKey(now) != repository.DayKey(*s.LastSwipeAt) {
			s.DaysActive++
		}
	} else {
		s.DaysActive = 1
	}

	s.TotalSwipes++
	if isLike {
		s.TotalLikes++
		s.CurrentConsecutiveLikes++
		if s.CurrentConsecutiveLikes > s.PeakSwipeStreak {
			s.PeakSwipeStreak = s.CurrentConsecutiveLikes
		}
	} else {
		s.TotalPasses++
		s.CurrentConsecutiveLikes = 0
	}
	s.RightSwipeRatio = float64(s.TotalLikes) / float64(s.TotalSwipes)
	s.LastSwipeAt = &now

	if cfg.RecalcEveryNSwipes > 0 && s.TotalSwipes%cfg.RecalcEveryNSwipes == 0 {
		s.TrustScore = Score(*s, cfg)
		s.LastCalculatedAt = now
	}

	if err := e.stats.Save(dbc, s); err != nil {
		return fmt.Errorf("save behavior stats: %w", err)
	}
	return nil
}

// CalculateTrustScore recomputes, persists and returns the user's score.
func (e *Engine) CalculateTrustScore(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64) (float64, error) {
	now := e.clock()
	s, err := e.GetOrCreateStats(dbc, userID)
	if err != nil {
		return 0, err
	}
	score := Score(*s, cfg)
	err = e.stats.Update(dbc, userID, map[string]any{
		"trust_score":        score,
		"last_calculated_at": now,
	})
	if err != nil {
		return 0, fmt.Errorf("save trust score: %w", err)
	}
	return score, nil
}

// IsSwipeSuspicious judges the swipe the user is about to make. It checks, in
// order, an active cooldown, a rapid interval and the consecutive-like limit.
// Reaching the like limit arms the circuit breaker as a side effect.
func (e *Engine) IsSwipeSuspicious(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64, isLike bool) (Suspicion, error) {
	now := e.clock()
	s, err := e.GetOrCreateStats(dbc, userID)
	if err != nil {
		return Suspicion{}, err
	}

	if s.CooldownUntil != nil && s.CooldownUntil.After(now) {
		return Suspicion{Suspicious: true, Reason: ReasonCooldown}, nil
	}
	if s.LastSwipeAt != nil && now.Sub(*s.LastSwipeAt) < cfg.RapidThreshold() {
		return Suspicion{Suspicious: true, Reason: ReasonRapidSwipe}, nil
	}
	if isLike && s.CurrentConsecutiveLikes >= cfg.ConsecutiveLikeLimit {
		until := now.Add(cfg.Cooldown())
		if err := e.stats.SetCooldown(dbc, userID, until); err != nil {
			return Suspicion{}, fmt.Errorf("arm cooldown: %w", err)
		}
		e.log.Warn("circuit breaker armed",
			"user_id", userID,
			"consecutive_likes", s.CurrentConsecutiveLikes,
			"until", until)
		return Suspicion{Suspicious: true, Reason: ReasonConsecutiveLikes, CooldownUntil: &until}, nil
	}
	return Suspicion{}, nil
}

// CheckCooldown reports the active cooldown of the user, if any. It never
// creates stats.
func (e *Engine) CheckCooldown(dbc dbctx.Context, userID uint64) (*time.Time, bool, error) {
	s, err := e.stats.Find(dbc, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load behavior stats: %w", err)
	}
	if s == nil || s.CooldownUntil == nil || !s.CooldownUntil.After(e.clock()) {
		return nil, false, nil
	}
	return s.CooldownUntil, true, nil
}
