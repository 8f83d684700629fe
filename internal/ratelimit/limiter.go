// Package ratelimit enforces per-user daily swipe and like quotas.
//
// Counters are persisted per (user, UTC day), so every instance of the service
// sees the same quota. A new day starts from an empty counter; yesterday's row
// is never consulted.
package ratelimit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
}

// Limiter is the persisted daily quota.
type Limiter struct {
	counters *repository.CounterRepository
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source, used to pick "today".
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(counters *repository.CounterRepository, log *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		counters: counters,
		log:      log.With("component", "ratelimit"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CheckDailyLimit reports whether the user may swipe again today. Every swipe
// counts against the overall swipe quota; a like must also fit the like quota.
// It never writes.
func (l *Limiter) CheckDailyLimit(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64, isLike bool) (Decision, error) {
	row, err := l.counters.Get(dbc, userID, repository.DayKey(l.now()))
	if err != nil {
		return Decision{}, fmt.Errorf("load daily counter: %w", err)
	}

	var swipes, likes int
	if row != nil {
		swipes, likes = row.SwipeCount, row.LikeCount
	}
	return decide(cfg, swipes, likes, isLike), nil
}

// decide reports the tighter of the applicable quotas. On a tie the like
// quota is reported for likes.
func decide(cfg config.AbuseSettings, swipes, likes int, isLike bool) Decision {
	d := quota(cfg.DailySwipeLimit, swipes)
	if isLike {
		if like := quota(cfg.DailyLikeLimit, likes); like.Remaining <= d.Remaining {
			d = like
		}
	}
	return d
}

func quota(limit, used int) Decision {
	return Decision{Allowed: used < limit, Remaining: max(limit-used, 0), Limit: limit}
}

// IncrementSwipeCount records one swipe for today, creating the row on first use.
func (l *Limiter) IncrementSwipeCount(dbc dbctx.Context, userID uint64, isLike bool) error {
	if err := l.counters.Increment(dbc, userID, l.now().UTC(), isLike); err != nil {
		return fmt.Errorf("increment daily counter: %w", err)
	}
	return nil
}
