package trust

import (
	"context"
	"fmt"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// RecalculateAll rebuilds totals and trust scores of every user active within
// cfg.RecalcActivityWindow from their entire swipe history, and flags users
// whose score drops below cfg.FlagThreshold. It returns how many users were
// recalculated.
//
// Cancellation is checked between users. A failure for one user is logged and
// the scan moves on.
func (e *Engine) RecalculateAll(ctx context.Context, cfg config.AbuseSettings) (int, error) {
	dbc := dbctx.Background(ctx)
	since := e.clock().Add(-cfg.RecalcActivityWindow)

	userIDs, err := e.swipes.ActiveUserIDsSince(dbc, since)
	if err != nil {
		return 0, fmt.Errorf("list active users: %w", err)
	}

	recalculated := 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return recalculated, err
		}
		done, err := e.recalculateUser(dbc, cfg, userID)
		if err != nil {
			e.log.Error("recalculate user failed", "user_id", userID, "err", err)
			continue
		}
		if done {
			recalculated++
		}
	}

	e.log.Info("trust recalculation finished", "active_users", len(userIDs), "recalculated", recalculated)
	return recalculated, nil
}

func (e *Engine) recalculateUser(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64) (bool, error) {
	totals, err := e.swipes.TotalsByUser(dbc, userID)
	if err != nil {
		return false, fmt.Errorf("count swipes: %w", err)
	}
	if totals.Swipes < int64(cfg.MinRecentSwipesForRecalc) || totals.Swipes == 0 {
		return false, nil
	}

	s, err := e.GetOrCreateStats(dbc, userID)
	if err != nil {
		return false, err
	}

	now := e.clock()
	s.TotalSwipes = int(totals.Swipes)
	s.TotalLikes = int(totals.Likes)
	s.TotalPasses = int(totals.Swipes - totals.Likes)
	s.RightSwipeRatio = float64(totals.Likes) / float64(totals.Swipes)
	score := Score(*s, cfg)

	fields := map[string]any{
		"total_swipes":       s.TotalSwipes,
		"total_likes":        s.TotalLikes,
		"total_passes":       s.TotalPasses,
		"right_swipe_ratio":  s.RightSwipeRatio,
		"trust_score":        score,
		"last_calculated_at": now,
	}
	if score < cfg.FlagThreshold && s.FlaggedAt == nil {
		fields["flagged_at"] = now
		fields["flag_reason"] = fmt.Sprintf("trust score %.1f below threshold %.1f", score, cfg.FlagThreshold)
		e.log.Warn("user flagged", "user_id", userID, "trust_score", score)
	}

	if err := e.stats.Update(dbc, userID, fields); err != nil {
		return false, fmt.Errorf("save recalculated stats: %w", err)
	}
	return true, nil
}
