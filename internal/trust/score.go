package trust

import (
	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
)

// Score computes the trust score of s. Each signal above its threshold costs
// min(MaxPenaltyPerSignal, excess*weight); the result stays within [0,100].
func Score(s db.BehaviorStats, cfg config.AbuseSettings) float64 {
	score := 100.0
	score -= penalty(s.RightSwipeRatio, cfg.SuspiciousRatio, cfg.RatioPenaltyWeight, cfg.MaxPenaltyPerSignal)
	score -= penalty(s.AvgSwipeVelocity, cfg.SuspiciousVelocity, cfg.VelocityPenaltyWeight, cfg.MaxPenaltyPerSignal)
	score -= penalty(float64(s.PeakSwipeStreak), float64(cfg.SuspiciousStreakLength), cfg.StreakPenaltyWeight, cfg.MaxPenaltyPerSignal)
	return clamp(score, 0, 100)
}

func penalty(value, threshold, weight, ceiling float64) float64 {
	if value <= threshold {
		return 0
	}
	return min((value-threshold)*weight, ceiling)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
