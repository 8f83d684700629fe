package trust

import (
	"time"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// rapidShareWarning is the share of rapid swipes that earns a warning.
const rapidShareWarning = 0.1

// Report is the user-facing behavior summary.
type Report struct {
	UserID         uint64     `json:"user_id"`
	TrustScore     float64    `json:"trust_score"`
	Ratio          float64    `json:"right_swipe_ratio"`
	TotalSwipes    int        `json:"total_swipes"`
	AvgVelocity    float64    `json:"avg_swipe_velocity"`
	PeakStreak     int        `json:"peak_swipe_streak"`
	CurrentStreak  int        `json:"current_consecutive_likes"`
	RapidCount     int        `json:"rapid_swipe_count"`
	DaysActive     int        `json:"days_active"`
	IsFlagged      bool       `json:"is_flagged"`
	FlagReason     *string    `json:"flag_reason,omitempty"`
	CooldownUntil  *time.Time `json:"cooldown_until,omitempty"`
	Warnings       []string   `json:"warnings"`
	LastCalculated time.Time  `json:"last_calculated_at"`
}

// Report builds the behavior report of the user, creating stats on first query.
func (e *Engine) Report(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64) (Report, error) {
	s, err := e.GetOrCreateStats(dbc, userID)
	if err != nil {
		return Report{}, err
	}
	return BuildReport(*s, cfg, e.clock()), nil
}

// BuildReport renders s as a Report evaluated at now.
func BuildReport(s db.BehaviorStats, cfg config.AbuseSettings, now time.Time) Report {
	r := Report{
		UserID:         s.UserID,
		TrustScore:     s.TrustScore,
		Ratio:          s.RightSwipeRatio,
		TotalSwipes:    s.TotalSwipes,
		AvgVelocity:    s.AvgSwipeVelocity,
		PeakStreak:     s.PeakSwipeStreak,
		CurrentStreak:  s.CurrentConsecutiveLikes,
		RapidCount:     s.RapidSwipeCount,
		DaysActive:     s.DaysActive,
		IsFlagged:      s.FlaggedAt != nil,
		FlagReason:     s.FlagReason,
		LastCalculated: s.LastCalculatedAt,
		Warnings:       []string{},
	}
	if s.CooldownUntil != nil && s.CooldownUntil.After(now) {
		r.CooldownUntil = s.CooldownUntil
		r.Warnings = append(r.Warnings, "circuit breaker active")
	}
	if s.RightSwipeRatio > cfg.SuspiciousRatio {
		r.Warnings = append(r.Warnings, "high right-swipe ratio")
	}
	if s.AvgSwipeVelocity > cfg.SuspiciousVelocity {
		r.Warnings = append(r.Warnings, "high swipe velocity")
	}
	if s.PeakSwipeStreak > cfg.SuspiciousStreakLength {
		r.Warnings = append(r.Warnings, "long like streak")
	}
	if s.TotalSwipes > 0 && float64(s.RapidSwipeCount)/float64(s.TotalSwipes) > rapidShareWarning {
		r.Warnings = append(r.Warnings, "frequent rapid swipes")
	}
	if s.TrustScore < cfg.FlagThreshold {
		r.Warnings = append(r.Warnings, "low trust score")
	}
	return r
}
