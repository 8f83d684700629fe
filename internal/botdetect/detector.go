// Package botdetect classifies users as likely automated from the shape of
// their recent swipe history.
package botdetect

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

const (
	// SignalInsufficientData is reported when the sample is too small to judge.
	SignalInsufficientData = "insufficient data"

	maxIntervalSeconds   = 300.0
	minIntervals         = 5
	regularitySignalAt   = 0.85
	hourCoverageFloor    = 0.8
	hourCoverageSignalAt = 0.9
	monotonicScore       = 0.9
	singleDeviceScore    = 0.3
	singleDeviceMinRows  = 50
	noDeviceScore        = 0.5
	noDeviceMinRows      = 20
)

// Result is the verdict of the ensemble.
type Result struct {
	UserID         uint64   `json:"user_id"`
	BotProbability float64  `json:"bot_probability"`
	Signals        []string `json:"signals"`
	ShouldFlag     bool     `json:"should_flag"`
	SampleSize     int      `json:"sample_size"`
}

// Detector is stateless apart from its read access to the swipe history.
type Detector struct {
	swipes *repository.SwipeRepository
	log    *slog.Logger
}

func New(swipes *repository.SwipeRepository, log *slog.Logger) *Detector {
	return &Detector{swipes: swipes, log: log.With("component", "botdetect")}
}

// Analyze scores the user's most recent cfg.BotSampleSize swipes.
func (d *Detector) Analyze(ctx context.Context, cfg config.AbuseSettings, userID uint64) (Result, error) {
	sample, err := d.swipes.RecentByUser(dbctx.Background(ctx), userID, cfg.BotSampleSize)
	if err != nil {
		return Result{}, fmt.Errorf("load recent swipes: %w", err)
	}
	res := Evaluate(sample, cfg)
	res.UserID = userID
	if res.ShouldFlag {
		d.log.Warn("likely bot", "user_id", userID, "probability", res.BotProbability, "signals", res.Signals)
	}
	return res, nil
}

// Evaluate runs the ensemble over swipes ordered newest first. The four
// contributions are averaged with equal weight.
func Evaluate(swipes []db.Swipe, cfg config.AbuseSettings) Result {
	if len(swipes) < cfg.BotMinSwipesForAnalysis {
		return Result{Signals: []string{SignalInsufficientData}, SampleSize: len(swipes)}
	}

	var signals []string
	collect := func(score float64, signal string) float64 {
		if signal != "" {
			signals = append(signals, signal)
		}
		return score
	}

	total := collect(clockRegularity(swipes)) +
		collect(hourCoverage(swipes)) +
		collect(monotonicPattern(swipes)) +
		collect(deviceFingerprint(swipes))

	p := clamp01(total / 4)
	if signals == nil {
		signals = []string{}
	}
	return Result{
		BotProbability: p,
		Signals:        signals,
		ShouldFlag:     p > cfg.BotFlagProbability,
		SampleSize:     len(swipes),
	}
}

// clockRegularity scores how machine-like the gaps between swipes are.
func clockRegularity(swipes []db.Swipe) (float64, string) {
	var intervals []float64
	for i := 0; i+1 < len(swipes); i++ {
		gap := swipes[i].CreatedAt.Sub(swipes[i+1].CreatedAt).Seconds()
		if gap > 0 && gap < maxIntervalSeconds {
			intervals = append(intervals, gap)
		}
	}
	if len(intervals) < minIntervals {
		return 0, ""
	}

	var sum float64
	for _, v := range intervals {
		sum += v
	}
	mean := sum / float64(len(intervals))

	var sq float64
	for _, v := range intervals {
		sq += (v - mean) * (v - mean)
	}
	cv := math.Sqrt(sq/float64(len(intervals))) / mean

	score := clamp01(1 - 2*cv)
	if score > regularitySignalAt {
		return score, fmt.Sprintf("highly regular swipe timing (cv %.2f)", cv)
	}
	return score, ""
}

// hourCoverage scores round-the-clock activity.
func hourCoverage(swipes []db.Swipe) (float64, string) {
	var hours [24]bool
	distinct := 0
	for _, s := range swipes {
		h := s.CreatedAt.UTC().Hour()
		if !hours[h] {
			hours[h] = true
			distinct++
		}
	}
	fraction := float64(distinct) / 24
	if fraction <= hourCoverageFloor {
		return 0, ""
	}
	if fraction > hourCoverageSignalAt {
		return fraction, fmt.Sprintf("active %d of 24 hours", distinct)
	}
	return fraction, ""
}

// monotonicPattern scores liking (or passing on) nearly everyone.
func monotonicPattern(swipes []db.Swipe) (float64, string) {
	likes := 0
	for _, s := range swipes {
		if s.IsLike {
			likes++
		}
	}
	ratio := float64(likes) / float64(len(swipes))
	if ratio > 0.95 || ratio < 0.05 {
		return monotonicScore, fmt.Sprintf("monotonic swipe pattern (like ratio %.2f)", ratio)
	}
	return 0, ""
}

func deviceFingerprint(swipes []db.Swipe) (float64, string) {
	devices := map[string]struct{}{}
	for _, s := range swipes {
		if s.DeviceInfo != nil && *s.DeviceInfo != "" {
			devices[*s.DeviceInfo] = struct{}{}
		}
	}
	switch {
	case len(devices) == 1 && len(swipes) > singleDeviceMinRows:
		return singleDeviceScore, "single device fingerprint"
	case len(devices) == 0 && len(swipes) > noDeviceMinRows:
		return noDeviceScore, "no device fingerprint"
	}
	return 0, ""
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
