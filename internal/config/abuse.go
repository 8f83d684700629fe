package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// AbuseSettings holds every runtime-tunable threshold of the swipe pipeline.
// Values are immutable once published through an AbuseStore; callers take one
// snapshot per operation and pass it down.
type AbuseSettings struct {
	DailySwipeLimit int `yaml:"daily_swipe_limit"`
	DailyLikeLimit  int `yaml:"daily_like_limit"`

	SuspiciousRatio        float64 `yaml:"suspicious_ratio"`
	SuspiciousVelocity     float64 `yaml:"suspicious_velocity"`
	SuspiciousStreakLength int     `yaml:"suspicious_streak_length"`
	RatioPenaltyWeight     float64 `yaml:"ratio_penalty_weight"`
	VelocityPenaltyWeight  float64 `yaml:"velocity_penalty_weight"`
	StreakPenaltyWeight    float64 `yaml:"streak_penalty_weight"`
	MaxPenaltyPerSignal    float64 `yaml:"max_penalty_per_signal"`

	ConsecutiveLikeLimit       int     `yaml:"consecutive_like_limit"`
	CooldownMinutes            int     `yaml:"cooldown_minutes"`
	RapidSwipeThresholdSeconds float64 `yaml:"rapid_swipe_threshold_seconds"`

	RecalcEveryNSwipes            int           `yaml:"recalc_every_n_swipes"`
	BackgroundRecalcIntervalHours float64       `yaml:"background_recalc_interval_hours"`
	BackgroundRecalcStartupDelay  time.Duration `yaml:"background_recalc_startup_delay"`
	RecalcActivityWindow          time.Duration `yaml:"recalc_activity_window"`
	MinRecentSwipesForRecalc      int           `yaml:"min_recent_swipes_for_recalc"`
	FlagThreshold                 float64       `yaml:"flag_threshold"`

	BotMinSwipesForAnalysis int     `yaml:"bot_min_swipes_for_analysis"`
	BotSampleSize           int     `yaml:"bot_sample_size"`
	BotFlagProbability      float64 `yaml:"bot_flag_probability"`

	BehaviorReportTTL time.Duration `yaml:"behavior_report_ttl"`
}

// DefaultAbuse returns the production defaults.
func DefaultAbuse() AbuseSettings {
	return AbuseSettings{
		DailySwipeLimit: 100,
		DailyLikeLimit:  50,

		SuspiciousRatio:        0.7,
		SuspiciousVelocity:     10,
		SuspiciousStreakLength: 20,
		RatioPenaltyWeight:     100,
		VelocityPenaltyWeight:  3,
		StreakPenaltyWeight:    1.5,
		MaxPenaltyPerSignal:    30,

		ConsecutiveLikeLimit:       30,
		CooldownMinutes:            15,
		RapidSwipeThresholdSeconds: 3,

		RecalcEveryNSwipes:            10,
		BackgroundRecalcIntervalHours: 6,
		BackgroundRecalcStartupDelay:  2 * time.Minute,
		RecalcActivityWindow:          24 * time.Hour,
		MinRecentSwipesForRecalc:      10,
		FlagThreshold:                 30,

		BotMinSwipesForAnalysis: 20,
		BotSampleSize:           200,
		BotFlagProbability:      0.6,

		BehaviorReportTTL: 30 * time.Second,
	}
}

func (s AbuseSettings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

func (s AbuseSettings) RapidThreshold() time.Duration {
	return time.Duration(s.RapidSwipeThresholdSeconds * float64(time.Second))
}

func (s AbuseSettings) RecalcInterval() time.Duration {
	return time.Duration(s.BackgroundRecalcIntervalHours * float64(time.Hour))
}

// Validate rejects settings that would disable or invert a safety check.
func (s AbuseSettings) Validate() error {
	var errs []error
	positive := map[string]float64{
		"daily_swipe_limit":                float64(s.DailySwipeLimit),
		"daily_like_limit":                 float64(s.DailyLikeLimit),
		"consecutive_like_limit":           float64(s.ConsecutiveLikeLimit),
		"cooldown_minutes":                 float64(s.CooldownMinutes),
		"recalc_every_n_swipes":            float64(s.RecalcEveryNSwipes),
		"background_recalc_interval_hours": s.BackgroundRecalcIntervalHours,
		"bot_sample_size":                  float64(s.BotSampleSize),
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	if s.SuspiciousRatio < 0 || s.SuspiciousRatio > 1 {
		errs = append(errs, fmt.Errorf("suspicious_ratio must be within [0,1], got %v", s.SuspiciousRatio))
	}
	if s.FlagThreshold < 0 || s.FlagThreshold > 100 {
		errs = append(errs, fmt.Errorf("flag_threshold must be within [0,100], got %v", s.FlagThreshold))
	}
	if s.BotFlagProbability < 0 || s.BotFlagProbability > 1 {
		errs = append(errs, fmt.Errorf("bot_flag_probability must be within [0,1], got %v", s.BotFlagProbability))
	}
	return errors.Join(errs...)
}

// LoadAbuse builds settings from defaults, then the optional YAML file, then
// ABUSE_* environment overrides.
func LoadAbuse(path string) (AbuseSettings, error) {
	s := DefaultAbuse()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return AbuseSettings{}, fmt.Errorf("read abuse settings %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return AbuseSettings{}, fmt.Errorf("parse abuse settings %s: %w", path, err)
		}
	}
	s.applyEnv()
	if err := s.Validate(); err != nil {
		return AbuseSettings{}, fmt.Errorf("invalid abuse settings: %w", err)
	}
	return s, nil
}

func (s *AbuseSettings) applyEnv() {
	s.DailySwipeLimit = getEnvInt("ABUSE_DAILY_SWIPE_LIMIT", s.DailySwipeLimit)
	s.DailyLikeLimit = getEnvInt("ABUSE_DAILY_LIKE_LIMIT", s.DailyLikeLimit)
	s.SuspiciousRatio = getEnvFloat("ABUSE_SUSPICIOUS_RATIO", s.SuspiciousRatio)
	s.SuspiciousVelocity = getEnvFloat("ABUSE_SUSPICIOUS_VELOCITY", s.SuspiciousVelocity)
	s.SuspiciousStreakLength = getEnvInt("ABUSE_SUSPICIOUS_STREAK_LENGTH", s.SuspiciousStreakLength)
	s.ConsecutiveLikeLimit = getEnvInt("ABUSE_CONSECUTIVE_LIKE_LIMIT", s.ConsecutiveLikeLimit)
	s.CooldownMinutes = getEnvInt("ABUSE_COOLDOWN_MINUTES", s.CooldownMinutes)
	s.RapidSwipeThresholdSeconds = getEnvFloat("ABUSE_RAPID_SWIPE_THRESHOLD_SECONDS", s.RapidSwipeThresholdSeconds)
	s.RecalcEveryNSwipes = getEnvInt("ABUSE_RECALC_EVERY_N_SWIPES", s.RecalcEveryNSwipes)
	s.BackgroundRecalcIntervalHours = getEnvFloat("ABUSE_BACKGROUND_RECALC_INTERVAL_HOURS", s.BackgroundRecalcIntervalHours)
	s.MinRecentSwipesForRecalc = getEnvInt("ABUSE_MIN_RECENT_SWIPES_FOR_RECALC", s.MinRecentSwipesForRecalc)
	s.FlagThreshold = getEnvFloat("ABUSE_FLAG_THRESHOLD", s.FlagThreshold)
}

// AbuseStore publishes the current AbuseSettings. Reload swaps the whole value,
// so a snapshot taken by Current never changes underneath its holder.
type AbuseStore struct {
	path    string
	mu      sync.Mutex
	current atomic.Pointer[AbuseSettings]
}

func NewAbuseStore(path string) (*AbuseStore, error) {
	s, err := LoadAbuse(path)
	if err != nil {
		return nil, err
	}
	st := &AbuseStore{path: path}
	st.current.Store(&s)
	return st, nil
}

// StaticAbuse wraps fixed settings, mainly for tests and tools.
func StaticAbuse(s AbuseSettings) *AbuseStore {
	st := &AbuseStore{}
	st.current.Store(&s)
	return st
}

func (st *AbuseStore) Current() AbuseSettings {
	return *st.current.Load()
}

// Reload re-reads the backing file. On error the previous settings stay active.
func (st *AbuseStore) Reload() (AbuseSettings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, err := LoadAbuse(st.path)
	if err != nil {
		return st.Current(), err
	}
	st.current.Store(&s)
	return s, nil
}
