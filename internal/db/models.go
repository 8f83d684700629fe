package db

import (
	"time"
)

// Swipe is one user's like/pass on another user.
//
// Indexes:
//   - ux_swipes_pair(user_id, target_user_id)
//     At most one swipe per ordered pair; duplicate inserts fail at the storage layer.
//   - ux_swipes_idempotency(idempotency_key)
//     NULL keys are not compared, so only supplied keys must be unique.
//   - idx_swipes_user_created(user_id, created_at)
//     Recent-window scans for the bot detector.
//   - idx_swipes_target_like(target_user_id, user_id, is_like)
//     Reverse-like lookup during match detection.
//   - idx_swipes_created(created_at)
//     "Active in the last 24h" scan of the recalculator.
type Swipe struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	UserID         uint64    `gorm:"not null;uniqueIndex:ux_swipes_pair,priority:1;index:idx_swipes_user_created,priority:1;index:idx_swipes_target_like,priority:2"`
	TargetUserID   uint64    `gorm:"not null;uniqueIndex:ux_swipes_pair,priority:2;index:idx_swipes_target_like,priority:1"`
	IsLike         bool      `gorm:"not null;index:idx_swipes_target_like,priority:3"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_swipes_user_created,priority:2;index:idx_swipes_created"`
	DeviceInfo     *string   `gorm:"size:255"`
	Location       *string   `gorm:"size:64"`
	IdempotencyKey *string   `gorm:"size:128;uniqueIndex:ux_swipes_idempotency"`
	MatchID        *uint64
}

// Match is a mutual like between two users, canonically ordered so that
// User1ID < User2ID. A pair owns at most one row for its whole lifetime.
type Match struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement"`
	User1ID           uint64     `gorm:"not null;uniqueIndex:ux_matches_pair,priority:1"`
	User2ID           uint64     `gorm:"not null;uniqueIndex:ux_matches_pair,priority:2;check:chk_matches_order,user1_id < user2_id"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index"`
	IsActive          bool       `gorm:"not null;default:true;index"`
	UnmatchedAt       *time.Time
	UnmatchedByUserID *uint64
}

// DailyLimitCounter counts a user's swipes for one UTC day. Day is "YYYY-MM-DD".
type DailyLimitCounter struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	UserID      uint64    `gorm:"not null;uniqueIndex:ux_daily_counter_user_day,priority:1"`
	Day         string    `gorm:"column:day;size:10;not null;uniqueIndex:ux_daily_counter_user_day,priority:2"`
	SwipeCount  int       `gorm:"not null;default:0"`
	LikeCount   int       `gorm:"not null;default:0"`
	LastSwipeAt time.Time `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// BehaviorStats is the incrementally maintained behavioral profile of a user.
type BehaviorStats struct {
	ID                      uint64  `gorm:"primaryKey;autoIncrement"`
	UserID                  uint64  `gorm:"not null;uniqueIndex"`
	TotalSwipes             int     `gorm:"not null;default:0"`
	TotalLikes              int     `gorm:"not null;default:0"`
	TotalPasses             int     `gorm:"not null;default:0"`
	RightSwipeRatio         float64 `gorm:"not null;default:0"`
	AvgSwipeVelocity        float64 `gorm:"not null;default:0"`
	PeakSwipeStreak         int     `gorm:"not null;default:0"`
	CurrentConsecutiveLikes int     `gorm:"not null;default:0"`
	RapidSwipeCount         int     `gorm:"not null;default:0"`
	DaysActive              int     `gorm:"not null;default:0"`
	TrustScore              float64 `gorm:"not null;default:100;index"`
	LastCalculatedAt        time.Time
	FlaggedAt               *time.Time
	FlagReason              *string `gorm:"size:255"`
	LastSwipeAt             *time.Time
	CooldownUntil           *time.Time
	CreatedAt               time.Time `gorm:"autoCreateTime"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime"`
}

// TableName keeps the table name singular-stable across gorm naming strategies.
func (BehaviorStats) TableName() string { return "behavior_stats" }

// Notification outbox states.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationDead    = "dead"
)

// MatchNotification is the outbox row written in the same transaction as its
// Match. It records whether the external notifier has been told about the match.
type MatchNotification struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement"`
	MatchID       uint64     `gorm:"not null;uniqueIndex"`
	User1ID       uint64     `gorm:"not null"`
	User2ID       uint64     `gorm:"not null"`
	Status        string     `gorm:"size:16;not null;index:idx_match_notifications_due,priority:1"`
	Attempts      int        `gorm:"not null;default:0"`
	LastError     *string    `gorm:"size:512"`
	NextAttemptAt *time.Time `gorm:"index:idx_match_notifications_due,priority:2"`
	SentAt        *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// Models lists every table owned by this service, in migration order.
func Models() []any {
	return []any{&Swipe{}, &Match{}, &DailyLimitCounter{}, &BehaviorStats{}, &MatchNotification{}}
}
