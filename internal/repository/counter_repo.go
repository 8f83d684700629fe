package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// DayKey formats t as the UTC calendar day used to key daily counters.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// CounterRepository provides data access methods for DailyLimitCounter rows.
type CounterRepository struct {
	db *gorm.DB
}

// NewCounterRepository creates a new repository bound to the given DB connection.
func NewCounterRepository(database *gorm.DB) *CounterRepository {
	return &CounterRepository{db: database}
}

// Get returns the user's counter for day, or nil when the user has not swiped that day.
func (r *CounterRepository) Get(dbc dbctx.Context, userID uint64, day string) (*db.DailyLimitCounter, error) {
	var c db.DailyLimitCounter
	err := dbc.Conn(r.db).
		Where("user_id = ? AND day = ?", userID, day).
		Take(&c).Error
	return notFound(&c, err)
}

// Increment adds one swipe (and one like when isLike) to the user's counter for
// the day of at, creating the row on first use.
//
// Behavior:
//   - (user_id, day) is unique, so the upsert is a single atomic statement.
//   - last_swipe_at is always refreshed.
func (r *CounterRepository) Increment(dbc dbctx.Context, userID uint64, at time.Time, isLike bool) error {
	likeDelta := 0
	if isLike {
		likeDelta = 1
	}
	row := db.DailyLimitCounter{
		UserID:      userID,
		Day:         DayKey(at),
		SwipeCount:  1,
		LikeCount:   likeDelta,
		LastSwipeAt: at,
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"swipe_count":   gorm.Expr("swipe_count + 1"),
				"like_count":    gorm.Expr("like_count + ?", likeDelta),
				"last_swipe_at": at,
			}),
		}).
		Create(&row).Error
}
