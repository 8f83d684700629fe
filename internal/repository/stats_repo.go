package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// InitialTrustScore is the score every user starts with.
const InitialTrustScore = 100.0

// StatsRepository provides data access methods for BehaviorStats rows.
type StatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new repository bound to the given DB connection.
func NewStatsRepository(database *gorm.DB) *StatsRepository {
	return &StatsRepository{db: database}
}

// Find returns the user's stats, or nil if none were created yet.
func (r *StatsRepository) Find(dbc dbctx.Context, userID uint64) (*db.BehaviorStats, error) {
	var s db.BehaviorStats
	err := dbc.Conn(r.db).Where("user_id = ?", userID).Take(&s).Error
	return notFound(&s, err)
}

// GetOrCreate returns the user's stats, lazily creating them at full trust.
// Concurrent creators converge on the single row guarded by the unique user_id.
func (r *StatsRepository) GetOrCreate(dbc dbctx.Context, userID uint64, now time.Time) (*db.BehaviorStats, error) {
	if s, err := r.Find(dbc, userID); err != nil || s != nil {
		return s, err
	}

	fresh := db.BehaviorStats{
		UserID:           userID,
		TrustScore:       InitialTrustScore,
		LastCalculatedAt: now,
	}
	err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&fresh).Error
	if err != nil {
		return nil, err
	}

	var s db.BehaviorStats
	if err := dbc.Conn(r.db).Where("user_id = ?", userID).Take(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes every column of s.
func (r *StatsRepository) Save(dbc dbctx.Context, s *db.BehaviorStats) error {
	return dbc.Conn(r.db).Save(s).Error
}

// SetCooldown arms the circuit breaker until the given time.
func (r *StatsRepository) SetCooldown(dbc dbctx.Context, userID uint64, until time.Time) error {
	return dbc.Conn(r.db).
		Model(&db.BehaviorStats{}).
		Where("user_id = ?", userID).
		Update("cooldown_until", until).Error
}

// ListFlagged returns flagged users with the lowest trust first.
func (r *StatsRepository) ListFlagged(dbc dbctx.Context, limit int) ([]db.BehaviorStats, error) {
	var rows []db.BehaviorStats
	err := dbc.Conn(r.db).
		Where("flagged_at IS NOT NULL").
		Order("trust_score ASC, user_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Update writes only the given columns, leaving concurrently maintained
// counters untouched.
func (r *StatsRepository) Update(dbc dbctx.Context, userID uint64, fields map[string]any) error {
	return dbc.Conn(r.db).
		Model(&db.BehaviorStats{}).
		Where("user_id = ?", userID).
		Updates(fields).Error
}
