package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// SwipeRepository provides data access methods for the Swipe model.
type SwipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository creates a new repository bound to the given DB connection.
func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// Create inserts a new swipe. A second swipe for the same ordered pair, or a
// reused idempotency key, fails with gorm.ErrDuplicatedKey (see IsDuplicate).
func (r *SwipeRepository) Create(dbc dbctx.Context, s *db.Swipe) error {
	return dbc.Conn(r.db).Create(s).Error
}

// Find returns the swipe userID made on targetUserID, or nil.
func (r *SwipeRepository) Find(dbc dbctx.Context, userID, targetUserID uint64) (*db.Swipe, error) {
	var s db.Swipe
	err := dbc.Conn(r.db).
		Where("user_id = ? AND target_user_id = ?", userID, targetUserID).
		Take(&s).Error
	return notFound(&s, err)
}

// FindByIdempotencyKey returns the swipe recorded under key, or nil.
func (r *SwipeRepository) FindByIdempotencyKey(dbc dbctx.Context, key string) (*db.Swipe, error) {
	var s db.Swipe
	err := dbc.Conn(r.db).
		Where("idempotency_key = ?", key).
		Take(&s).Error
	return notFound(&s, err)
}

// FindLike returns userID's like on targetUserID, or nil when there is none.
//
// Inside a transaction on dialects with row locks the read is a locking read,
// so two concurrent mutual likes cannot both miss each other's committed row.
func (r *SwipeRepository) FindLike(dbc dbctx.Context, userID, targetUserID uint64) (*db.Swipe, error) {
	q := dbc.Conn(r.db)
	if dbc.InTx() && q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	}
	var s db.Swipe
	err := q.
		Where("user_id = ? AND target_user_id = ? AND is_like = ?", userID, targetUserID, true).
		Take(&s).Error
	return notFound(&s, err)
}

// SetMatch links a swipe to the match it completed.
func (r *SwipeRepository) SetMatch(dbc dbctx.Context, swipeID, matchID uint64) error {
	return dbc.Conn(r.db).
		Model(&db.Swipe{}).
		Where("id = ?", swipeID).
		Update("match_id", matchID).Error
}

// RecentByUser returns up to limit of the user's newest swipes, newest first.
func (r *SwipeRepository) RecentByUser(dbc dbctx.Context, userID uint64, limit int) ([]db.Swipe, error) {
	var swipes []db.Swipe
	err := dbc.Conn(r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&swipes).Error
	return swipes, err
}

// ActiveUserIDsSince lists every user with at least one swipe at or after since.
func (r *SwipeRepository) ActiveUserIDsSince(dbc dbctx.Context, since time.Time) ([]uint64, error) {
	var ids []uint64
	err := dbc.Conn(r.db).
		Model(&db.Swipe{}).
		Where("created_at >= ?", since).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// Totals holds lifetime swipe counts of a user.
type Totals struct {
	Swipes int64
	Likes  int64
}

// TotalsByUser counts the user's entire swipe history.
func (r *SwipeRepository) TotalsByUser(dbc dbctx.Context, userID uint64) (Totals, error) {
	var t Totals
	err := dbc.Conn(r.db).
		Model(&db.Swipe{}).
		Select("COUNT(*) AS swipes, COALESCE(SUM(CASE WHEN is_like THEN 1 ELSE 0 END), 0) AS likes").
		Where("user_id = ?", userID).
		Scan(&t).Error
	return t, err
}
