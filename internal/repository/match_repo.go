package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
	"github.com/oggyb/swipe-guard/internal/utils/pagination"
)

// MatchRepository provides data access methods for the Match model.
// All pair arguments are canonicalized, so callers may pass users in any order.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// CanonicalPair orders two user ids ascending.
func CanonicalPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// FindByPair returns the pair's match in any state, or nil.
func (r *MatchRepository) FindByPair(dbc dbctx.Context, a, b uint64) (*db.Match, error) {
	u1, u2 := CanonicalPair(a, b)
	var m db.Match
	err := dbc.Conn(r.db).
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		Take(&m).Error
	return notFound(&m, err)
}

// FindActiveByPair returns the pair's active match, or nil.
func (r *MatchRepository) FindActiveByPair(dbc dbctx.Context, a, b uint64) (*db.Match, error) {
	u1, u2 := CanonicalPair(a, b)
	var m db.Match
	err := dbc.Conn(r.db).
		Where("user1_id = ? AND user2_id = ? AND is_active = ?", u1, u2, true).
		Take(&m).Error
	return notFound(&m, err)
}

// Create inserts an active match for the canonical pair. If the pair already
// has a row the insert fails with a uniqueness violation (see IsDuplicate).
func (r *MatchRepository) Create(dbc dbctx.Context, a, b uint64) (*db.Match, error) {
	u1, u2 := CanonicalPair(a, b)
	m := &db.Match{User1ID: u1, User2ID: u2, IsActive: true}
	if err := dbc.Conn(r.db).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// Deactivate ends an active match. It reports false when no active match
// existed, including when a concurrent call deactivated it first.
func (r *MatchRepository) Deactivate(dbc dbctx.Context, matchID, byUserID uint64, at time.Time) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&db.Match{}).
		Where("id = ? AND is_active = ?", matchID, true).
		Updates(map[string]any{
			"is_active":            false,
			"unmatched_at":         at,
			"unmatched_by_user_id": byUserID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListActive returns the user's active matches, newest first.
//
// Behavior:
//   - Matches where the user is either side are included.
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
func (r *MatchRepository) ListActive(
	dbc dbctx.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	var matches []db.Match

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := dbc.Conn(r.db).
		Where("(user1_id = ? OR user2_id = ?) AND is_active = ?", userID, userID, true).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := cursor.CreatedAt()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&matches).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(matches) > limit {
		last := matches[limit-1]
		token, _ := pagination.Encode(pagination.After(last.ID, last.CreatedAt))
		nextToken = &token
		matches = matches[:limit]
	}

	return matches, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
