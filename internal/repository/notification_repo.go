package repository

import (
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

const maxErrorLen = 512

// NotificationRepository is the match-notification outbox.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new repository bound to the given DB connection.
func NewNotificationRepository(database *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

// Enqueue records that m must be announced. Call it in the transaction that
// created m so the outbox row commits with the match.
func (r *NotificationRepository) Enqueue(dbc dbctx.Context, m *db.Match) (*db.MatchNotification, error) {
	n := &db.MatchNotification{
		MatchID: m.ID,
		User1ID: m.User1ID,
		User2ID: m.User2ID,
		Status:  db.NotificationPending,
	}
	if err := dbc.Conn(r.db).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// Get returns an outbox row by id, or nil.
func (r *NotificationRepository) Get(dbc dbctx.Context, id uint64) (*db.MatchNotification, error) {
	var n db.MatchNotification
	err := dbc.Conn(r.db).Where("id = ?", id).Take(&n).Error
	return notFound(&n, err)
}

// MarkSent records a successful delivery.
func (r *NotificationRepository) MarkSent(dbc dbctx.Context, id uint64, at time.Time) error {
	return dbc.Conn(r.db).
		Model(&db.MatchNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          db.NotificationSent,
			"attempts":        gorm.Expr("attempts + 1"),
			"sent_at":         at,
			"next_attempt_at": nil,
		}).Error
}

// MarkFailed records a failed delivery. A nil retryAt means no more retries.
func (r *NotificationRepository) MarkFailed(dbc dbctx.Context, id uint64, cause error, retryAt *time.Time) error {
	msg := truncateUTF8(cause.Error(), maxErrorLen)
	status := db.NotificationFailed
	if retryAt == nil {
		status = db.NotificationDead
	}
	return dbc.Conn(r.db).
		Model(&db.MatchNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      msg,
			"next_attempt_at": retryAt,
		}).Error
}

// Due returns rows awaiting delivery: failed rows whose retry time has come,
// and pending rows older than staleBefore (their inline delivery never finished).
func (r *NotificationRepository) Due(dbc dbctx.Context, now, staleBefore time.Time, limit int) ([]db.MatchNotification, error) {
	var rows []db.MatchNotification
	err := dbc.Conn(r.db).
		Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND created_at <= ?)",
			db.NotificationFailed, now, db.NotificationPending, staleBefore).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
