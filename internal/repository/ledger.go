package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// Ledger groups the repositories of the swipe pipeline over one DB handle and
// owns transaction boundaries.
type Ledger struct {
	db *gorm.DB

	Swipes        *SwipeRepository
	Matches       *MatchRepository
	Counters      *CounterRepository
	Stats         *StatsRepository
	Notifications *NotificationRepository
}

// NewLedger creates a ledger bound to the given DB connection.
func NewLedger(database *gorm.DB) *Ledger {
	return &Ledger{
		db:            database,
		Swipes:        NewSwipeRepository(database),
		Matches:       NewMatchRepository(database),
		Counters:      NewCounterRepository(database),
		Stats:         NewStatsRepository(database),
		Notifications: NewNotificationRepository(database),
	}
}

// DB exposes the underlying handle for tooling (seeding, admin commands).
func (l *Ledger) DB() *gorm.DB { return l.db }

// Transaction runs fn inside a DB transaction; fn's error rolls everything back.
func (l *Ledger) Transaction(ctx context.Context, fn func(tx dbctx.Context) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// Savepoint runs fn in a nested transaction. When dbc already carries a
// transaction, an error from fn only rolls back to the savepoint and the outer
// transaction stays usable.
func (l *Ledger) Savepoint(dbc dbctx.Context, fn func(sp dbctx.Context) error) error {
	return dbc.Conn(l.db).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}

// IsDuplicate reports whether err is a uniqueness violation. gorm translates
// most drivers' errors into gorm.ErrDuplicatedKey; the message checks cover
// drivers or wrappers that slip through untranslated.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}

// notFound maps gorm.ErrRecordNotFound to (nil, nil) for optional lookups.
func notFound[T any](row *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}
