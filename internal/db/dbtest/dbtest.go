// Package dbtest opens isolated in-memory databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/oggyb/swipe-guard/internal/db"
)

var seq atomic.Int64

// Open spins up a fresh in-memory SQLite DB with the full schema applied.
// Each call gets its own database, closed when the test ends.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	database, err := db.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		Logger:  gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(tb, err)

	sqlDB, err := database.DB()
	require.NoError(tb, err)
	// one connection: transactions and plain queries never contend for sqlite locks
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	return database
}
