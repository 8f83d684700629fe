package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/swipe-guard/internal/botdetect"
	"github.com/oggyb/swipe-guard/internal/cache"
	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/notify"
	"github.com/oggyb/swipe-guard/internal/ratelimit"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/trust"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	Abuse    *config.AbuseStore
	Ledger   *repository.Ledger
	Trust    *trust.Engine
	Limiter  *ratelimit.Limiter
	Bots     *botdetect.Detector
	Notifier notify.MatchNotifier
}

// New creates a new AppContext. rdb may be nil, in which case match
// notifications are only logged and behavior reports are not cached.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, abuse *config.AbuseStore, logger *slog.Logger) *AppContext {
	ledger := repository.NewLedger(db)
	a := &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Abuse:      abuse,
		Ledger:     ledger,
		Trust:      trust.New(ledger.Stats, ledger.Swipes, logger),
		Limiter:    ratelimit.New(ledger.Counters, logger),
		Bots:       botdetect.New(ledger.Swipes, logger),
	}

	if rdb != nil && cfg.Notify.Backend == "redis" {
		a.Notifier = notify.NewRedisNotifier(rdb, cfg.Notify.Channel)
	} else {
		a.Notifier = notify.NewLogNotifier(logger)
	}
	return a
}

// RetryPolicy is the outbox retry schedule from the notify settings.
func (a *AppContext) RetryPolicy() notify.RetryPolicy {
	return notify.RetryPolicy{
		Base:        a.Config.Notify.RetryBase,
		MaxAttempts: a.Config.Notify.MaxAttempts,
	}
}
