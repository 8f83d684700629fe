package ratelimit

import (
	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// Noop allows every swipe. It stands in when quotas are disabled.
type Noop struct{}

func (Noop) CheckDailyLimit(_ dbctx.Context, cfg config.AbuseSettings, _ uint64, isLike bool) (Decision, error) {
	d := decide(cfg, 0, 0, isLike)
	d.Allowed = true
	return d, nil
}

func (Noop) IncrementSwipeCount(dbctx.Context, uint64, bool) error { return nil }
