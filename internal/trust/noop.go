package trust

import (
	"time"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

// Noop disables behavior analysis: nobody is ever in cooldown or suspicious,
// and reports show full trust.
type Noop struct{}

func (Noop) CheckCooldown(dbctx.Context, uint64) (*time.Time, bool, error) { return nil, false, nil }

func (Noop) IsSwipeSuspicious(dbctx.Context, config.AbuseSettings, uint64, bool) (Suspicion, error) {
	return Suspicion{}, nil
}

func (Noop) UpdateStatsOnSwipe(dbctx.Context, config.AbuseSettings, uint64, bool) error { return nil }

func (Noop) Report(_ dbctx.Context, cfg config.AbuseSettings, userID uint64) (Report, error) {
	now := time.Now().UTC()
	s := db.BehaviorStats{UserID: userID, TrustScore: repository.InitialTrustScore, LastCalculatedAt: now}
	return BuildReport(s, cfg, now), nil
}
