// Package swipe implements the swipe pipeline: recording swipes behind the
// abuse checks, forming matches, unmatching, and the behavior and bot reports.
package swipe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/swipe-guard/internal/botdetect"
	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	svcErr "github.com/oggyb/swipe-guard/internal/errors"
	"github.com/oggyb/swipe-guard/internal/logger"
	"github.com/oggyb/swipe-guard/internal/notify"
	"github.com/oggyb/swipe-guard/internal/ratelimit"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/trust"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
	"github.com/oggyb/swipe-guard/internal/utils/pagination"
)

const (
	MessageMatch     = "It's a match!"
	MessageRecorded  = "Swipe recorded"
	MessageUnmatched = "Unmatched"

	defaultPageSize = 20
	maxPageSize     = 100
)

// RateLimiter enforces daily quotas.
type RateLimiter interface {
	CheckDailyLimit(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64, isLike bool) (ratelimit.Decision, error)
	IncrementSwipeCount(dbc dbctx.Context, userID uint64, isLike bool) error
}

// BehaviorAnalyzer maintains behavior stats and the circuit breaker.
type BehaviorAnalyzer interface {
	CheckCooldown(dbc dbctx.Context, userID uint64) (*time.Time, bool, error)
	IsSwipeSuspicious(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64, isLike bool) (trust.Suspicion, error)
	UpdateStatsOnSwipe(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64, isLike bool) error
	Report(dbc dbctx.Context, cfg config.AbuseSettings, userID uint64) (trust.Report, error)
}

// BotAnalyzer classifies a user's recent history.
type BotAnalyzer interface {
	Analyze(ctx context.Context, cfg config.AbuseSettings, userID uint64) (botdetect.Result, error)
}

// ReportCache caches behavior reports.
type ReportCache interface {
	KeyForBehaviorReport(userID uint64) string
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// SwipeRequest is one like or pass. Empty optional fields are treated as absent.
type SwipeRequest struct {
	UserID         uint64
	TargetUserID   uint64
	IsLike         bool
	IdempotencyKey string
	DeviceInfo     string
	Location       string
}

// SwipeResult is the outcome of RecordSwipe.
type SwipeResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	IsMutualMatch bool   `json:"is_mutual_match"`
	MatchID       uint64 `json:"match_id,omitempty"`
	SwipeID       uint64 `json:"swipe_id"`
	// Replayed is set when an earlier swipe with the same idempotency key answered.
	Replayed bool `json:"replayed,omitempty"`
	// NotificationPending is set when the match is committed but the notifier
	// has not acknowledged it yet; the outbox dispatcher will retry.
	NotificationPending bool `json:"notification_pending,omitempty"`
}

// Result is the outcome of operations without a payload.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Processor is the SwipeProcessor. It owns the transaction boundary of every
// recorded swipe.
type Processor struct {
	ledger   *repository.Ledger
	settings *config.AbuseStore
	limiter  RateLimiter
	behavior BehaviorAnalyzer
	bots     BotAnalyzer
	notifier notify.MatchNotifier
	reports  ReportCache
	retry    notify.RetryPolicy
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Processor)

func WithRateLimiter(l RateLimiter) Option { return func(p *Processor) { p.limiter = l } }
func WithBehaviorAnalyzer(b BehaviorAnalyzer) Option { return func(p *Processor) { p.behavior = b } }
func WithBotAnalyzer(b BotAnalyzer) Option { return func(p *Processor) { p.bots = b } }
func WithNotifier(n notify.MatchNotifier) Option { return func(p *Processor) { p.notifier = n } }
func WithReportCache(c ReportCache) Option { return func(p *Processor) { p.reports = c } }
func WithRetryPolicy(r notify.RetryPolicy) Option { return func(p *Processor) { p.retry = r } }
func WithLogger(l *slog.Logger) Option { return func(p *Processor) { p.log = l } }
func WithClock(now func() time.Time) Option { return func(p *Processor) { p.now = now } }

// NewProcessor wires a processor. Collaborators that are not supplied are
// disabled: no quotas, no behavior analysis, log-only notifications and no
// report cache.
func NewProcessor(ledger *repository.Ledger, settings *config.AbuseStore, opts ...Option) *Processor {
	p := &Processor{
		ledger:   ledger,
		settings: settings,
		limiter:  ratelimit.Noop{},
		behavior: trust.Noop{},
		reports:  noCache{},
		retry:    notify.RetryPolicy{Base: 30 * time.Second, MaxAttempts: 5},
		log:      logger.L(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With("component", "swipe")
	if p.bots == nil {
		p.bots = botdetect.New(ledger.Swipes, p.log)
	}
	if p.notifier == nil {
		p.notifier = notify.NewLogNotifier(p.log)
	}
	return p
}

func (p *Processor) clock() time.Time { return p.now().UTC() }

// RecordSwipe runs the swipe pipeline.
//
// Behavior:
//   - Self-swipes, active cooldowns and exhausted quotas are rejected before
//     anything is written.
//   - A suspicious swipe is only logged; it is not blocked.
//   - A known idempotency key replays the original outcome without writing.
//   - The swipe, the counter, the stats and any match commit together. Stats
//     failures roll back to a savepoint and are logged.
//   - A new match is announced once after commit. A failed announcement stays
//     in the outbox and the result reports NotificationPending.
func (p *Processor) RecordSwipe(ctx context.Context, req SwipeRequest) (SwipeResult, error) {
	cfg := p.settings.Current()
	log := logger.FromContext(ctx, p.log).With("user_id", req.UserID, "target_user_id", req.TargetUserID)
	dbc := dbctx.Background(ctx)

	if req.UserID == 0 || req.TargetUserID == 0 {
		return SwipeResult{}, svcErr.Validation("user ids must be positive")
	}
	if req.UserID == req.TargetUserID {
		return SwipeResult{}, svcErr.Validation("cannot swipe on yourself")
	}

	until, active, err := p.behavior.CheckCooldown(dbc, req.UserID)
	if err != nil {
		return SwipeResult{}, fmt.Errorf("check cooldown: %w", err)
	}
	if active {
		return SwipeResult{}, &svcErr.CooldownError{Until: *until}
	}

	quota, err := p.limiter.CheckDailyLimit(dbc, cfg, req.UserID, req.IsLike)
	if err != nil {
		return SwipeResult{}, fmt.Errorf("check daily limit: %w", err)
	}
	if !quota.Allowed {
		return SwipeResult{}, &svcErr.RateLimitError{IsLike: req.IsLike, Remaining: quota.Remaining, Limit: quota.Limit}
	}

	if s, err := p.behavior.IsSwipeSuspicious(dbc, cfg, req.UserID, req.IsLike); err != nil {
		log.Warn("suspicion check failed", "err", err)
	} else if s.Suspicious {
		log.Warn("suspicious swipe", "reason", s.Reason, "is_like", req.IsLike)
	}

	if req.IdempotencyKey != "" {
		prior, err := p.ledger.Swipes.FindByIdempotencyKey(dbc, req.IdempotencyKey)
		if err != nil {
			return SwipeResult{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if prior != nil {
			return replay(prior, req)
		}
	}

	existing, err := p.ledger.Swipes.Find(dbc, req.UserID, req.TargetUserID)
	if err != nil {
		return SwipeResult{}, fmt.Errorf("lookup swipe: %w", err)
	}
	if existing != nil {
		return SwipeResult{}, svcErr.Conflict("already swiped")
	}

	out, err := p.persist(ctx, cfg, req, log)
	if err != nil {
		if repository.IsDuplicate(err) {
			return p.resolveDuplicate(dbc, req)
		}
		return SwipeResult{}, fmt.Errorf("record swipe: %w", err)
	}

	if out.match == nil && req.IsLike && !out.pairClosed {
		// Under read-committed isolation two concurrent mutual likes can each
		// miss the other's uncommitted row. Both are committed now.
		if err := p.reconcileMatch(ctx, &out); err != nil {
			log.Error("match reconciliation failed", "err", err)
		}
	}

	p.invalidateReport(ctx, req.UserID, log)

	res := SwipeResult{Success: true, Message: MessageRecorded, SwipeID: out.swipe.ID}
	if out.match != nil {
		res.IsMutualMatch = true
		res.MatchID = out.match.ID
		res.Message = MessageMatch
		log.Info("match formed", "match_id", out.match.ID, "new", out.outbox != nil)
	}
	if out.outbox != nil {
		res.NotificationPending = !p.deliver(ctx, out.outbox, log)
	}
	return res, nil
}

type persisted struct {
	swipe  *db.Swipe
	match  *db.Match
	outbox *db.MatchNotification
	// pairClosed is set when the pair has an ended match and may not re-match.
	pairClosed bool
}

func (p *Processor) persist(ctx context.Context, cfg config.AbuseSettings, req SwipeRequest, log *slog.Logger) (persisted, error) {
	var out persisted
	err := p.ledger.Transaction(ctx, func(tx dbctx.Context) error {
		out = persisted{swipe: &db.Swipe{
			UserID:         req.UserID,
			TargetUserID:   req.TargetUserID,
			IsLike:         req.IsLike,
			CreatedAt:      p.clock(),
			DeviceInfo:     optional(req.DeviceInfo),
			Location:       optional(req.Location),
			IdempotencyKey: optional(req.IdempotencyKey),
		}}
		if err := p.ledger.Swipes.Create(tx, out.swipe); err != nil {
			return err
		}
		if err := p.limiter.IncrementSwipeCount(tx, req.UserID, req.IsLike); err != nil {
			return err
		}

		err := p.ledger.Savepoint(tx, func(sp dbctx.Context) error {
			return p.behavior.UpdateStatsOnSwipe(sp, cfg, req.UserID, req.IsLike)
		})
		if err != nil {
			log.Warn("behavior stats update failed", "err", err)
		}

		if !req.IsLike {
			return nil
		}
		reverse, err := p.ledger.Swipes.FindLike(tx, req.TargetUserID, req.UserID)
		if err != nil {
			return fmt.Errorf("lookup reverse like: %w", err)
		}
		if reverse == nil {
			return nil
		}
		return p.attachMatch(tx, &out)
	})
	return out, err
}

// reconcileMatch forms the match a concurrent mutual like may have missed.
func (p *Processor) reconcileMatch(ctx context.Context, out *persisted) error {
	s := out.swipe
	reverse, err := p.ledger.Swipes.FindLike(dbctx.Background(ctx), s.TargetUserID, s.UserID)
	if err != nil || reverse == nil {
		return err
	}
	var fixed persisted
	err = p.ledger.Transaction(ctx, func(tx dbctx.Context) error {
		fixed = persisted{swipe: s}
		return p.attachMatch(tx, &fixed)
	})
	if err != nil {
		return err
	}
	out.match, out.outbox, out.pairClosed = fixed.match, fixed.outbox, fixed.pairClosed
	return nil
}

// attachMatch links out.swipe to the pair's match, creating it when the pair
// never matched. Only the creator enqueues the notification.
func (p *Processor) attachMatch(tx dbctx.Context, out *persisted) error {
	m, created, err := p.formMatch(tx, out.swipe.UserID, out.swipe.TargetUserID)
	if err != nil {
		return err
	}
	if m == nil {
		out.pairClosed = true
		return nil
	}
	if err := p.ledger.Swipes.SetMatch(tx, out.swipe.ID, m.ID); err != nil {
		return fmt.Errorf("link swipe to match: %w", err)
	}
	out.swipe.MatchID = &m.ID
	out.match = m
	if created {
		n, err := p.ledger.Notifications.Enqueue(tx, m)
		if err != nil {
			return fmt.Errorf("enqueue match notification: %w", err)
		}
		out.outbox = n
	}
	return nil
}

// formMatch returns the pair's active match and whether this call created it.
// A pair whose match was ended gets (nil, false, nil): unmatched users do not
// re-match.
func (p *Processor) formMatch(tx dbctx.Context, a, b uint64) (*db.Match, bool, error) {
	existing, err := p.ledger.Matches.FindByPair(tx, a, b)
	if err != nil {
		return nil, false, fmt.Errorf("lookup match: %w", err)
	}
	if existing != nil {
		if existing.IsActive {
			return existing, false, nil
		}
		return nil, false, nil
	}

	var m *db.Match
	err = p.ledger.Savepoint(tx, func(sp dbctx.Context) error {
		var cerr error
		m, cerr = p.ledger.Matches.Create(sp, a, b)
		return cerr
	})
	if err == nil {
		return m, true, nil
	}
	if !repository.IsDuplicate(err) {
		return nil, false, fmt.Errorf("create match: %w", err)
	}

	// lost the race to a concurrent completion; join its match
	existing, err = p.ledger.Matches.FindByPair(tx, a, b)
	if err != nil {
		return nil, false, fmt.Errorf("lookup match: %w", err)
	}
	if existing == nil || !existing.IsActive {
		return nil, false, nil
	}
	return existing, false, nil
}

// resolveDuplicate turns a uniqueness violation on insert into the outcome the
// pre-checks would have produced.
func (p *Processor) resolveDuplicate(dbc dbctx.Context, req SwipeRequest) (SwipeResult, error) {
	if req.IdempotencyKey != "" {
		prior, err := p.ledger.Swipes.FindByIdempotencyKey(dbc, req.IdempotencyKey)
		if err != nil {
			return SwipeResult{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if prior != nil {
			return replay(prior, req)
		}
	}
	return SwipeResult{}, svcErr.Conflict("already swiped")
}

func replay(prior *db.Swipe, req SwipeRequest) (SwipeResult, error) {
	if prior.UserID != req.UserID || prior.TargetUserID != req.TargetUserID {
		return SwipeResult{}, svcErr.Conflict("idempotency key already used for a different swipe")
	}
	res := SwipeResult{Success: true, Message: MessageRecorded, SwipeID: prior.ID, Replayed: true}
	if prior.MatchID != nil {
		res.IsMutualMatch = true
		res.MatchID = *prior.MatchID
		res.Message = MessageMatch
	}
	return res, nil
}

// deliver announces a committed match once and records the outcome in the
// outbox. It reports whether the notifier acknowledged.
func (p *Processor) deliver(ctx context.Context, n *db.MatchNotification, log *slog.Logger) bool {
	notifyErr := p.notifier.NotifyMatch(ctx, n.User1ID, n.User2ID)

	// bookkeeping must survive a caller that already went away
	dbc := dbctx.Background(context.WithoutCancel(ctx))
	now := p.clock()

	if notifyErr == nil {
		if err := p.ledger.Notifications.MarkSent(dbc, n.ID, now); err != nil {
			log.Warn("mark notification sent failed", "notification_id", n.ID, "err", err)
		}
		return true
	}

	retryAt := p.retry.Next(1, now)
	if err := p.ledger.Notifications.MarkFailed(dbc, n.ID, notifyErr, retryAt); err != nil {
		log.Error("mark notification failed failed", "notification_id", n.ID, "err", err)
	}
	log.Error("match notification failed", "match_id", n.MatchID, "retry_at", retryAt, "err", notifyErr)
	return false
}

func (p *Processor) invalidateReport(ctx context.Context, userID uint64, log *slog.Logger) {
	if err := p.reports.Del(ctx, p.reports.KeyForBehaviorReport(userID)); err != nil {
		log.Warn("invalidate behavior report failed", "err", err)
	}
}

// Unmatch ends the active match between the two users. Ending a match that
// is already inactive, or that never existed, fails with "match not found".
func (p *Processor) Unmatch(ctx context.Context, userID, targetUserID uint64) (Result, error) {
	log := logger.FromContext(ctx, p.log).With("user_id", userID, "target_user_id", targetUserID)
	dbc := dbctx.Background(ctx)

	if userID == targetUserID {
		return Result{}, svcErr.Validation("cannot unmatch yourself")
	}

	m, err := p.ledger.Matches.FindActiveByPair(dbc, userID, targetUserID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup match: %w", err)
	}
	if m == nil {
		return Result{}, svcErr.NotFound("match not found")
	}

	ok, err := p.ledger.Matches.Deactivate(dbc, m.ID, userID, p.clock())
	if err != nil {
		return Result{}, fmt.Errorf("deactivate match: %w", err)
	}
	if !ok {
		return Result{}, svcErr.NotFound("match not found")
	}

	log.Info("match ended", "match_id", m.ID)
	return Result{Success: true, Message: MessageUnmatched}, nil
}

// GetBehaviorReport returns the user's behavior report, cache first.
func (p *Processor) GetBehaviorReport(ctx context.Context, userID uint64) (trust.Report, error) {
	cfg := p.settings.Current()
	log := logger.FromContext(ctx, p.log).With("user_id", userID)

	key := p.reports.KeyForBehaviorReport(userID)
	var cached trust.Report
	if hit, err := p.reports.GetJSON(ctx, key, &cached); err != nil {
		log.Warn("behavior report cache read failed", "err", err)
	} else if hit {
		return cached, nil
	}

	r, err := p.behavior.Report(dbctx.Background(ctx), cfg, userID)
	if err != nil {
		return trust.Report{}, fmt.Errorf("build behavior report: %w", err)
	}
	if err := p.reports.SetJSON(ctx, key, r, cfg.BehaviorReportTTL); err != nil {
		log.Warn("behavior report cache write failed", "err", err)
	}
	return r, nil
}

// AnalyzeBot runs the bot detector over the user's recent swipes.
func (p *Processor) AnalyzeBot(ctx context.Context, userID uint64) (botdetect.Result, error) {
	res, err := p.bots.Analyze(ctx, p.settings.Current(), userID)
	if err != nil {
		return botdetect.Result{}, fmt.Errorf("analyze bot: %w", err)
	}
	return res, nil
}

// ListMatches returns a page of the user's active matches, newest first.
func (p *Processor) ListMatches(ctx context.Context, userID uint64, pageToken *string, limit int) ([]db.Match, *string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	if pageToken != nil {
		if _, err := pagination.Decode(*pageToken); err != nil {
			return nil, nil, svcErr.Validation(err.Error())
		}
	}
	matches, next, err := p.ledger.Matches.ListActive(dbctx.Background(ctx), userID, pageToken, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, next, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// noCache never hits.
type noCache struct{}

func (noCache) KeyForBehaviorReport(userID uint64) string {
	return fmt.Sprintf("behavior:report:%d", userID)
}

func (noCache) GetJSON(context.Context, string, any) (bool, error)         { return false, nil }
func (noCache) SetJSON(context.Context, string, any, time.Duration) error { return nil }
func (noCache) Del(context.Context, string) error                         { return nil }
