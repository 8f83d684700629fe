package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/swipe-guard/internal/notify"
	"github.com/oggyb/swipe-guard/internal/repository"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

const (
	defaultBatchSize = 100
	defaultInterval  = 30 * time.Second
)

// OutboxDispatcher redelivers match notifications whose inline delivery failed
// or never finished. Delivery is at-least-once.
type OutboxDispatcher struct {
	outbox     *repository.NotificationRepository
	notifier   notify.MatchNotifier
	retry      notify.RetryPolicy
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	log        *slog.Logger
	now        func() time.Time
}

type DispatcherOption func(*OutboxDispatcher)

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *OutboxDispatcher) { d.now = now }
}

func WithBatchSize(n int) DispatcherOption {
	return func(d *OutboxDispatcher) { d.batchSize = n }
}

// NewOutboxDispatcher polls every interval. Pending rows older than staleAfter
// are treated as abandoned by the request that created them. A non-positive
// interval falls back to 30s.
func NewOutboxDispatcher(
	outbox *repository.NotificationRepository,
	notifier notify.MatchNotifier,
	retry notify.RetryPolicy,
	interval, staleAfter time.Duration,
	log *slog.Logger,
	opts ...DispatcherOption,
) *OutboxDispatcher {
	d := &OutboxDispatcher{
		outbox:     outbox,
		notifier:   notifier,
		retry:      retry,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  defaultBatchSize,
		log:        log.With("component", "outbox"),
		now:        time.Now,
	}
	if d.interval <= 0 {
		d.interval = defaultInterval
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run blocks until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				d.log.Error("outbox dispatch failed", "err", err)
			}
		}
	}
}

// DispatchOnce delivers one batch of due notifications and returns how many
// were acknowledged.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	dbc := dbctx.Background(ctx)
	now := d.now().UTC()

	due, err := d.outbox.Due(dbc, now, now.Add(-d.staleAfter), d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load due notifications: %w", err)
	}

	sent := 0
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		notifyErr := d.notifier.NotifyMatch(ctx, n.User1ID, n.User2ID)
		if notifyErr == nil {
			if err := d.outbox.MarkSent(dbc, n.ID, now); err != nil {
				return sent, fmt.Errorf("mark notification %d sent: %w", n.ID, err)
			}
			sent++
			continue
		}

		retryAt := d.retry.Next(n.Attempts+1, now)
		if err := d.outbox.MarkFailed(dbc, n.ID, notifyErr, retryAt); err != nil {
			return sent, fmt.Errorf("mark notification %d failed: %w", n.ID, err)
		}
		if retryAt == nil {
			d.log.Error("match notification dead", "match_id", n.MatchID, "attempts", n.Attempts+1, "err", notifyErr)
		} else {
			d.log.Warn("match notification retry scheduled", "match_id", n.MatchID, "retry_at", *retryAt, "err", notifyErr)
		}
	}

	if len(due) > 0 {
		d.log.Info("outbox batch dispatched", "due", len(due), "sent", sent)
	}
	return sent, nil
}
